package handlers

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/viollenaki/nurtilek/internal/apperr"
	"github.com/viollenaki/nurtilek/internal/config"
	"github.com/viollenaki/nurtilek/internal/middleware"
	"github.com/viollenaki/nurtilek/internal/models"
	"github.com/viollenaki/nurtilek/internal/session"
	"github.com/viollenaki/nurtilek/internal/store"
)

// defaultPhoto is the placeholder served for users and groups without a photo.
var defaultPhoto, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==")

type UserHandler struct {
	Store    store.Store
	Sessions *session.Manager
	Cfg      config.Config
}

func (h *UserHandler) Info(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.GetUserByID(middleware.UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

type updateProfileRequest struct {
	Nickname        string `json:"nickname"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	Photo           []byte `json:"-"`
}

func decodeUpdateProfile(r *http.Request) (*updateProfileRequest, error) {
	var req updateProfileRequest
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, apperr.Wrap(apperr.Validation, "malformed form", err)
		}
		req.Nickname = r.FormValue("nickname")
		req.CurrentPassword = r.FormValue("current_password")
		req.NewPassword = r.FormValue("new_password")
		photo, _, err := readFormFile(r, "profile_photo")
		if err != nil {
			return nil, err
		}
		req.Photo = photo
		return &req, nil
	}
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	req, err := decodeUpdateProfile(r)
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := h.Store.GetUserByID(userID)
	if err != nil {
		writeError(w, err)
		return
	}

	var upd models.UserUpdate
	if req.Nickname != "" && req.Nickname != user.Nickname {
		exists, err := h.Store.NicknameExists(req.Nickname)
		if err != nil {
			writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
			return
		}
		if exists {
			writeError(w, apperr.New(apperr.Conflict, "nickname is already taken"))
			return
		}
		upd.Nickname = &req.Nickname
	}
	if req.NewPassword != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
			writeError(w, apperr.New(apperr.Auth, "current password is incorrect"))
			return
		}
		if len(req.NewPassword) < minPasswordLen {
			writeError(w, apperr.New(apperr.Validation, "password must be at least 6 characters"))
			return
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
			return
		}
		hashedStr := string(hashed)
		upd.Password = &hashedStr
	}
	if len(req.Photo) > 0 {
		upd.Photo = req.Photo
	}

	if err := h.Store.UpdateUser(userID, upd); err != nil {
		writeError(w, err)
		return
	}
	if upd.Nickname != nil {
		h.Sessions.SetNickname(middleware.Token(r), *upd.Nickname)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "profile updated"})
}

func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if len(query) < h.Cfg.SearchMinQuery {
		writeError(w, apperr.Newf(apperr.Validation, "query must be at least %d characters", h.Cfg.SearchMinQuery))
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	users, total, err := h.Store.SearchUsers(middleware.UserID(r), query, limit, offset)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
		return
	}
	if users == nil {
		users = []models.UserSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "users": users, "total": total})
}

func (h *UserHandler) OwnPhoto(w http.ResponseWriter, r *http.Request) {
	h.servePhoto(w, middleware.UserID(r))
}

func (h *UserHandler) Photo(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, apperr.New(apperr.Validation, "invalid user id"))
		return
	}
	h.servePhoto(w, id)
}

func (h *UserHandler) servePhoto(w http.ResponseWriter, userID int) {
	photo, err := h.Store.GetUserPhoto(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	serveImage(w, photo)
}

// serveImage writes the blob, or the well-known placeholder when absent.
func serveImage(w http.ResponseWriter, photo []byte) {
	if len(photo) == 0 {
		w.Header().Set("Content-Type", "image/png")
		w.Write(defaultPhoto)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(photo))
	w.Write(photo)
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v >= 0 {
		return v
	}
	return def
}
