package handlers

import (
	"net/http"
	"regexp"

	"golang.org/x/crypto/bcrypt"

	"github.com/viollenaki/nurtilek/internal/apperr"
	"github.com/viollenaki/nurtilek/internal/auth"
	"github.com/viollenaki/nurtilek/internal/config"
	"github.com/viollenaki/nurtilek/internal/email"
	"github.com/viollenaki/nurtilek/internal/middleware"
	"github.com/viollenaki/nurtilek/internal/session"
	"github.com/viollenaki/nurtilek/internal/store"
)

const minPasswordLen = 6

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

type AuthHandler struct {
	Store    store.Store
	Sessions *session.Manager
	Signer   *auth.Signer
	Mail     *email.Sender
	Cfg      config.Config
}

// ensureSession resolves the caller's session, creating an anonymous one (and
// setting the cookie) when none is valid yet.
func (h *AuthHandler) ensureSession(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(middleware.SessionCookie); err == nil {
		if token, err := h.Signer.Verify(cookie.Value); err == nil {
			if _, ok := h.Sessions.Lookup(token); ok {
				return token
			}
		}
	}
	token := h.Sessions.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    h.Signer.Sign(token),
		Path:     "/",
		HttpOnly: true,
	})
	return token
}

func (h *AuthHandler) CheckNickname(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nickname string `json:"nickname"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Nickname == "" {
		writeError(w, apperr.New(apperr.Validation, "nickname is required"))
		return
	}

	exists, err := h.Store.NicknameExists(req.Nickname)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
		return
	}

	message := "nickname is available"
	if exists {
		message = "nickname is already taken"
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": !exists, "message": message})
}

type registerRequest struct {
	Nickname string `json:"nickname"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Code     string `json:"code"`
	Photo    []byte `json:"-"`
}

// Registration accepts JSON or a multipart form; both paths fill the same
// struct and validation runs once against it.
func decodeRegister(r *http.Request) (*registerRequest, error) {
	var req registerRequest
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, apperr.Wrap(apperr.Validation, "malformed form", err)
		}
		req.Nickname = r.FormValue("nickname")
		req.Password = r.FormValue("password")
		req.Email = r.FormValue("email")
		req.Code = r.FormValue("code")
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

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	token := h.ensureSession(w, r)

	req, err := decodeRegister(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Nickname == "" || req.Password == "" {
		writeError(w, apperr.New(apperr.Validation, "nickname and password are required"))
		return
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, apperr.New(apperr.Validation, "password must be at least 6 characters"))
		return
	}

	// An email may only be attached with a code previously sent to it.
	if req.Email != "" {
		pending, ok := h.Sessions.Pending(token)
		if !ok || pending.Email != req.Email || pending.Code != req.Code {
			writeError(w, apperr.New(apperr.Validation, "invalid code"))
			return
		}
		if pending.Expired(h.Sessions.Now()) {
			writeError(w, apperr.New(apperr.Validation, "code expired"))
			return
		}
	}

	if exists, err := h.Store.NicknameExists(req.Nickname); err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
		return
	} else if exists {
		writeError(w, apperr.New(apperr.Conflict, "nickname is already taken"))
		return
	}
	if req.Email != "" {
		if exists, err := h.Store.EmailExists(req.Email); err != nil {
			writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
			return
		} else if exists {
			writeError(w, apperr.New(apperr.Conflict, "email is already registered"))
			return
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
		return
	}

	userID, err := h.Store.CreateUser(req.Nickname, string(hashed), req.Email, req.Photo)
	if err != nil {
		writeError(w, err)
		return
	}

	h.Sessions.Bind(token, userID, req.Nickname)
	h.Sessions.ClearCode(token)

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"user":    map[string]any{"id": userID, "nickname": req.Nickname},
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Nickname string `json:"nickname"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &creds); err != nil {
		writeError(w, err)
		return
	}
	if creds.Nickname == "" || creds.Password == "" {
		writeError(w, apperr.New(apperr.Validation, "nickname and password are required"))
		return
	}

	// Unknown nickname and wrong password are reported identically.
	user, err := h.Store.GetUserByNickname(creds.Nickname)
	if err != nil {
		writeError(w, apperr.New(apperr.Auth, "invalid credentials"))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(creds.Password)); err != nil {
		writeError(w, apperr.New(apperr.Auth, "invalid credentials"))
		return
	}

	token := h.ensureSession(w, r)
	h.Sessions.Bind(token, user.ID, user.Nickname)
	h.Store.TouchUser(user.ID)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    map[string]any{"id": user.ID, "nickname": user.Nickname},
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.Sessions.Destroy(middleware.Token(r))
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "logged out"})
}

// Ping is the keep-alive: it refreshes the session window and last_active.
func (h *AuthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.TouchUser(middleware.UserID(r)); err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "pong"})
}

// SendVerificationCode issues a one-time code for email-bound registration.
// The code lives in the caller's session; a delivery failure does not discard it.
func (h *AuthHandler) SendVerificationCode(w http.ResponseWriter, r *http.Request) {
	token := h.ensureSession(w, r)

	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !emailPattern.MatchString(req.Email) {
		writeError(w, apperr.New(apperr.Validation, "malformed email address"))
		return
	}

	if exists, err := h.Store.EmailExists(req.Email); err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
		return
	} else if exists {
		writeError(w, apperr.New(apperr.Conflict, "email is already registered"))
		return
	}

	code := email.GenerateCode()
	h.Sessions.StashCode(token, req.Email, code, h.Cfg.CodeTTL)

	if err := h.Mail.SendVerificationCode(req.Email, code); err != nil {
		writeError(w, apperr.Wrap(apperr.Delivery, "failed to send verification email", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "code sent"})
}
