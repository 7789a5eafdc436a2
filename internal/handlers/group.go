package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/viollenaki/nurtilek/internal/apperr"
	"github.com/viollenaki/nurtilek/internal/middleware"
	"github.com/viollenaki/nurtilek/internal/models"
	"github.com/viollenaki/nurtilek/internal/store"
)

type GroupHandler struct {
	Store store.Store
}

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MemberIDs   []int  `json:"member_ids"`
	Photo       []byte `json:"-"`
}

func decodeCreateGroup(r *http.Request) (*createGroupRequest, error) {
	var req createGroupRequest
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, apperr.Wrap(apperr.Validation, "malformed form", err)
		}
		req.Name = r.FormValue("name")
		req.Description = r.FormValue("description")
		for _, part := range strings.Split(r.FormValue("member_ids"), ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.Atoi(part)
			if err != nil {
				return nil, apperr.New(apperr.Validation, "member_ids must be a comma-separated list of ids")
			}
			req.MemberIDs = append(req.MemberIDs, id)
		}
		photo, _, err := readFormFile(r, "photo")
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

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCreateGroup(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, apperr.New(apperr.Validation, "group name is required"))
		return
	}

	chatID, groupID, err := h.Store.CreateGroup(middleware.UserID(r), req.Name, req.Description, req.MemberIDs, req.Photo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"chat_id":  chatID,
		"group_id": groupID,
	})
}

func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	groupID, ok := h.groupID(w, r)
	if !ok {
		return
	}
	if !h.requireMember(w, groupID, userID) {
		return
	}

	detail, err := h.Store.GetGroupInfo(groupID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "group": detail})
}

type updateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Photo       []byte `json:"-"`
}

func decodeUpdateGroup(r *http.Request) (*updateGroupRequest, error) {
	var req updateGroupRequest
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, apperr.Wrap(apperr.Validation, "malformed form", err)
		}
		req.Name = r.FormValue("name")
		req.Description = r.FormValue("description")
		photo, _, err := readFormFile(r, "photo")
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

func (h *GroupHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	groupID, ok := h.groupID(w, r)
	if !ok {
		return
	}
	if !h.requireAdmin(w, groupID, userID) {
		return
	}

	req, err := decodeUpdateGroup(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, apperr.New(apperr.Validation, "group name is required"))
		return
	}

	if err := h.Store.UpdateGroup(groupID, userID, req.Name, req.Description, req.Photo); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "group updated"})
}

func (h *GroupHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	groupID, ok := h.groupID(w, r)
	if !ok {
		return
	}
	if !h.requireAdmin(w, groupID, userID) {
		return
	}

	var req struct {
		UserIDs []int `json:"user_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.UserIDs) == 0 {
		writeError(w, apperr.New(apperr.Validation, "user_ids is required"))
		return
	}

	added, err := h.Store.AddGroupMembers(groupID, userID, req.UserIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	if added == nil {
		added = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "added": added})
}

func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	groupID, ok := h.groupID(w, r)
	if !ok {
		return
	}
	targetID, err := strconv.Atoi(mux.Vars(r)["userId"])
	if err != nil {
		writeError(w, apperr.New(apperr.Validation, "invalid user id"))
		return
	}
	if !h.requireAdmin(w, groupID, userID) {
		return
	}

	requesterLevel, err := h.Store.GroupAdminLevel(groupID, userID)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
		return
	}
	targetLevel, err := h.Store.GroupAdminLevel(groupID, targetID)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
		return
	}
	if targetLevel == models.AdminLevelCreator {
		writeError(w, apperr.New(apperr.Forbidden, "the creator cannot be removed"))
		return
	}
	if targetLevel == models.AdminLevelAdmin && requesterLevel != models.AdminLevelCreator {
		writeError(w, apperr.New(apperr.Forbidden, "only the creator can remove an admin"))
		return
	}

	if err := h.Store.RemoveGroupMember(groupID, userID, targetID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "member removed"})
}

// ToggleAdmin grants or revokes level-1 admin rights; only the creator may do
// this, and never on themselves.
func (h *GroupHandler) ToggleAdmin(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	groupID, ok := h.groupID(w, r)
	if !ok {
		return
	}

	var req struct {
		UserID    int  `json:"user_id"`
		MakeAdmin bool `json:"make_admin"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	level, err := h.Store.GroupAdminLevel(groupID, userID)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
		return
	}
	if level != models.AdminLevelCreator {
		writeError(w, apperr.New(apperr.Forbidden, "only the creator can manage admins"))
		return
	}
	if req.UserID == userID {
		writeError(w, apperr.New(apperr.Validation, "cannot change your own admin status"))
		return
	}

	isMember, err := h.Store.IsActiveMember(groupID, req.UserID)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
		return
	}
	if !isMember {
		writeError(w, apperr.New(apperr.NotFound, "user is not an active member"))
		return
	}

	if err := h.Store.SetGroupAdmin(groupID, userID, req.UserID, req.MakeAdmin); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *GroupHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	groupID, ok := h.groupID(w, r)
	if !ok {
		return
	}

	level, err := h.Store.GroupAdminLevel(groupID, userID)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
		return
	}
	if level == models.AdminLevelCreator {
		writeError(w, apperr.New(apperr.Forbidden, "the creator cannot leave the group"))
		return
	}

	if err := h.Store.LeaveGroup(groupID, userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "left the group"})
}

func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	groupID, ok := h.groupID(w, r)
	if !ok {
		return
	}

	level, err := h.Store.GroupAdminLevel(groupID, userID)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
		return
	}
	if level != models.AdminLevelCreator {
		writeError(w, apperr.New(apperr.Forbidden, "only the creator can delete the group"))
		return
	}

	if err := h.Store.DeleteGroup(groupID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "group deleted"})
}

func (h *GroupHandler) Photo(w http.ResponseWriter, r *http.Request) {
	groupID, ok := h.groupID(w, r)
	if !ok {
		return
	}
	photo, err := h.Store.GetGroupPhoto(groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	serveImage(w, photo)
}

func (h *GroupHandler) groupID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, apperr.New(apperr.Validation, "invalid group id"))
		return 0, false
	}
	return id, true
}

func (h *GroupHandler) requireMember(w http.ResponseWriter, groupID, userID int) bool {
	ok, err := h.Store.IsActiveMember(groupID, userID)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
		return false
	}
	if !ok {
		writeError(w, apperr.New(apperr.Forbidden, "access denied"))
		return false
	}
	return true
}

func (h *GroupHandler) requireAdmin(w http.ResponseWriter, groupID, userID int) bool {
	level, err := h.Store.GroupAdminLevel(groupID, userID)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
		return false
	}
	if level < models.AdminLevelAdmin {
		writeError(w, apperr.New(apperr.Forbidden, "admin rights required"))
		return false
	}
	return true
}
