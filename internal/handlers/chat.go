package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/viollenaki/nurtilek/internal/apperr"
	"github.com/viollenaki/nurtilek/internal/middleware"
	"github.com/viollenaki/nurtilek/internal/models"
	"github.com/viollenaki/nurtilek/internal/store"
)

type ChatHandler struct {
	Store    store.Store
	PageSize int
}

func (h *ChatHandler) GetChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.Store.ListChats(middleware.UserID(r))
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
		return
	}
	if chats == nil {
		chats = []models.ChatSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "chats": chats})
}

// CreateDialog is idempotent: repeat calls for the same peer return the
// existing chat.
func (h *ChatHandler) CreateDialog(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	var req struct {
		UserID int `json:"user_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.UserID == 0 {
		writeError(w, apperr.New(apperr.Validation, "user_id is required"))
		return
	}
	if req.UserID == userID {
		writeError(w, apperr.New(apperr.Validation, "cannot open a dialog with yourself"))
		return
	}

	other, err := h.Store.GetUserByID(req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	chatID, err := h.Store.GetOrCreateDialog(userID, other.ID)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"chat": map[string]any{
			"id":            chatID,
			"type":          models.ChatTypeDialog,
			"name":          other.Nickname,
			"other_user_id": other.ID,
			"has_photo":     other.HasPhoto,
		},
	})
}

// GetMessages serves both retrieval modes: limit/offset pagination (which
// marks fetched foreign messages as read) and after_id polling (which does not).
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	chatID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, apperr.New(apperr.Validation, "invalid chat id"))
		return
	}

	if !h.requireAccess(w, chatID, userID) {
		return
	}

	if after := queryInt(r, "after_id", 0); after > 0 {
		msgs, err := h.Store.ListMessagesAfter(chatID, userID, after)
		if err != nil {
			writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
			return
		}
		if msgs == nil {
			msgs = []models.Message{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": msgs})
		return
	}

	limit := queryInt(r, "limit", h.PageSize)
	offset := queryInt(r, "offset", 0)
	msgs, hasMore, err := h.Store.ListMessages(chatID, userID, limit, offset)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "internal server error", err))
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": msgs, "has_more": hasMore})
}

type sendMessageRequest struct {
	Content       string `json:"content"`
	ReplyTo       int    `json:"reply_to"`
	ForwardedFrom int    `json:"forwarded_from"`
	Media         []byte `json:"-"`
	MediaName     string `json:"-"`
}

func decodeSendMessage(r *http.Request) (*sendMessageRequest, error) {
	var req sendMessageRequest
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, apperr.Wrap(apperr.Validation, "malformed form", err)
		}
		req.Content = r.FormValue("content")
		req.ReplyTo, _ = strconv.Atoi(r.FormValue("reply_to"))
		req.ForwardedFrom, _ = strconv.Atoi(r.FormValue("forwarded_from"))
		media, name, err := readFormFile(r, "media")
		if err != nil {
			return nil, err
		}
		req.Media = media
		req.MediaName = name
		return &req, nil
	}
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	chatID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, apperr.New(apperr.Validation, "invalid chat id"))
		return
	}

	req, err := decodeSendMessage(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Content == "" && len(req.Media) == 0 {
		writeError(w, apperr.New(apperr.Validation, "message must have content or media"))
		return
	}

	if !h.requireAccess(w, chatID, userID) {
		return
	}

	msg := models.NewMessage{
		ChatID:        chatID,
		SenderID:      userID,
		Content:       req.Content,
		Media:         req.Media,
		ReplyTo:       req.ReplyTo,
		ForwardedFrom: req.ForwardedFrom,
	}
	if len(req.Media) > 0 {
		msg.MediaName = req.MediaName
		msg.MediaType = models.MediaKindFromName(req.MediaName)
	}

	created, err := h.Store.CreateMessage(msg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": created})
}

// GetMedia re-derives chat access from the message before releasing the blob.
func (h *ChatHandler) GetMedia(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	messageID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, apperr.New(apperr.Validation, "invalid message id"))
		return
	}

	chatID, data, mediaType, mediaName, err := h.Store.GetMessageMedia(messageID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !h.requireAccess(w, chatID, userID) {
		return
	}

	w.Header().Set("Content-Type", models.MediaMIME(mediaType, mediaName))
	w.Write(data)
}

func (h *ChatHandler) requireAccess(w http.ResponseWriter, chatID, userID int) bool {
	ok, err := h.Store.HasChatAccess(chatID, userID)
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
