package models

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	ChatTypeDialog = "dialog"
	ChatTypeGroup  = "group"

	MemberActive  = "active"
	MemberLeft    = "left"
	MemberRemoved = "removed"

	AdminLevelNone    = 0
	AdminLevelAdmin   = 1
	AdminLevelCreator = 2

	MediaImage = "image"
	MediaVideo = "video"
	MediaAudio = "audio"
	MediaFile  = "file"
)

type User struct {
	ID         int       `json:"id"`
	Nickname   string    `json:"nickname"`
	Email      string    `json:"email,omitempty"`
	Password   string    `json:"-"`
	HasPhoto   bool      `json:"has_photo"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

type UserSummary struct {
	ID       int    `json:"id"`
	Nickname string `json:"nickname"`
	HasPhoto bool   `json:"has_photo"`
}

// UserUpdate lists the profile fields to change. Nil pointers mean "leave as is".
type UserUpdate struct {
	Nickname *string
	Password *string
	Photo    []byte
}

// ChatSummary is one entry of the unified chat feed.
type ChatSummary struct {
	ID            int        `json:"id"`
	Type          string     `json:"type"`
	Name          string     `json:"name"`
	OtherUserID   int        `json:"other_user_id,omitempty"`
	GroupID       int        `json:"group_id,omitempty"`
	HasPhoto      bool       `json:"has_photo"`
	LastMessage   string     `json:"last_message,omitempty"`
	LastSender    string     `json:"last_sender,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	UnreadCount   int        `json:"unread_count"`
	CreatedAt     time.Time  `json:"created_at"`
}

// EffectiveTime is what the feed is ordered by: the last message time when the
// chat has messages, the chat creation time otherwise.
func (c ChatSummary) EffectiveTime() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// MessageRef is a resolved reply/forward snippet.
type MessageRef struct {
	ID         int    `json:"id"`
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
}

type Message struct {
	ID            int         `json:"id"`
	ChatID        int         `json:"chat_id"`
	SenderID      int         `json:"sender_id"`
	SenderName    string      `json:"sender_name"`
	Content       string      `json:"content"`
	HasMedia      bool        `json:"has_media"`
	MediaType     string      `json:"media_type,omitempty"`
	MediaName     string      `json:"media_name,omitempty"`
	IsSystem      bool        `json:"is_system"`
	IsEdited      bool        `json:"is_edited"`
	EditedAt      *time.Time  `json:"edited_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	ReplyTo       *MessageRef `json:"reply_to,omitempty"`
	ForwardedFrom *MessageRef `json:"forwarded_from,omitempty"`
	ReadCount     int         `json:"read_count"`
	IsOwn         bool        `json:"is_own"`
}

// NewMessage carries everything needed to persist one message.
type NewMessage struct {
	ChatID        int
	SenderID      int
	Content       string
	Media         []byte
	MediaName     string
	MediaType     string
	ReplyTo       int
	ForwardedFrom int
	IsSystem      bool
}

type Group struct {
	ID          int       `json:"id"`
	ChatID      int       `json:"chat_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatorID   int       `json:"creator_id"`
	HasPhoto    bool      `json:"has_photo"`
	Deleted     bool      `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

type GroupMember struct {
	UserID     int    `json:"user_id"`
	Nickname   string `json:"nickname"`
	AdminLevel int    `json:"admin_level"`
	HasPhoto   bool   `json:"has_photo"`
}

type GroupDetail struct {
	Group
	Members   []GroupMember `json:"members"`
	IsAdmin   bool          `json:"is_admin"`
	IsCreator bool          `json:"is_creator"`
}

var mediaKinds = map[string]string{
	".jpg": MediaImage, ".jpeg": MediaImage, ".png": MediaImage, ".gif": MediaImage, ".webp": MediaImage, ".bmp": MediaImage,
	".mp4": MediaVideo, ".mov": MediaVideo, ".avi": MediaVideo, ".webm": MediaVideo, ".mkv": MediaVideo,
	".mp3": MediaAudio, ".ogg": MediaAudio, ".wav": MediaAudio, ".m4a": MediaAudio, ".flac": MediaAudio,
}

// MediaKindFromName maps a filename to image/video/audio, defaulting to file.
func MediaKindFromName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if kind, ok := mediaKinds[ext]; ok {
		return kind
	}
	return MediaFile
}

// MediaMIME is a rough mime hint for serving stored blobs.
func MediaMIME(kind, name string) string {
	switch kind {
	case MediaImage:
		if strings.HasSuffix(strings.ToLower(name), ".png") {
			return "image/png"
		}
		return "image/jpeg"
	case MediaVideo:
		return "video/mp4"
	case MediaAudio:
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
