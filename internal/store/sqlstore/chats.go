package sqlstore

import (
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/viollenaki/nurtilek/internal/models"
)

const selectDialogByPair = `
	SELECT c.id FROM chats c
	JOIN dialogs d ON d.chat_id = c.id
	WHERE d.user1_id = ? AND d.user2_id = ?`

// GetOrCreateDialog returns the dialog chat for the unordered pair, creating
// chat and dialog rows atomically on first contact.
func (s *SQLStore) GetOrCreateDialog(userID, otherUserID int) (int, error) {
	lo, hi := userID, otherUserID
	if lo > hi {
		lo, hi = hi, lo
	}

	var chatID int
	err := s.db.QueryRow(s.rebind(selectDialogByPair), lo, hi).Scan(&chatID)
	if err == nil {
		return chatID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	err = s.withTx(func(tx *sql.Tx) error {
		if err := tx.QueryRow(s.rebind("INSERT INTO chats (chat_type) VALUES (?) RETURNING id"), models.ChatTypeDialog).Scan(&chatID); err != nil {
			return err
		}
		_, err := tx.Exec(s.rebind("INSERT INTO dialogs (chat_id, user1_id, user2_id) VALUES (?, ?, ?)"), chatID, lo, hi)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			// A concurrent writer created the dialog; return theirs.
			if err2 := s.db.QueryRow(s.rebind(selectDialogByPair), lo, hi).Scan(&chatID); err2 == nil {
				return chatID, nil
			}
		}
		return 0, err
	}
	return chatID, nil
}

// HasChatAccess is the authorization gate: the user must be a side of the
// dialog or an active group member, and the chat must not be soft-deleted.
// It is re-derived from current rows on every call.
func (s *SQLStore) HasChatAccess(chatID, userID int) (bool, error) {
	var ok bool
	err := s.db.QueryRow(s.rebind(`
		SELECT EXISTS(
			SELECT 1 FROM chats c
			WHERE c.id = ? AND c.is_deleted = FALSE AND (
				EXISTS(SELECT 1 FROM dialogs d
					WHERE d.chat_id = c.id AND (d.user1_id = ? OR d.user2_id = ?))
				OR EXISTS(SELECT 1 FROM group_chats g
					JOIN group_members gm ON gm.group_chat_id = g.id
					WHERE g.chat_id = c.id AND gm.user_id = ? AND gm.status = ?)
			)
		)`), chatID, userID, userID, userID, models.MemberActive).Scan(&ok)
	return ok, err
}

// ListChats merges the user's dialogs and active group memberships into one
// feed ordered by last activity.
func (s *SQLStore) ListChats(userID int) ([]models.ChatSummary, error) {
	var chats []models.ChatSummary

	rows, err := s.db.Query(s.rebind(`
		SELECT c.id, u.id, u.nickname, u.profile_photo IS NOT NULL, c.created_at
		FROM chats c
		JOIN dialogs d ON d.chat_id = c.id
		JOIN users u ON u.id = CASE WHEN d.user1_id = ? THEN d.user2_id ELSE d.user1_id END
		WHERE (d.user1_id = ? OR d.user2_id = ?) AND c.is_deleted = FALSE
	`), userID, userID, userID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		c := models.ChatSummary{Type: models.ChatTypeDialog}
		if err := rows.Scan(&c.ID, &c.OtherUserID, &c.Name, &c.HasPhoto, &c.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		chats = append(chats, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.Query(s.rebind(`
		SELECT c.id, g.id, COALESCE(c.chat_name, ''), g.photo IS NOT NULL, c.created_at
		FROM chats c
		JOIN group_chats g ON g.chat_id = c.id
		JOIN group_members gm ON gm.group_chat_id = g.id
		WHERE gm.user_id = ? AND gm.status = ? AND c.is_deleted = FALSE
	`), userID, models.MemberActive)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		c := models.ChatSummary{Type: models.ChatTypeGroup}
		if err := rows.Scan(&c.ID, &c.GroupID, &c.Name, &c.HasPhoto, &c.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		chats = append(chats, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range chats {
		if err := s.annotateChat(&chats[i], userID); err != nil {
			return nil, err
		}
	}

	sort.Slice(chats, func(i, j int) bool {
		ti, tj := chats[i].EffectiveTime(), chats[j].EffectiveTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return chats[i].ID > chats[j].ID
	})
	return chats, nil
}

// annotateChat fills the last-message preview and the unread counter.
func (s *SQLStore) annotateChat(c *models.ChatSummary, userID int) error {
	var content, mediaType, sender string
	var ts time.Time
	err := s.db.QueryRow(s.rebind(`
		SELECT m.content, COALESCE(m.media_type, ''), u.nickname, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.chat_id = ?
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT 1
	`), c.ID).Scan(&content, &mediaType, &sender, &ts)
	switch {
	case err == nil:
		if content == "" && mediaType != "" {
			content = "[" + mediaType + "]"
		}
		c.LastMessage = content
		c.LastSender = sender
		c.LastMessageAt = &ts
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	return s.db.QueryRow(s.rebind(`
		SELECT COUNT(*) FROM messages m
		WHERE m.chat_id = ? AND m.sender_id != ?
		AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = ?)
	`), c.ID, userID, userID).Scan(&c.UnreadCount)
}
