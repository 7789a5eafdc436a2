package sqlstore

import (
	"database/sql"
	"errors"

	"github.com/viollenaki/nurtilek/internal/apperr"
	"github.com/viollenaki/nurtilek/internal/models"
)

const selectMessage = `
	SELECT m.id, m.chat_id, m.sender_id, u.nickname, m.content,
	       m.media IS NOT NULL, COALESCE(m.media_type, ''), COALESCE(m.media_name, ''),
	       m.is_system, m.is_edited, m.edited_at, m.created_at,
	       m.reply_to_id, m.forwarded_from_id,
	       (SELECT COUNT(*) FROM message_reads r WHERE r.message_id = m.id)
	FROM messages m
	JOIN users u ON u.id = m.sender_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, sql.NullInt64, sql.NullInt64, error) {
	var m models.Message
	var editedAt sql.NullTime
	var reply, fwd sql.NullInt64
	err := row.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.SenderName, &m.Content,
		&m.HasMedia, &m.MediaType, &m.MediaName,
		&m.IsSystem, &m.IsEdited, &editedAt, &m.CreatedAt,
		&reply, &fwd, &m.ReadCount)
	if err != nil {
		return nil, reply, fwd, err
	}
	if editedAt.Valid {
		t := editedAt.Time
		m.EditedAt = &t
	}
	return &m, reply, fwd, nil
}

// resolveRef loads a reply/forward snippet; a dangling id resolves to nil.
func (s *SQLStore) resolveRef(id int64) (*models.MessageRef, error) {
	var ref models.MessageRef
	var mediaType string
	err := s.db.QueryRow(s.rebind(`
		SELECT m.id, u.nickname, m.content, COALESCE(m.media_type, '')
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id = ?
	`), id).Scan(&ref.ID, &ref.SenderName, &ref.Content, &mediaType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ref.Content == "" && mediaType != "" {
		ref.Content = "[" + mediaType + "]"
	}
	return &ref, nil
}

func (s *SQLStore) hydrate(m *models.Message, reply, fwd sql.NullInt64, requesterID int) error {
	m.IsOwn = m.SenderID == requesterID
	if reply.Valid {
		ref, err := s.resolveRef(reply.Int64)
		if err != nil {
			return err
		}
		m.ReplyTo = ref
	}
	if fwd.Valid {
		ref, err := s.resolveRef(fwd.Int64)
		if err != nil {
			return err
		}
		m.ForwardedFrom = ref
	}
	return nil
}

// CreateMessage persists one message atomically, checking that a reply target
// lives in the same chat. Access control is the caller's job.
func (s *SQLStore) CreateMessage(msg models.NewMessage) (*models.Message, error) {
	var id int
	err := s.withTx(func(tx *sql.Tx) error {
		if msg.ReplyTo != 0 {
			var replyChat int
			err := tx.QueryRow(s.rebind("SELECT chat_id FROM messages WHERE id = ?"), msg.ReplyTo).Scan(&replyChat)
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.New(apperr.NotFound, "reply target not found")
			}
			if err != nil {
				return err
			}
			if replyChat != msg.ChatID {
				return apperr.New(apperr.Validation, "reply target is in another chat")
			}
		}
		if msg.ForwardedFrom != 0 {
			var exists bool
			err := tx.QueryRow(s.rebind("SELECT EXISTS(SELECT 1 FROM messages WHERE id = ?)"), msg.ForwardedFrom).Scan(&exists)
			if err != nil {
				return err
			}
			if !exists {
				return apperr.New(apperr.NotFound, "forwarded message not found")
			}
		}
		return tx.QueryRow(s.rebind(`
			INSERT INTO messages (chat_id, sender_id, content, media, media_type, media_name, reply_to_id, forwarded_from_id, is_system)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id
		`), msg.ChatID, msg.SenderID, msg.Content,
			nullIfNoBytes(msg.Media), nullIfEmpty(msg.MediaType), nullIfEmpty(msg.MediaName),
			nullIfZero(msg.ReplyTo), nullIfZero(msg.ForwardedFrom), msg.IsSystem).Scan(&id)
	})
	if err != nil {
		return nil, err
	}
	return s.getMessage(id, msg.SenderID)
}

func (s *SQLStore) getMessage(id, requesterID int) (*models.Message, error) {
	m, reply, fwd, err := scanMessage(s.db.QueryRow(s.rebind(selectMessage+" WHERE m.id = ?"), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Wrap(apperr.NotFound, "message not found", err)
	}
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(m, reply, fwd, requesterID); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns the newest-first page and, as a side effect, marks the
// fetched messages not authored by the requester as read. hasMore reports
// whether the page came back full.
func (s *SQLStore) ListMessages(chatID, requesterID, limit, offset int) ([]models.Message, bool, error) {
	msgs, err := s.queryMessages(requesterID,
		selectMessage+" WHERE m.chat_id = ? ORDER BY m.created_at DESC, m.id DESC LIMIT ? OFFSET ?",
		chatID, limit, offset)
	if err != nil {
		return nil, false, err
	}

	var unread []int
	for _, m := range msgs {
		if !m.IsOwn {
			unread = append(unread, m.ID)
		}
	}
	if len(unread) > 0 {
		insert := s.rebind(s.ignoreConflict("INSERT INTO message_reads (message_id, user_id) VALUES (?, ?)"))
		err = s.withTx(func(tx *sql.Tx) error {
			for _, id := range unread {
				if _, err := tx.Exec(insert, id, requesterID); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, false, err
		}
	}

	return msgs, len(msgs) == limit && limit > 0, nil
}

// ListMessagesAfter is the polling mode: everything newer than afterID,
// newest-first, with no read-state side effects.
func (s *SQLStore) ListMessagesAfter(chatID, requesterID, afterID int) ([]models.Message, error) {
	return s.queryMessages(requesterID,
		selectMessage+" WHERE m.chat_id = ? AND m.id > ? ORDER BY m.created_at DESC, m.id DESC",
		chatID, afterID)
}

func (s *SQLStore) queryMessages(requesterID int, query string, args ...any) ([]models.Message, error) {
	rows, err := s.db.Query(s.rebind(query), args...)
	if err != nil {
		return nil, err
	}

	type pending struct {
		idx        int
		reply, fwd sql.NullInt64
	}
	var msgs []models.Message
	var refs []pending
	for rows.Next() {
		m, reply, fwd, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		m.IsOwn = m.SenderID == requesterID
		msgs = append(msgs, *m)
		if reply.Valid || fwd.Valid {
			refs = append(refs, pending{idx: len(msgs) - 1, reply: reply, fwd: fwd})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Resolve snippets after the row cursor is closed.
	for _, p := range refs {
		if err := s.hydrate(&msgs[p.idx], p.reply, p.fwd, requesterID); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

// GetMessageMedia returns the blob of a message together with its chat id so
// the caller can re-check access before releasing it.
func (s *SQLStore) GetMessageMedia(messageID int) (int, []byte, string, string, error) {
	var chatID int
	var data []byte
	var mediaType, mediaName string
	err := s.db.QueryRow(s.rebind(`
		SELECT chat_id, media, COALESCE(media_type, ''), COALESCE(media_name, '')
		FROM messages WHERE id = ?
	`), messageID).Scan(&chatID, &data, &mediaType, &mediaName)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, "", "", apperr.Wrap(apperr.NotFound, "message not found", err)
	}
	if err != nil {
		return 0, nil, "", "", err
	}
	if len(data) == 0 {
		return 0, nil, "", "", apperr.New(apperr.NotFound, "message has no media")
	}
	return chatID, data, mediaType, mediaName, nil
}
