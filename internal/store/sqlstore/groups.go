package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/viollenaki/nurtilek/internal/apperr"
	"github.com/viollenaki/nurtilek/internal/models"
)

func (s *SQLStore) insertSystemMessage(tx *sql.Tx, chatID, senderID int, content string) error {
	_, err := tx.Exec(s.rebind(
		"INSERT INTO messages (chat_id, sender_id, content, is_system) VALUES (?, ?, ?, ?)"),
		chatID, senderID, content, true)
	return err
}

func (s *SQLStore) nicknameOf(tx *sql.Tx, userID int) (string, error) {
	var nickname string
	err := tx.QueryRow(s.rebind("SELECT nickname FROM users WHERE id = ?"), userID).Scan(&nickname)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.Wrap(apperr.NotFound, fmt.Sprintf("user %d not found", userID), err)
	}
	return nickname, err
}

// CreateGroup creates chat, group, creator admin row, memberships and the
// announcement message in one transaction. Any unknown member aborts the whole
// operation.
func (s *SQLStore) CreateGroup(creatorID int, name, description string, memberIDs []int, photo []byte) (int, int, error) {
	var chatID, groupID int

	// Creator is always a member, listed or not.
	ids := []int{creatorID}
	seen := map[int]bool{creatorID: true}
	for _, id := range memberIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	err := s.withTx(func(tx *sql.Tx) error {
		creatorNick, err := s.nicknameOf(tx, creatorID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := s.nicknameOf(tx, id); err != nil {
				return err
			}
		}

		if err := tx.QueryRow(s.rebind("INSERT INTO chats (chat_name, chat_type) VALUES (?, ?) RETURNING id"),
			name, models.ChatTypeGroup).Scan(&chatID); err != nil {
			return err
		}
		if err := tx.QueryRow(s.rebind("INSERT INTO group_chats (chat_id, creator_id, description, photo) VALUES (?, ?, ?, ?) RETURNING id"),
			chatID, creatorID, description, nullIfNoBytes(photo)).Scan(&groupID); err != nil {
			return err
		}
		if _, err := tx.Exec(s.rebind("INSERT INTO group_admins (group_chat_id, user_id, level) VALUES (?, ?, ?)"),
			groupID, creatorID, models.AdminLevelCreator); err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := tx.Exec(s.rebind("INSERT INTO group_members (group_chat_id, user_id, status, invited_by) VALUES (?, ?, ?, ?)"),
				groupID, id, models.MemberActive, creatorID); err != nil {
				return err
			}
		}
		return s.insertSystemMessage(tx, chatID, creatorID,
			fmt.Sprintf("%s created the group %q", creatorNick, name))
	})
	if err != nil {
		return 0, 0, err
	}
	return chatID, groupID, nil
}

func (s *SQLStore) GetGroup(groupID int) (*models.Group, error) {
	var g models.Group
	err := s.db.QueryRow(s.rebind(`
		SELECT g.id, g.chat_id, COALESCE(c.chat_name, ''), g.description, g.creator_id,
		       g.photo IS NOT NULL, c.is_deleted, c.created_at
		FROM group_chats g
		JOIN chats c ON c.id = g.chat_id
		WHERE g.id = ?
	`), groupID).Scan(&g.ID, &g.ChatID, &g.Name, &g.Description, &g.CreatorID, &g.HasPhoto, &g.Deleted, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Wrap(apperr.NotFound, "group not found", err)
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// GetGroupInfo returns the group with its active members, sorted by admin
// level descending then nickname.
func (s *SQLStore) GetGroupInfo(groupID, requesterID int) (*models.GroupDetail, error) {
	g, err := s.GetGroup(groupID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(s.rebind(`
		SELECT u.id, u.nickname, COALESCE(a.level, 0), u.profile_photo IS NOT NULL
		FROM group_members gm
		JOIN users u ON u.id = gm.user_id
		LEFT JOIN group_admins a ON a.group_chat_id = gm.group_chat_id AND a.user_id = gm.user_id
		WHERE gm.group_chat_id = ? AND gm.status = ?
		ORDER BY COALESCE(a.level, 0) DESC, u.nickname ASC
	`), groupID, models.MemberActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	detail := &models.GroupDetail{Group: *g}
	for rows.Next() {
		var m models.GroupMember
		if err := rows.Scan(&m.UserID, &m.Nickname, &m.AdminLevel, &m.HasPhoto); err != nil {
			return nil, err
		}
		if m.UserID == requesterID {
			detail.IsAdmin = m.AdminLevel >= models.AdminLevelAdmin
			detail.IsCreator = m.AdminLevel == models.AdminLevelCreator
		}
		detail.Members = append(detail.Members, m)
	}
	return detail, rows.Err()
}

func (s *SQLStore) UpdateGroup(groupID, actorID int, name, description string, photo []byte) error {
	g, err := s.GetGroup(groupID)
	if err != nil {
		return err
	}
	return s.withTx(func(tx *sql.Tx) error {
		actorNick, err := s.nicknameOf(tx, actorID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(s.rebind("UPDATE chats SET chat_name = ? WHERE id = ?"), name, g.ChatID); err != nil {
			return err
		}
		if photo != nil {
			_, err = tx.Exec(s.rebind("UPDATE group_chats SET description = ?, photo = ? WHERE id = ?"), description, photo, groupID)
		} else {
			_, err = tx.Exec(s.rebind("UPDATE group_chats SET description = ? WHERE id = ?"), description, groupID)
		}
		if err != nil {
			return err
		}
		return s.insertSystemMessage(tx, g.ChatID, actorID, fmt.Sprintf("%s updated the group info", actorNick))
	})
}

// AddGroupMembers invites users: unknown ids and already-active members are
// skipped, previously left/removed members are reactivated. Returns the
// nicknames actually added.
func (s *SQLStore) AddGroupMembers(groupID, inviterID int, userIDs []int) ([]string, error) {
	g, err := s.GetGroup(groupID)
	if err != nil {
		return nil, err
	}

	var added []string
	err = s.withTx(func(tx *sql.Tx) error {
		inviterNick, err := s.nicknameOf(tx, inviterID)
		if err != nil {
			return err
		}
		for _, id := range userIDs {
			var nickname string
			err := tx.QueryRow(s.rebind("SELECT nickname FROM users WHERE id = ?"), id).Scan(&nickname)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return err
			}

			var status string
			err = tx.QueryRow(s.rebind("SELECT status FROM group_members WHERE group_chat_id = ? AND user_id = ?"), groupID, id).Scan(&status)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				if _, err := tx.Exec(s.rebind("INSERT INTO group_members (group_chat_id, user_id, status, invited_by) VALUES (?, ?, ?, ?)"),
					groupID, id, models.MemberActive, inviterID); err != nil {
					return err
				}
			case err != nil:
				return err
			case status == models.MemberActive:
				continue
			default:
				if _, err := tx.Exec(s.rebind("UPDATE group_members SET status = ?, invited_by = ? WHERE group_chat_id = ? AND user_id = ?"),
					models.MemberActive, inviterID, groupID, id); err != nil {
					return err
				}
			}
			added = append(added, nickname)
		}
		if len(added) == 0 {
			return nil
		}
		return s.insertSystemMessage(tx, g.ChatID, inviterID,
			fmt.Sprintf("%s added %s", inviterNick, strings.Join(added, ", ")))
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveGroupMember marks the target removed and drops any admin row. Role
// checks (creator unremovable, admins only removable by the creator) are the
// handler's job.
func (s *SQLStore) RemoveGroupMember(groupID, actorID, targetID int) error {
	g, err := s.GetGroup(groupID)
	if err != nil {
		return err
	}
	return s.withTx(func(tx *sql.Tx) error {
		actorNick, err := s.nicknameOf(tx, actorID)
		if err != nil {
			return err
		}
		targetNick, err := s.nicknameOf(tx, targetID)
		if err != nil {
			return err
		}
		res, err := tx.Exec(s.rebind("UPDATE group_members SET status = ? WHERE group_chat_id = ? AND user_id = ? AND status = ?"),
			models.MemberRemoved, groupID, targetID, models.MemberActive)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.New(apperr.NotFound, "user is not an active member")
		}
		if _, err := tx.Exec(s.rebind("DELETE FROM group_admins WHERE group_chat_id = ? AND user_id = ?"), groupID, targetID); err != nil {
			return err
		}
		return s.insertSystemMessage(tx, g.ChatID, actorID,
			fmt.Sprintf("%s removed %s", actorNick, targetNick))
	})
}

// SetGroupAdmin grants or revokes level-1 admin rights. Creator-only and
// self-target rules are enforced by the handler.
func (s *SQLStore) SetGroupAdmin(groupID, actorID, targetID int, makeAdmin bool) error {
	g, err := s.GetGroup(groupID)
	if err != nil {
		return err
	}

	upsert := "INSERT OR REPLACE INTO group_admins (group_chat_id, user_id, level) VALUES (?, ?, ?)"
	if s.driverName == "postgres" {
		upsert = "INSERT INTO group_admins (group_chat_id, user_id, level) VALUES (?, ?, ?) " +
			"ON CONFLICT (group_chat_id, user_id) DO UPDATE SET level = EXCLUDED.level"
	}

	return s.withTx(func(tx *sql.Tx) error {
		actorNick, err := s.nicknameOf(tx, actorID)
		if err != nil {
			return err
		}
		targetNick, err := s.nicknameOf(tx, targetID)
		if err != nil {
			return err
		}
		var note string
		if makeAdmin {
			if _, err := tx.Exec(s.rebind(upsert), groupID, targetID, models.AdminLevelAdmin); err != nil {
				return err
			}
			note = fmt.Sprintf("%s made %s an admin", actorNick, targetNick)
		} else {
			if _, err := tx.Exec(s.rebind("DELETE FROM group_admins WHERE group_chat_id = ? AND user_id = ?"), groupID, targetID); err != nil {
				return err
			}
			note = fmt.Sprintf("%s revoked admin rights from %s", actorNick, targetNick)
		}
		return s.insertSystemMessage(tx, g.ChatID, actorID, note)
	})
}

func (s *SQLStore) GroupAdminLevel(groupID, userID int) (int, error) {
	var level int
	err := s.db.QueryRow(s.rebind("SELECT level FROM group_admins WHERE group_chat_id = ? AND user_id = ?"), groupID, userID).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AdminLevelNone, nil
	}
	return level, err
}

func (s *SQLStore) IsActiveMember(groupID, userID int) (bool, error) {
	var ok bool
	err := s.db.QueryRow(s.rebind(
		"SELECT EXISTS(SELECT 1 FROM group_members WHERE group_chat_id = ? AND user_id = ? AND status = ?)"),
		groupID, userID, models.MemberActive).Scan(&ok)
	return ok, err
}

func (s *SQLStore) LeaveGroup(groupID, userID int) error {
	g, err := s.GetGroup(groupID)
	if err != nil {
		return err
	}
	return s.withTx(func(tx *sql.Tx) error {
		nick, err := s.nicknameOf(tx, userID)
		if err != nil {
			return err
		}
		res, err := tx.Exec(s.rebind("UPDATE group_members SET status = ? WHERE group_chat_id = ? AND user_id = ? AND status = ?"),
			models.MemberLeft, groupID, userID, models.MemberActive)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.New(apperr.NotFound, "user is not an active member")
		}
		if _, err := tx.Exec(s.rebind("DELETE FROM group_admins WHERE group_chat_id = ? AND user_id = ?"), groupID, userID); err != nil {
			return err
		}
		return s.insertSystemMessage(tx, g.ChatID, userID, fmt.Sprintf("%s left the group", nick))
	})
}

// DeleteGroup marks every membership removed and soft-deletes the chat. Rows
// are retained.
func (s *SQLStore) DeleteGroup(groupID int) error {
	g, err := s.GetGroup(groupID)
	if err != nil {
		return err
	}
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(s.rebind("UPDATE group_members SET status = ? WHERE group_chat_id = ?"),
			models.MemberRemoved, groupID); err != nil {
			return err
		}
		_, err := tx.Exec(s.rebind("UPDATE chats SET is_deleted = TRUE WHERE id = ?"), g.ChatID)
		return err
	})
}

func (s *SQLStore) GetGroupPhoto(groupID int) ([]byte, error) {
	var photo []byte
	err := s.db.QueryRow(s.rebind("SELECT photo FROM group_chats WHERE id = ?"), groupID).Scan(&photo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Wrap(apperr.NotFound, "group not found", err)
	}
	if err != nil {
		return nil, err
	}
	return photo, nil
}
