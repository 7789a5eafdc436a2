package sqlstore

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/viollenaki/nurtilek/internal/apperr"
	"github.com/viollenaki/nurtilek/internal/models"
)

const userColumns = `id, nickname, COALESCE(email, ''), password, profile_photo IS NOT NULL, is_verified, created_at, last_active`

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Nickname, &u.Email, &u.Password, &u.HasPhoto, &u.IsVerified, &u.CreatedAt, &u.LastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Wrap(apperr.NotFound, "user not found", err)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLStore) NicknameExists(nickname string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(s.rebind("SELECT EXISTS(SELECT 1 FROM users WHERE nickname = ?)"), nickname).Scan(&exists)
	return exists, err
}

func (s *SQLStore) EmailExists(email string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(s.rebind("SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)"), email).Scan(&exists)
	return exists, err
}

func (s *SQLStore) CreateUser(nickname, passwordHash, email string, photo []byte) (int, error) {
	var id int
	verified := email != ""
	query := s.rebind("INSERT INTO users (nickname, password, email, profile_photo, is_verified) VALUES (?, ?, ?, ?, ?) RETURNING id")
	err := s.db.QueryRow(query, nickname, passwordHash, nullIfEmpty(email), nullIfNoBytes(photo), verified).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, apperr.Wrap(apperr.Conflict, "nickname or email already taken", err)
		}
		return 0, err
	}
	return id, nil
}

func (s *SQLStore) GetUserByNickname(nickname string) (*models.User, error) {
	return scanUser(s.db.QueryRow(s.rebind("SELECT "+userColumns+" FROM users WHERE nickname = ?"), nickname))
}

func (s *SQLStore) GetUserByID(id int) (*models.User, error) {
	return scanUser(s.db.QueryRow(s.rebind("SELECT "+userColumns+" FROM users WHERE id = ?"), id))
}

// UpdateUser applies the supplied fields only. The SET clause is assembled
// from fixed column names, never from request data.
func (s *SQLStore) UpdateUser(id int, upd models.UserUpdate) error {
	var sets []string
	var args []any
	if upd.Nickname != nil {
		sets = append(sets, "nickname = ?")
		args = append(args, *upd.Nickname)
	}
	if upd.Password != nil {
		sets = append(sets, "password = ?")
		args = append(args, *upd.Password)
	}
	if upd.Photo != nil {
		sets = append(sets, "profile_photo = ?")
		args = append(args, upd.Photo)
	}
	if len(sets) == 0 {
		return apperr.New(apperr.Validation, "nothing to update")
	}
	args = append(args, id)
	query := s.rebind("UPDATE users SET " + strings.Join(sets, ", ") + " WHERE id = ?")
	if _, err := s.db.Exec(query, args...); err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(apperr.Conflict, "nickname already taken", err)
		}
		return err
	}
	return nil
}

// SearchUsers is a case-insensitive substring match on nickname, excluding the
// caller, with prefix matches ranked first.
func (s *SQLStore) SearchUsers(callerID int, query string, limit, offset int) ([]models.UserSummary, int, error) {
	q := strings.ToLower(query)
	where := "id != ? AND LOWER(nickname) LIKE ?"

	var total int
	err := s.db.QueryRow(s.rebind("SELECT COUNT(*) FROM users WHERE "+where), callerID, "%"+q+"%").Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(s.rebind(`
		SELECT id, nickname, profile_photo IS NOT NULL
		FROM users
		WHERE `+where+`
		ORDER BY CASE WHEN LOWER(nickname) LIKE ? THEN 0 ELSE 1 END, nickname
		LIMIT ? OFFSET ?
	`), callerID, "%"+q+"%", q+"%", limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []models.UserSummary
	for rows.Next() {
		var u models.UserSummary
		if err := rows.Scan(&u.ID, &u.Nickname, &u.HasPhoto); err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// GetUserPhoto returns the stored blob, or nil when the user has none.
func (s *SQLStore) GetUserPhoto(id int) ([]byte, error) {
	var photo []byte
	err := s.db.QueryRow(s.rebind("SELECT profile_photo FROM users WHERE id = ?"), id).Scan(&photo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Wrap(apperr.NotFound, "user not found", err)
	}
	if err != nil {
		return nil, err
	}
	return photo, nil
}

func (s *SQLStore) TouchUser(id int) error {
	_, err := s.db.Exec(s.rebind("UPDATE users SET last_active = CURRENT_TIMESTAMP WHERE id = ?"), id)
	return err
}
