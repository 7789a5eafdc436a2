package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viollenaki/nurtilek/internal/apperr"
	"github.com/viollenaki/nurtilek/internal/models"
)

func TestCreateUser(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateUser("alice", "hash", "alice@example.com", []byte{1, 2, 3})
	require.NoError(t, err)
	assert.NotZero(t, id)

	user, err := s.GetUserByNickname("alice")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, user.HasPhoto)
	assert.True(t, user.IsVerified)

	// Duplicate nickname surfaces as a conflict.
	_, err = s.CreateUser("alice", "hash", "", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	// Duplicate email too.
	_, err = s.CreateUser("bob", "hash", "alice@example.com", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
}

func TestCreateUserWithoutEmail(t *testing.T) {
	s := newTestStore(t)

	// Two email-less users must not collide on the unique email column.
	createUser(t, s, "alice")
	createUser(t, s, "bob")

	user, err := s.GetUserByNickname("alice")
	require.NoError(t, err)
	assert.Empty(t, user.Email)
	assert.False(t, user.IsVerified)
	assert.False(t, user.HasPhoto)
}

func TestGetUserNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetUserByNickname("ghost")
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	_, err = s.GetUserByID(99)
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestUpdateUser(t *testing.T) {
	s := newTestStore(t)
	alice := createUser(t, s, "alice")
	createUser(t, s, "bob")

	err := s.UpdateUser(alice, models.UserUpdate{})
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	newNick := "alice2"
	newHash := "new-hash"
	err = s.UpdateUser(alice, models.UserUpdate{Nickname: &newNick, Password: &newHash, Photo: []byte{9}})
	require.NoError(t, err)

	user, err := s.GetUserByID(alice)
	require.NoError(t, err)
	assert.Equal(t, "alice2", user.Nickname)
	assert.Equal(t, "new-hash", user.Password)
	assert.True(t, user.HasPhoto)

	taken := "bob"
	err = s.UpdateUser(alice, models.UserUpdate{Nickname: &taken})
	require.Error(t, err)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
}

func TestSearchUsers(t *testing.T) {
	s := newTestStore(t)
	caller := createUser(t, s, "albert")
	createUser(t, s, "alice")
	createUser(t, s, "Alina")
	createUser(t, s, "bob")
	createUser(t, s, "natalia")

	// Case-insensitive, caller excluded, prefix matches first.
	users, total, err := s.SearchUsers(caller, "al", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, users, 3)
	assert.Equal(t, "Alina", users[0].Nickname)
	assert.Equal(t, "alice", users[1].Nickname)
	assert.Equal(t, "natalia", users[2].Nickname)

	// Pagination still reports the full total.
	users, total, err = s.SearchUsers(caller, "al", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, users, 1)
	assert.Equal(t, "natalia", users[0].Nickname)
}

func TestGetUserPhoto(t *testing.T) {
	s := newTestStore(t)
	alice := createUser(t, s, "alice")

	photo, err := s.GetUserPhoto(alice)
	require.NoError(t, err)
	assert.Nil(t, photo)

	require.NoError(t, s.UpdateUser(alice, models.UserUpdate{Photo: []byte{0xFF, 0xD8}}))
	photo, err = s.GetUserPhoto(alice)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, photo)

	_, err = s.GetUserPhoto(99)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}
