package store

import "github.com/viollenaki/nurtilek/internal/models"

type Store interface {
	// User operations
	NicknameExists(nickname string) (bool, error)
	EmailExists(email string) (bool, error)
	CreateUser(nickname, passwordHash, email string, photo []byte) (int, error)
	GetUserByNickname(nickname string) (*models.User, error)
	GetUserByID(id int) (*models.User, error)
	UpdateUser(id int, upd models.UserUpdate) error
	SearchUsers(callerID int, query string, limit, offset int) ([]models.UserSummary, int, error)
	GetUserPhoto(id int) ([]byte, error)
	TouchUser(id int) error

	// Dialogs and the unified feed
	GetOrCreateDialog(userID, otherUserID int) (int, error)
	ListChats(userID int) ([]models.ChatSummary, error)
	HasChatAccess(chatID, userID int) (bool, error)

	// Messages
	CreateMessage(msg models.NewMessage) (*models.Message, error)
	ListMessages(chatID, requesterID, limit, offset int) ([]models.Message, bool, error)
	ListMessagesAfter(chatID, requesterID, afterID int) ([]models.Message, error)
	GetMessageMedia(messageID int) (chatID int, data []byte, mediaType, mediaName string, err error)

	// Groups
	CreateGroup(creatorID int, name, description string, memberIDs []int, photo []byte) (chatID, groupID int, err error)
	GetGroup(groupID int) (*models.Group, error)
	GetGroupInfo(groupID, requesterID int) (*models.GroupDetail, error)
	UpdateGroup(groupID, actorID int, name, description string, photo []byte) error
	AddGroupMembers(groupID, inviterID int, userIDs []int) ([]string, error)
	RemoveGroupMember(groupID, actorID, targetID int) error
	SetGroupAdmin(groupID, actorID, targetID int, makeAdmin bool) error
	GroupAdminLevel(groupID, userID int) (int, error)
	IsActiveMember(groupID, userID int) (bool, error)
	LeaveGroup(groupID, userID int) error
	DeleteGroup(groupID int) error
	GetGroupPhoto(groupID int) ([]byte, error)
}
