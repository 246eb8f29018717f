package database

import "time"

type ChatRepository interface {
	Ping() error
	CreateUser(params CreateUserParams) (User, error)
	GetUserById(userId int) (User, error)
	GetUserByEmail(email string) (User, error)
	GetMeet(meetId int) (Meet, error)
	IsMeetParticipant(meetId, userId int) bool
	GetOrCreateRoomForMeet(meetId int, externalId string) (Room, bool, error)
	GetRoomByExternalId(externalId string) (Room, error)
	CreateMembership(roomId, userId int) (bool, error)
	MembershipExists(roomId, userId int) bool
	DeleteMembership(roomId, userId int) error
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessages(roomId, before, limit int) ([]Message, error)
	PurgeMessagesOfDeletedUsers(cutoff time.Time) (int64, error)
}
