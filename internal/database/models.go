package database

import "time"

type User struct {
	Id           int
	Email        string
	Nickname     string
	PasswordHash string
	IsDeleted    bool
	DeletedAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Meet struct {
	Id        int
	Title     string
	OwnerId   int
	CreatedAt time.Time
}

type Room struct {
	Id         int
	ExternalId string
	MeetId     int
	CreatedAt  time.Time
}

type Membership struct {
	Id       int
	RoomId   int
	UserId   int
	JoinedAt time.Time
}

type Message struct {
	Id        int
	RoomId    int
	UserId    int
	Nickname  string
	Content   string
	CreatedAt time.Time
}

type CreateUserParams struct {
	Email        string
	Nickname     string
	PasswordHash string
}

type CreateMessageParams struct {
	RoomId  int
	UserId  int
	Content string
}
