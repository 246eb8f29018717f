package types

import (
	"time"
)

type User struct {
	Id        int       `json:"id"`
	Email     string    `json:"email,omitempty"`
	Nickname  string    `json:"nickname"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type Room struct {
	Id         int       `json:"-"`
	ExternalId string    `json:"room_id"`
	MeetId     int       `json:"meet_id"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

type Message struct {
	Id        int       `json:"id"`
	UserId    int       `json:"user_id"`
	Nickname  string    `json:"nickname"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
