package chat

// ClientFrame is the single inbound frame shape: {"message": "<text>"}.
type ClientFrame struct {
	Message string `json:"message"`
}

// ServerFrame is the payload fanned out to every subscriber of a room.
type ServerFrame struct {
	UserId   int    `json:"user_id"`
	Nickname string `json:"nickname"`
	Message  string `json:"message"`
}
