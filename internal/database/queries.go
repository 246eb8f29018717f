package database

import (
	"fmt"
	"time"
)

func (db *PgChatRepository) CreateUser(params CreateUserParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO users (email, nickname, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, email, nickname, created_at",
		params.Email,
		params.Nickname,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Email,
		&u.Nickname,
		&u.CreatedAt,
	)

	return u, err
}

func (db *PgChatRepository) GetUserById(userId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, email, nickname, is_deleted, created_at FROM users "+
			"WHERE id = $1 LIMIT 1",
		userId,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Email,
		&u.Nickname,
		&u.IsDeleted,
		&u.CreatedAt,
	)

	return u, err
}

func (db *PgChatRepository) GetUserByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, email, nickname, password_hash, is_deleted, created_at FROM users "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Email,
		&u.Nickname,
		&u.PasswordHash,
		&u.IsDeleted,
		&u.CreatedAt,
	)

	return u, err
}

func (db *PgChatRepository) GetMeet(meetId int) (Meet, error) {
	row := db.conn.QueryRow(
		"SELECT id, title, owner_id, created_at FROM meets WHERE id = $1 LIMIT 1",
		meetId,
	)

	var m Meet
	err := row.Scan(
		&m.Id,
		&m.Title,
		&m.OwnerId,
		&m.CreatedAt,
	)

	return m, err
}

func (db *PgChatRepository) IsMeetParticipant(meetId, userId int) bool {
	row := db.conn.QueryRow(
		"SELECT id FROM meet_applies WHERE meet_id = $1 AND user_id = $2 LIMIT 1",
		meetId,
		userId,
	)

	var id int
	return row.Scan(&id) == nil
}

// GetOrCreateRoomForMeet returns the meet's room, creating it on first use.
// The boolean reports whether a new room was created. A meet has at most one
// room; concurrent callers race on the unique meet_id constraint and the
// loser reads the winner's row.
func (db *PgChatRepository) GetOrCreateRoomForMeet(meetId int, externalId string) (Room, bool, error) {
	res := db.conn.QueryRow(
		"INSERT INTO chat_rooms (external_id, meet_id, created_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (meet_id) DO NOTHING RETURNING id, external_id, meet_id, created_at",
		externalId,
		meetId,
		time.Now().UTC(),
	)

	var room Room
	err := res.Scan(
		&room.Id,
		&room.ExternalId,
		&room.MeetId,
		&room.CreatedAt,
	)
	if err == nil {
		return room, true, nil
	}

	row := db.conn.QueryRow(
		"SELECT id, external_id, meet_id, created_at FROM chat_rooms WHERE meet_id = $1 LIMIT 1",
		meetId,
	)

	err = row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.MeetId,
		&room.CreatedAt,
	)
	if err != nil {
		return Room{}, false, fmt.Errorf("get or create room for meet %d: %w", meetId, err)
	}

	return room, false, nil
}

func (db *PgChatRepository) GetRoomByExternalId(externalId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, meet_id, created_at FROM chat_rooms "+
			"WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.MeetId,
		&room.CreatedAt,
	)

	return room, err
}

// CreateMembership is idempotent: joining a room twice leaves a single row.
// The boolean reports whether a new membership was inserted.
func (db *PgChatRepository) CreateMembership(roomId, userId int) (bool, error) {
	res, err := db.conn.Exec(
		"INSERT INTO chat_memberships (room_id, user_id, joined_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (room_id, user_id) DO NOTHING",
		roomId,
		userId,
		time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *PgChatRepository) MembershipExists(roomId, userId int) bool {
	row := db.conn.QueryRow(
		"SELECT id FROM chat_memberships WHERE room_id = $1 AND user_id = $2 LIMIT 1",
		roomId,
		userId,
	)

	var id int
	return row.Scan(&id) == nil
}

func (db *PgChatRepository) DeleteMembership(roomId, userId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM chat_memberships WHERE room_id = $1 AND user_id = $2",
		roomId,
		userId,
	)

	return err
}

// CreateMessage stores a chat message and returns the stored row. The insert
// is guarded on a current membership, so a sender whose membership was
// revoked after admission gets sql.ErrNoRows instead of a row.
func (db *PgChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO chat_messages (room_id, user_id, content, created_at) "+
			"SELECT $1, $2, $3, $4 "+
			"WHERE EXISTS (SELECT 1 FROM chat_memberships WHERE room_id = $1 AND user_id = $2) "+
			"RETURNING id, created_at",
		params.RoomId,
		params.UserId,
		params.Content,
		time.Now().UTC(),
	)

	msg := Message{
		RoomId:  params.RoomId,
		UserId:  params.UserId,
		Content: params.Content,
	}
	err := res.Scan(&msg.Id, &msg.CreatedAt)

	return msg, err
}

func (db *PgChatRepository) GetMessages(roomId, before, limit int) ([]Message, error) {
	var upper int = 1<<31 - 1
	if before > 0 {
		upper = before - 1
	}

	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT m.id, m.room_id, m.user_id, u.nickname, m.content, m.created_at "+
			"FROM chat_messages m JOIN users u ON m.user_id = u.id "+
			"WHERE m.room_id = $1 AND m.id <= $2 ORDER BY m.id DESC LIMIT $3",
		roomId,
		upper,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Id, &msg.RoomId, &msg.UserId, &msg.Nickname, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// PurgeMessagesOfDeletedUsers removes messages authored by accounts deleted
// before the cutoff. Returns the number of messages removed.
func (db *PgChatRepository) PurgeMessagesOfDeletedUsers(cutoff time.Time) (int64, error) {
	res, err := db.conn.Exec(
		"DELETE FROM chat_messages WHERE user_id IN "+
			"(SELECT id FROM users WHERE is_deleted = TRUE AND deleted_at <= $1)",
		cutoff,
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
