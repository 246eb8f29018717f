package api

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/09OndaProject/onda-chat/internal/chat"
	"github.com/09OndaProject/onda-chat/internal/config"
	"github.com/09OndaProject/onda-chat/internal/database"
	"github.com/09OndaProject/onda-chat/internal/stats"
	"github.com/09OndaProject/onda-chat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("test-signing-key")

func newTestChatApp(t *testing.T, db database.ChatRepository) *ChatApp {
	t.Helper()

	logger := testutil.TestLogger(t)

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return(nil)
	su.On("Incr", mock.Anything).Return(nil).Maybe()
	su.On("Decr", mock.Anything).Return(nil).Maybe()

	registry := chat.NewRegistry(logger, su)
	resolver := chat.NewTokenResolver(testSigningKey, db, logger)
	store := chat.NewMessageStore(db, logger, su, 1)
	cs := chat.NewChatServer(logger, db, registry, resolver, store,
		chat.NewDispatcher(registry, logger), su, nil)

	cfg, err := config.NewConfig("localhost:8080", "postgres://test",
		base64.StdEncoding.EncodeToString(testSigningKey), nil, 0, 0)
	require.NoError(t, err)

	app, err := NewChatApp(http.NewServeMux(), logger, cs, resolver, db, cfg)
	require.NoError(t, err)

	return app
}

func doRequest(t *testing.T, app *ChatApp, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	app.srv.Handler.ServeHTTP(rr, req)

	return rr
}

func sessionToken(t *testing.T, app *ChatApp, userId int) string {
	t.Helper()

	token, err := app.createSessionToken(userId)
	require.NoError(t, err, "expected no error minting session token")

	return token
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("Ping").Return(nil).Once()

		app := newTestChatApp(t, db)
		rr := doRequest(t, app, http.MethodGet, "/healthz", "", "")

		assert.Equal(t, http.StatusOK, rr.Code, "expected 200 when database is reachable")
		assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	})

	t.Run("database down", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("Ping").Return(fmt.Errorf("connection refused")).Once()

		app := newTestChatApp(t, db)
		rr := doRequest(t, app, http.MethodGet, "/healthz", "", "")

		assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected 500 when database is unreachable")
	})
}

func TestRegister(t *testing.T) {
	tcases := []struct {
		name       string
		body       string
		setupMock  func(db *database.MockChatRepository)
		wantStatus int
	}{
		{
			name:       "malformed body",
			body:       "not json",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing fields",
			body:       `{"email":"u1@example.com"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "duplicate email",
			body: `{"email":"u1@example.com","nickname":"u1","password":"secret"}`,
			setupMock: func(db *database.MockChatRepository) {
				db.On("CreateUser", mock.AnythingOfType("database.CreateUserParams")).
					Return(database.User{}, fmt.Errorf("duplicate key value")).Once()
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "success",
			body: `{"email":"u1@example.com","nickname":"u1","password":"secret"}`,
			setupMock: func(db *database.MockChatRepository) {
				db.On("CreateUser", mock.MatchedBy(func(p database.CreateUserParams) bool {
					return p.Email == "u1@example.com" && p.Nickname == "u1" && p.PasswordHash != "secret"
				})).Return(database.User{Id: 1, Email: "u1@example.com", Nickname: "u1", CreatedAt: time.Now()}, nil).Once()
			},
			wantStatus: http.StatusCreated,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockChatRepository{}
			defer db.AssertExpectations(t)
			if tc.setupMock != nil {
				tc.setupMock(db)
			}

			app := newTestChatApp(t, db)
			rr := doRequest(t, app, http.MethodPost, "/api/auth/register", tc.body, "")

			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantStatus == http.StatusCreated {
				var user map[string]interface{}
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &user))
				assert.Equal(t, float64(1), user["id"], "expected created user id in response")
				assert.NotContains(t, rr.Body.String(), "secret", "expected password to be omitted")
			}
		})
	}
}

func TestLogin(t *testing.T) {
	passwdHash, err := hashPassword("password123")
	require.NoError(t, err)

	tcases := []struct {
		name       string
		body       string
		setupMock  func(db *database.MockChatRepository)
		wantStatus int
	}{
		{
			name:       "missing fields",
			body:       `{"email":"u1@example.com"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown email",
			body: `{"email":"nobody@example.com","password":"password123"}`,
			setupMock: func(db *database.MockChatRepository) {
				db.On("GetUserByEmail", "nobody@example.com").Return(database.User{}, sql.ErrNoRows).Once()
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "wrong password",
			body: `{"email":"u1@example.com","password":"wrong"}`,
			setupMock: func(db *database.MockChatRepository) {
				db.On("GetUserByEmail", "u1@example.com").
					Return(database.User{Id: 1, Email: "u1@example.com", PasswordHash: passwdHash}, nil).Once()
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "deleted account",
			body: `{"email":"u1@example.com","password":"password123"}`,
			setupMock: func(db *database.MockChatRepository) {
				db.On("GetUserByEmail", "u1@example.com").
					Return(database.User{Id: 1, Email: "u1@example.com", PasswordHash: passwdHash, IsDeleted: true}, nil).Once()
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "success",
			body: `{"email":"u1@example.com","password":"password123"}`,
			setupMock: func(db *database.MockChatRepository) {
				db.On("GetUserByEmail", "u1@example.com").
					Return(database.User{Id: 1, Email: "u1@example.com", Nickname: "u1", PasswordHash: passwdHash}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockChatRepository{}
			defer db.AssertExpectations(t)
			if tc.setupMock != nil {
				tc.setupMock(db)
			}

			app := newTestChatApp(t, db)
			rr := doRequest(t, app, http.MethodPost, "/api/auth/login", tc.body, "")

			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantStatus == http.StatusOK {
				var lr LoginResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &lr))
				assert.NotEmpty(t, lr.Token, "expected session token in response")
				assert.Equal(t, 1, lr.User.Id, "expected user in response")
			}
		})
	}
}

func TestJoinMeetChat(t *testing.T) {
	authedUser := database.User{Id: 1, Email: "u1@example.com", Nickname: "u1"}

	tcases := []struct {
		name       string
		meetId     string
		withToken  bool
		setupMock  func(db *database.MockChatRepository)
		wantStatus int
		wantJoined bool
	}{
		{
			name:       "unauthenticated",
			meetId:     "1",
			withToken:  false,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid meet id",
			meetId:     "abc",
			withToken:  true,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:      "meet not found",
			meetId:    "99",
			withToken: true,
			setupMock: func(db *database.MockChatRepository) {
				db.On("GetMeet", 99).Return(database.Meet{}, sql.ErrNoRows).Once()
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:      "not a participant",
			meetId:    "1",
			withToken: true,
			setupMock: func(db *database.MockChatRepository) {
				db.On("GetMeet", 1).Return(database.Meet{Id: 1, OwnerId: 2}, nil).Once()
				db.On("IsMeetParticipant", 1, 1).Return(false).Once()
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name:      "participant joins",
			meetId:    "1",
			withToken: true,
			setupMock: func(db *database.MockChatRepository) {
				db.On("GetMeet", 1).Return(database.Meet{Id: 1, OwnerId: 2}, nil).Once()
				db.On("IsMeetParticipant", 1, 1).Return(true).Once()
				db.On("GetOrCreateRoomForMeet", 1, mock.AnythingOfType("string")).
					Return(database.Room{Id: 10, ExternalId: "room-a", MeetId: 1}, true, nil).Once()
				db.On("CreateMembership", 10, 1).Return(true, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantJoined: true,
		},
		{
			name:      "owner joins without applying",
			meetId:    "1",
			withToken: true,
			setupMock: func(db *database.MockChatRepository) {
				db.On("GetMeet", 1).Return(database.Meet{Id: 1, OwnerId: 1}, nil).Once()
				db.On("GetOrCreateRoomForMeet", 1, mock.AnythingOfType("string")).
					Return(database.Room{Id: 10, ExternalId: "room-a", MeetId: 1}, false, nil).Once()
				db.On("CreateMembership", 10, 1).Return(true, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantJoined: true,
		},
		{
			name:      "already a member",
			meetId:    "1",
			withToken: true,
			setupMock: func(db *database.MockChatRepository) {
				db.On("GetMeet", 1).Return(database.Meet{Id: 1, OwnerId: 2}, nil).Once()
				db.On("IsMeetParticipant", 1, 1).Return(true).Once()
				db.On("GetOrCreateRoomForMeet", 1, mock.AnythingOfType("string")).
					Return(database.Room{Id: 10, ExternalId: "room-a", MeetId: 1}, false, nil).Once()
				db.On("CreateMembership", 10, 1).Return(false, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantJoined: false,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockChatRepository{}
			defer db.AssertExpectations(t)
			if tc.withToken {
				db.On("GetUserById", 1).Return(authedUser, nil)
			}
			if tc.setupMock != nil {
				tc.setupMock(db)
			}

			app := newTestChatApp(t, db)

			var token string
			if tc.withToken {
				token = sessionToken(t, app, 1)
			}

			rr := doRequest(t, app, http.MethodPost, "/api/chat/meets/"+tc.meetId+"/join", "", token)

			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantStatus == http.StatusOK {
				var resp JoinRoomResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
				assert.Equal(t, "room-a", resp.RoomId, "expected room external id in response")
				assert.Equal(t, tc.wantJoined, resp.Joined)
			}
		})
	}
}

func TestListMessages(t *testing.T) {
	authedUser := database.User{Id: 1, Email: "u1@example.com", Nickname: "u1"}
	room := database.Room{Id: 10, ExternalId: "room-a", MeetId: 1}

	tcases := []struct {
		name       string
		target     string
		setupMock  func(db *database.MockChatRepository)
		wantStatus int
		wantCount  int
	}{
		{
			name:   "room not found",
			target: "/api/chat/rooms/no-such-room/messages",
			setupMock: func(db *database.MockChatRepository) {
				db.On("GetRoomByExternalId", "no-such-room").Return(database.Room{}, sql.ErrNoRows).Once()
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:   "not a member",
			target: "/api/chat/rooms/room-a/messages",
			setupMock: func(db *database.MockChatRepository) {
				db.On("GetRoomByExternalId", "room-a").Return(room, nil).Once()
				db.On("MembershipExists", 10, 1).Return(false).Once()
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name:   "invalid before cursor",
			target: "/api/chat/rooms/room-a/messages?before=abc",
			setupMock: func(db *database.MockChatRepository) {
				db.On("GetRoomByExternalId", "room-a").Return(room, nil).Once()
				db.On("MembershipExists", 10, 1).Return(true).Once()
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "invalid limit",
			target: "/api/chat/rooms/room-a/messages?limit=abc",
			setupMock: func(db *database.MockChatRepository) {
				db.On("GetRoomByExternalId", "room-a").Return(room, nil).Once()
				db.On("MembershipExists", 10, 1).Return(true).Once()
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "success",
			target: "/api/chat/rooms/room-a/messages?before=100&limit=2",
			setupMock: func(db *database.MockChatRepository) {
				db.On("GetRoomByExternalId", "room-a").Return(room, nil).Once()
				db.On("MembershipExists", 10, 1).Return(true).Once()
				db.On("GetMessages", 10, 100, 2).Return([]database.Message{
					{Id: 99, RoomId: 10, UserId: 3, Nickname: "u3", Content: "later"},
					{Id: 98, RoomId: 10, UserId: 1, Nickname: "u1", Content: "earlier"},
				}, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantCount:  2,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockChatRepository{}
			defer db.AssertExpectations(t)
			db.On("GetUserById", 1).Return(authedUser, nil)
			if tc.setupMock != nil {
				tc.setupMock(db)
			}

			app := newTestChatApp(t, db)
			rr := doRequest(t, app, http.MethodGet, tc.target, "", sessionToken(t, app, 1))

			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantStatus == http.StatusOK {
				var messages []map[string]interface{}
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &messages))
				assert.Len(t, messages, tc.wantCount, "expected message page in response")
				assert.Equal(t, "u3", messages[0]["nickname"], "expected author nickname on messages")
			}
		})
	}
}
