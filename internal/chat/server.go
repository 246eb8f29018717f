package chat

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"slices"
	"sync"

	"github.com/09OndaProject/onda-chat/internal/database"
	"github.com/09OndaProject/onda-chat/internal/stats"
	"github.com/gorilla/websocket"
)

const (
	numConnectionsMetric   = "NumConnections"
	numRejectedConnsMetric = "NumRejectedConns"
)

// ChatServer admits websocket connections into rooms. Admission runs
// identity resolution and the membership check before the transport
// handshake; a rejected connection is never registered anywhere.
type ChatServer struct {
	log            *log.Logger
	db             database.ChatRepository
	registry       *Registry
	resolver       *TokenResolver
	store          *MessageStore
	dispatcher     *Dispatcher
	stats          stats.StatsProvider
	allowedOrigins []string
	clients        map[*Client]struct{}
	clientsMu      sync.Mutex
	clientsWg      sync.WaitGroup
}

func NewChatServer(logger *log.Logger, db database.ChatRepository, registry *Registry,
	resolver *TokenResolver, store *MessageStore, dispatcher *Dispatcher,
	statsProvider stats.StatsProvider, allowedOrigins []string) *ChatServer {

	statsProvider.RegisterMetric(numConnectionsMetric)
	statsProvider.RegisterMetric(numRejectedConnsMetric)

	return &ChatServer{
		log:            logger,
		db:             db,
		registry:       registry,
		resolver:       resolver,
		store:          store,
		dispatcher:     dispatcher,
		stats:          statsProvider,
		allowedOrigins: allowedOrigins,
		clients:        make(map[*Client]struct{}),
	}
}

// ServeWS handles GET /ws/chat/{room_id}?token=<jwt>.
func (cs *ChatServer) ServeWS(w http.ResponseWriter, r *http.Request) {
	ident := cs.resolver.Resolve(r.URL.Query().Get("token"))
	user, ok := ident.User()
	if !ok {
		cs.reject(w, http.StatusUnauthorized, "authentication required")
		return
	}

	room, err := cs.db.GetRoomByExternalId(r.PathValue("room_id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			cs.reject(w, http.StatusNotFound, "room not found")
		} else {
			cs.log.Printf("get room %q: %v", r.PathValue("room_id"), err)
			cs.reject(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	if !cs.db.MembershipExists(room.Id, user.Id) {
		cs.reject(w, http.StatusForbidden, "not a member of this room")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(cs.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		cs.log.Println("error upgrading connection:", err)
		return
	}

	client := newClient(user, room, conn, cs, cs.log)
	cs.addClient(client)
	cs.registry.Subscribe(room.Id, client)

	cs.log.Printf("admitted user %d to room %q", user.Id, room.ExternalId)

	go client.writePump()
	go client.readPump()
}

func (cs *ChatServer) reject(w http.ResponseWriter, statusCode int, reason string) {
	cs.stats.Incr(numRejectedConnsMetric)
	http.Error(w, reason, statusCode)
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsMu.Lock()
	defer cs.clientsMu.Unlock()
	cs.clients[c] = struct{}{}
	cs.clientsWg.Add(1)
	cs.stats.Incr(numConnectionsMetric)
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsMu.Lock()
	defer cs.clientsMu.Unlock()
	if _, ok := cs.clients[c]; !ok {
		return
	}
	delete(cs.clients, c)
	cs.clientsWg.Done()
	cs.stats.Decr(numConnectionsMetric)
}

// Shutdown closes every live connection and waits for their cleanup to
// finish, or for ctx to expire.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.clientsMu.Lock()
	for c := range cs.clients {
		c.shutdown()
	}
	cs.clientsMu.Unlock()

	done := make(chan struct{})
	go func() {
		cs.clientsWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
