package chat

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/09OndaProject/onda-chat/internal/stats"
)

const numSubscriptionsMetric = "NumSubscriptions"

// Registry maps room ids to the set of currently admitted connections and
// fans messages out to them. It is the only state shared between connection
// goroutines; all access goes through the mutex.
type Registry struct {
	mu    sync.Mutex
	rooms map[int]map[*Client]struct{}
	log   *log.Logger
	stats stats.StatsProvider
}

func NewRegistry(logger *log.Logger, statsProvider stats.StatsProvider) *Registry {
	statsProvider.RegisterMetric(numSubscriptionsMetric)
	return &Registry{
		rooms: make(map[int]map[*Client]struct{}),
		log:   logger,
		stats: statsProvider,
	}
}

// Subscribe adds c to the room's subscriber set. Idempotent per (room,
// connection): a second tab from the same user is a second subscription,
// subscribing the same connection twice is a no-op.
func (reg *Registry) Subscribe(roomId int, c *Client) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	subs, ok := reg.rooms[roomId]
	if !ok {
		subs = make(map[*Client]struct{})
		reg.rooms[roomId] = subs
	}

	if _, ok := subs[c]; ok {
		return
	}

	subs[c] = struct{}{}
	reg.stats.Incr(numSubscriptionsMetric)
}

// Unsubscribe removes c from the room's subscriber set. Safe to call when
// c was never subscribed or was already removed.
func (reg *Registry) Unsubscribe(roomId int, c *Client) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	subs, ok := reg.rooms[roomId]
	if !ok {
		return
	}

	if _, ok := subs[c]; !ok {
		return
	}

	delete(subs, c)
	reg.stats.Decr(numSubscriptionsMetric)
	if len(subs) == 0 {
		delete(reg.rooms, roomId)
	}
}

// Publish delivers frame to every connection subscribed to the room at call
// time. Delivery is best-effort: a subscriber whose send queue is full is
// closed and removed, without affecting delivery to the rest.
func (reg *Registry) Publish(roomId int, frame *ServerFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		reg.log.Printf("marshal frame for room %d: %v", roomId, err)
		return
	}

	reg.mu.Lock()
	subscribers := make([]*Client, 0, len(reg.rooms[roomId]))
	for c := range reg.rooms[roomId] {
		subscribers = append(subscribers, c)
	}
	reg.mu.Unlock()

	var failed []*Client
	for _, c := range subscribers {
		if !c.queueFrame(payload) {
			reg.log.Printf("dropping slow subscriber in room %d", roomId)
			failed = append(failed, c)
		}
	}

	for _, c := range failed {
		c.shutdown()
		reg.Unsubscribe(roomId, c)
	}
}

// NumSubscribers reports the current size of a room's subscriber set.
func (reg *Registry) NumSubscribers(roomId int) int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return len(reg.rooms[roomId])
}
