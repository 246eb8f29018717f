package chat

import (
	"fmt"
	"log"
	"sync"

	"github.com/09OndaProject/onda-chat/internal/database"
	"github.com/09OndaProject/onda-chat/internal/stats"
)

const (
	numMessagesPersistedMetric = "NumMessagesPersisted"

	defaultStoreWorkers = 4
	storeQueueSize      = 256
)

type persistResult struct {
	msg database.Message
	err error
}

type persistRequest struct {
	params database.CreateMessageParams
	reply  chan persistResult
}

// MessageStore offloads the blocking database write from connection
// goroutines onto a bounded worker pool. Callers block on Persist until
// their write commits; each caller therefore observes its own messages
// commit in submission order.
type MessageStore struct {
	db       database.ChatRepository
	log      *log.Logger
	stats    stats.StatsProvider
	requests chan persistRequest
	wg       sync.WaitGroup
	workers  int
}

func NewMessageStore(db database.ChatRepository, logger *log.Logger, statsProvider stats.StatsProvider, workers int) *MessageStore {
	if workers <= 0 {
		workers = defaultStoreWorkers
	}

	statsProvider.RegisterMetric(numMessagesPersistedMetric)

	return &MessageStore{
		db:       db,
		log:      logger,
		stats:    statsProvider,
		requests: make(chan persistRequest, storeQueueSize),
		workers:  workers,
	}
}

func (ms *MessageStore) Run() {
	for i := 0; i < ms.workers; i++ {
		ms.wg.Add(1)
		go ms.worker()
	}
}

func (ms *MessageStore) worker() {
	defer ms.wg.Done()

	for req := range ms.requests {
		msg, err := ms.db.CreateMessage(req.params)
		if err == nil {
			ms.stats.Incr(numMessagesPersistedMetric)
		}
		req.reply <- persistResult{msg: msg, err: err}
	}
}

// Persist durably stores a message and returns the stored row with its
// server-assigned id and timestamp.
func (ms *MessageStore) Persist(params database.CreateMessageParams) (database.Message, error) {
	req := persistRequest{
		params: params,
		reply:  make(chan persistResult, 1),
	}

	select {
	case ms.requests <- req:
	default:
		return database.Message{}, fmt.Errorf("message store queue full")
	}

	res := <-req.reply
	return res.msg, res.err
}

// Stop drains in-flight writes and stops the workers. Persist must not be
// called after Stop.
func (ms *MessageStore) Stop() {
	close(ms.requests)
	ms.wg.Wait()
}
