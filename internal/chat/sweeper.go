package chat

import (
	"log"
	"time"

	"github.com/09OndaProject/onda-chat/internal/database"
)

// Sweeper periodically removes messages authored by accounts that were
// deleted more than a grace period ago.
type Sweeper struct {
	db       database.ChatRepository
	log      *log.Logger
	interval time.Duration
	grace    time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(db database.ChatRepository, logger *log.Logger, interval, grace time.Duration) *Sweeper {
	return &Sweeper{
		db:       db,
		log:      logger,
		interval: interval,
		grace:    grace,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Run() {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *Sweeper) sweep() {
	cutoff := time.Now().UTC().Add(-s.grace)
	n, err := s.db.PurgeMessagesOfDeletedUsers(cutoff)
	if err != nil {
		s.log.Println("purge messages of deleted users:", err)
		return
	}

	if n > 0 {
		s.log.Printf("purged %d messages of deleted users", n)
	}
}

func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}
