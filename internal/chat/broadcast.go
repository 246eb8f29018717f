package chat

import (
	"log"

	"github.com/09OndaProject/onda-chat/internal/database"
	"github.com/09OndaProject/onda-chat/internal/types"
)

// Dispatcher projects a persisted message onto the wire payload and fans it
// out to the message's room. It performs no persistence; a broadcast that
// reaches nobody does not undo the durable write that preceded it.
type Dispatcher struct {
	registry *Registry
	log      *log.Logger
}

func NewDispatcher(registry *Registry, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		log:      logger,
	}
}

func (d *Dispatcher) Dispatch(msg database.Message, sender types.User) {
	d.registry.Publish(msg.RoomId, &ServerFrame{
		UserId:   sender.Id,
		Nickname: sender.Nickname,
		Message:  msg.Content,
	})
}
