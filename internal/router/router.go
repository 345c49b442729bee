package router

import (
	"sync"

	"github.com/youuungh/sns-chat-go/internal/domain"
	"github.com/youuungh/sns-chat-go/pkg/log"
)

const subscriberBuffer = 256

// Router fans inbound messages out to every current subscriber, in arrival
// order. It never deduplicates; dedup belongs to the consumer that knows
// the displayed window of messages.
type Router struct {
	mu          sync.RWMutex
	subscribers map[int]chan domain.ChatMessage
	nextID      int
}

func New() *Router {
	return &Router{
		subscribers: make(map[int]chan domain.ChatMessage),
	}
}

// Subscribe attaches a new observer. The cancel func detaches it; after
// cancel returns the channel is closed and no further messages arrive.
func (r *Router) Subscribe() (<-chan domain.ChatMessage, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	ch := make(chan domain.ChatMessage, subscriberBuffer)
	r.subscribers[id] = ch

	l := log.L()
	l.Debug().Int("subscriber", id).Msg("message observer attached")

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subscribers[id]; ok {
			delete(r.subscribers, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers msg to all current subscribers. A subscriber whose
// buffer is full misses this message rather than blocking delivery to the
// others.
func (r *Router) Publish(msg domain.ChatMessage) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, ch := range r.subscribers {
		select {
		case ch <- msg:
		default:
			l := log.L()
			l.Warn().Int("subscriber", id).Str(log.FieldMessageID, msg.ID).Msg("subscriber buffer full, message dropped")
		}
	}
}

// SubscriberCount reports the number of attached observers.
func (r *Router) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}
