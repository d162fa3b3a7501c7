package event

import (
	"sync"

	"github.com/gofrs/uuid"
)

// Bus is an event bus that notifies all attached recipients of pushed
// events. Handlers run asynchronously on their own worker goroutine, so a
// slow recipient never blocks the pusher.
type Bus interface {
	// Push pushes an event with arbitrary data to the event bus. Push never
	// blocks; events for a recipient whose buffer is full are dropped.
	Push(data any, topics ...string)
	// AttachHandler attaches a handler to the bus. If id is empty a random
	// one is generated. An empty topic list subscribes to all topics.
	AttachHandler(id string, h Handler, topics ...string) (handlerID string, replaced bool)
	AttachHandlerFunc(id string, fn HandlerFunc, topics ...string) (handlerID string, replaced bool)
	DetachRecipient(id string) (success bool)
	DetachAllRecipients() (n int)
}

type worker struct {
	topics []string
	events chan Event
	quit   chan struct{}
}

func (w worker) wants(e Event) bool {
	if len(w.topics) == 0 {
		return true
	}
	for _, t := range w.topics {
		if e.hasTopic(t) {
			return true
		}
	}
	return false
}

func (w worker) close() {
	close(w.quit)
}

type internalBus struct {
	sync.RWMutex
	ws map[string]worker
}

func NewInternalBus() Bus {
	return &internalBus{
		ws: map[string]worker{},
	}
}

func (b *internalBus) Push(data any, topics ...string) {
	e := New(data, topics...)

	b.RLock()
	defer b.RUnlock()
	for _, w := range b.ws {
		if !w.wants(e) {
			continue
		}
		select {
		case w.events <- e:
		default:
		}
	}
}

func (b *internalBus) AttachHandler(id string, h Handler, topics ...string) (string, bool) {
	if id == "" {
		id = uuid.Must(uuid.NewV4()).String()
	}

	w := worker{
		topics: topics,
		events: make(chan Event, 16),
		quit:   make(chan struct{}),
	}

	go func() {
		for {
			select {
			case e := <-w.events:
				h.Handle(e)
			case <-w.quit:
				return
			}
		}
	}()

	b.Lock()
	defer b.Unlock()
	old, replaced := b.ws[id]
	if replaced {
		old.close()
	}
	b.ws[id] = w
	return id, replaced
}

func (b *internalBus) AttachHandlerFunc(id string, fn HandlerFunc, topics ...string) (string, bool) {
	return b.AttachHandler(id, fn, topics...)
}

func (b *internalBus) DetachRecipient(id string) bool {
	b.Lock()
	defer b.Unlock()

	if w, ok := b.ws[id]; ok {
		w.close()
		delete(b.ws, id)
		return true
	}
	return false
}

func (b *internalBus) DetachAllRecipients() int {
	b.Lock()
	defer b.Unlock()

	n := len(b.ws)
	for _, w := range b.ws {
		w.close()
	}
	b.ws = map[string]worker{}
	return n
}
