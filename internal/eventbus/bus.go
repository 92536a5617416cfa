package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"spectral-distview/internal/logger"
	"spectral-distview/internal/models"
)

type EventType string

const (
	// EventDistributionUpdated fires after a new histogram collection was published
	EventDistributionUpdated EventType = "distribution.updated"
	// EventRangeUpdated fires when the binning value range of a view may have changed
	EventRangeUpdated EventType = "range.updated"
)

type Event struct {
	Type           EventType
	Representation models.Representation
	Range          models.Range
	Timestamp      time.Time
	Data           map[string]interface{}
}

type EventHandler interface {
	Handle(event Event)
	GetID() string
}

// HandlerFunc adapts a plain function to EventHandler
type HandlerFunc struct {
	ID string
	Fn func(event Event)
}

func (h HandlerFunc) Handle(event Event) { h.Fn(event) }
func (h HandlerFunc) GetID() string      { return h.ID }

// Bus delivers events to subscribers on a single worker goroutine, in
// publication order.
type Bus struct {
	subscribers map[EventType][]EventHandler
	mu          sync.RWMutex
	buffer      chan Event
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	logger      logger.Logger
}

func NewBus(bufferSize int, log logger.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	if log == nil {
		log = logger.NoOpLogger{}
	}

	bus := &Bus{
		subscribers: make(map[EventType][]EventHandler),
		buffer:      make(chan Event, bufferSize),
		ctx:         ctx,
		cancel:      cancel,
		logger:      log,
	}

	bus.startWorker()
	return bus
}

// Publish queues event for delivery. It blocks while the buffer is full and
// returns silently once the bus is shut down.
func (b *Bus) Publish(event Event) {
	event.Timestamp = time.Now()

	select {
	case <-b.ctx.Done():
		return
	default:
	}

	select {
	case b.buffer <- event:
	case <-b.ctx.Done():
	}
}

func (b *Bus) Subscribe(eventType EventType, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

func (b *Bus) Unsubscribe(eventType EventType, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.subscribers[eventType]
	for i, h := range handlers {
		if h.GetID() == handler.GetID() {
			b.subscribers[eventType] = append(handlers[:i:i], handlers[i+1:]...)
			break
		}
	}
}

// Shutdown delivers what is already buffered and stops the worker
func (b *Bus) Shutdown() {
	b.cancel()
	b.wg.Wait()
}

func (b *Bus) startWorker() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		for {
			select {
			case event := <-b.buffer:
				b.dispatchEvent(event)
			case <-b.ctx.Done():
				for {
					select {
					case event := <-b.buffer:
						b.dispatchEvent(event)
					default:
						return
					}
				}
			}
		}
	}()
}

func (b *Bus) dispatchEvent(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, len(b.subscribers[event.Type]))
	copy(handlers, b.subscribers[event.Type])
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.deliver(handler, event)
	}
}

func (b *Bus) deliver(h EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("EventBus", fmt.Errorf("handler panicked: %v", r), map[string]interface{}{
				"handler": h.GetID(),
				"event":   string(event.Type),
			})
		}
	}()
	h.Handle(event)
}
