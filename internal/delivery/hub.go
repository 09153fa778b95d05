package delivery

import (
	"context"
	"sync"

	"github.com/sumitx99/ethical-web-watchdog/internal/message"
)

const defaultSubscriberBuffer = 64

// Hub is an in-process Messenger. Observers attach with Subscribe, typically
// from a streaming HTTP handler, and receive every message for their tab.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]map[*subscriber]struct{}
	buffer int
}

type subscriber struct {
	ch chan message.Envelope
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{subs: make(map[int]map[*subscriber]struct{}), buffer: buffer}
}

// Subscribe attaches an observer to tabID. The returned cancel func detaches
// it and closes the channel.
func (h *Hub) Subscribe(tabID int) (<-chan message.Envelope, func()) {
	sub := &subscriber{ch: make(chan message.Envelope, h.buffer)}

	h.mu.Lock()
	if h.subs[tabID] == nil {
		h.subs[tabID] = make(map[*subscriber]struct{})
	}
	h.subs[tabID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[tabID], sub)
			if len(h.subs[tabID]) == 0 {
				delete(h.subs, tabID)
			}
			close(sub.ch)
			h.mu.Unlock()
		})
	}
}

// Subscribers returns how many observers are attached to tabID.
func (h *Hub) Subscribers(tabID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tabID])
}

func (h *Hub) Ping(ctx context.Context, tabID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h.Subscribers(tabID) == 0 {
		return ErrNoObserver
	}
	return nil
}

// Send fans msg out to every subscriber of the tab without blocking. It
// fails only if no subscriber accepted the message.
func (h *Hub) Send(ctx context.Context, tabID int, msg message.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.subs[tabID]
	if len(subs) == 0 {
		return ErrNoObserver
	}
	accepted := 0
	for sub := range subs {
		select {
		case sub.ch <- msg:
			accepted++
		default:
		}
	}
	if accepted == 0 {
		return ErrObserverBusy
	}
	return nil
}
