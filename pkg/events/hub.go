package events

import (
	"sync"
	"time"
)

// Launch outcomes reported in LaunchEvent.Outcome.
const (
	OutcomeOpened      = "opened"      // requested screen opened
	OutcomeFallback    = "fallback"    // general settings opened instead
	OutcomeUnavailable = "unavailable" // nothing could be opened
)

// LaunchEvent records which settings screen a call actually opened.
type LaunchEvent struct {
	ID        int64  `json:"id"`               // monotonically increasing per channel
	TS        string `json:"ts"`               // RFC3339 timestamp
	Channel   string `json:"channel"`          // channel scope
	CallID    string `json:"callId,omitempty"` // raw id of the triggering call
	Method    string `json:"method"`           // method name of the triggering call
	Requested string `json:"requested"`        // screen the caller asked for
	Opened    string `json:"opened,omitempty"` // screen that opened, empty when none
	Outcome   string `json:"outcome"`          // "opened" | "fallback" | "unavailable"
	Error     string `json:"error,omitempty"`  // joined launch errors, if any
}

type subscriber struct {
	id int
	ch chan LaunchEvent
}

type channelState struct {
	seq       int64
	ring      []LaunchEvent // circular buffer
	ringCap   int
	ringStart int // index of oldest
	subs      map[int]subscriber
	nextSubID int
}

type Hub struct {
	mu       sync.RWMutex
	channels map[string]*channelState
	cap      int
	closed   bool
}

// NewHub creates an in-memory event hub with a per-channel ring buffer capacity.
func NewHub(ringCapacity int) *Hub {
	if ringCapacity <= 0 {
		ringCapacity = 200
	}
	return &Hub{
		channels: make(map[string]*channelState),
		cap:      ringCapacity,
	}
}

func (h *Hub) getOrCreateLocked(name string) *channelState {
	st, ok := h.channels[name]
	if !ok {
		st = &channelState{
			ring:      make([]LaunchEvent, 0, h.cap),
			ringCap:   h.cap,
			subs:      make(map[int]subscriber),
			nextSubID: 1,
		}
		h.channels[name] = st
	}
	return st
}

// Publish appends an event to the channel ring and fans out to subscribers.
// It assigns the event ID and fills the timestamp if unset.
func (h *Hub) Publish(channel string, evt LaunchEvent) {
	if evt.TS == "" {
		evt.TS = time.Now().UTC().Format(time.RFC3339)
	}
	evt.Channel = channel

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	st := h.getOrCreateLocked(channel)
	st.seq++
	evt.ID = st.seq

	if len(st.ring) < st.ringCap {
		st.ring = append(st.ring, evt)
	} else {
		st.ring[st.ringStart] = evt
		st.ringStart = (st.ringStart + 1) % st.ringCap
	}

	subs := make([]subscriber, 0, len(st.subs))
	for _, s := range st.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	// Non-blocking fanout; a slow subscriber loses its oldest buffered event.
	for _, s := range subs {
		select {
		case s.ch <- evt:
		default:
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- evt:
			default:
			}
		}
	}
}

// Subscribe registers a subscriber for a channel. Buffered events with
// ID > sinceID are replayed before live events when sinceID > 0.
// Returns a receive-only channel and an unsubscribe function.
func (h *Hub) Subscribe(channel string, sinceID int64, buffer int) (<-chan LaunchEvent, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan LaunchEvent, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	st := h.getOrCreateLocked(channel)
	id := st.nextSubID
	st.nextSubID++

	// Replay is queued before registering so it precedes live events.
	if sinceID > 0 {
		for _, e := range collectSince(st, sinceID) {
			select {
			case ch <- e:
			default:
			}
		}
	}
	st.subs[id] = subscriber{id: id, ch: ch}
	h.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if st, ok := h.channels[channel]; ok {
				if s, exists := st.subs[id]; exists {
					delete(st.subs, id)
					close(s.ch)
				}
				// Subscribing to a channel that never published leaves nothing to keep.
				if len(st.subs) == 0 && len(st.ring) == 0 {
					delete(h.channels, channel)
				}
			}
		})
	}
	return ch, unsub
}

// Recent returns up to limit buffered events for a channel, oldest first.
func (h *Hub) Recent(channel string, limit int) []LaunchEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.channels[channel]
	if !ok {
		return nil
	}
	all := collectSince(st, 0)
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

func collectSince(st *channelState, sinceID int64) []LaunchEvent {
	out := make([]LaunchEvent, 0, len(st.ring))
	for i := 0; i < len(st.ring); i++ {
		e := st.ring[(st.ringStart+i)%st.ringCap]
		if e.ID > sinceID {
			out = append(out, e)
		}
	}
	return out
}

// Close shuts down the hub and all subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, st := range h.channels {
		for _, s := range st.subs {
			close(s.ch)
		}
		st.subs = map[int]subscriber{}
	}
}
