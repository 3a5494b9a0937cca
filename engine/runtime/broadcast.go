package runtime

import (
	"sync"
	"time"
)

// Loop status values published to observers.
const (
	StatusPlanning  = "planning"
	StatusExecuting = "executing"
	StatusIdle      = "idle"
	StatusPaused    = "paused"
	StatusError     = "error"
)

// StatusUpdate is one observer notification.
type StatusUpdate struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Observer receives status updates. Observers must not block; slow or
// panicking observers are tolerated but never propagate into the loop.
type Observer func(StatusUpdate)

// Broadcaster fans loop status out to a subscriber set. Best effort only.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[int]Observer
	next int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]Observer)}
}

// Subscribe registers an observer and returns its cancel function.
func (b *Broadcaster) Subscribe(obs Observer) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = obs
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish delivers the update to every subscriber, swallowing panics.
func (b *Broadcaster) Publish(status string, detail map[string]any) {
	update := StatusUpdate{Status: status, Timestamp: time.Now().UTC(), Detail: detail}
	b.mu.RLock()
	observers := make([]Observer, 0, len(b.subs))
	for _, obs := range b.subs {
		observers = append(observers, obs)
	}
	b.mu.RUnlock()
	for _, obs := range observers {
		func() {
			defer func() { _ = recover() }()
			obs(update)
		}()
	}
}
