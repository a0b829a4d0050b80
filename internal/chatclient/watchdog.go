package chatclient

import (
	"sync"
	"time"
)

const DefaultSendTimeout = 5 * time.Second

// Watchdog fails sends that were neither confirmed nor failed in time. The
// server cannot always deliver message-failed, so the client decides.
type Watchdog struct {
	timeout   time.Duration
	onTimeout func(provisionalID string)

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func NewWatchdog(timeout time.Duration, onTimeout func(provisionalID string)) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Watchdog{timeout: timeout, onTimeout: onTimeout, pending: make(map[string]*time.Timer)}
}

func (w *Watchdog) Track(provisionalID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[provisionalID]; ok {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(w.timeout, func() {
		w.mu.Lock()
		if w.pending[provisionalID] != timer {
			w.mu.Unlock()
			return
		}
		delete(w.pending, provisionalID)
		w.mu.Unlock()
		w.onTimeout(provisionalID)
	})
	w.pending[provisionalID] = timer
}

// Resolve reports whether the send was still being watched.
func (w *Watchdog) Resolve(provisionalID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.pending[provisionalID]
	if ok {
		t.Stop()
		delete(w.pending, provisionalID)
	}
	return ok
}

func (w *Watchdog) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, t := range w.pending {
		t.Stop()
		delete(w.pending, id)
	}
}
