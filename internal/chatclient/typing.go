package chatclient

import (
	"sort"
	"sync"
	"time"
)

const (
	DefaultTypingIdle    = time.Second
	DefaultTypingDisplay = 3 * time.Second
)

// TypingDebouncer turns keystrokes into at most one typing signal per
// burst. Each keystroke restarts the idle timer; when it fires the burst
// ends with a stop signal.
type TypingDebouncer struct {
	idle  time.Duration
	start func()
	stop  func()

	mu     sync.Mutex
	active bool
	timer  *time.Timer
	gen    uint64
}

func NewTypingDebouncer(idle time.Duration, start, stop func()) *TypingDebouncer {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &TypingDebouncer{idle: idle, start: start, stop: stop}
}

func (d *TypingDebouncer) Keystroke() {
	d.mu.Lock()
	first := !d.active
	d.active = true
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.idle, func() { d.expire(gen) })
	d.mu.Unlock()

	if first {
		d.start()
	}
}

func (d *TypingDebouncer) expire(gen uint64) {
	d.mu.Lock()
	if !d.active || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.mu.Unlock()

	d.stop()
}

// Flush ends the current burst right away, e.g. when the message is sent.
func (d *TypingDebouncer) Flush() {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()

	d.stop()
}

// Cancel drops the pending timer without sending anything.
func (d *TypingDebouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
}

// TypingIndicator tracks who is typing on the receiving side. An entry
// clears itself after the display window even if no stop signal arrives.
type TypingIndicator struct {
	display  time.Duration
	onChange func()

	mu     sync.Mutex
	typers map[string]*time.Timer
}

func NewTypingIndicator(display time.Duration, onChange func()) *TypingIndicator {
	if display <= 0 {
		display = DefaultTypingDisplay
	}
	if onChange == nil {
		onChange = func() {}
	}
	return &TypingIndicator{display: display, onChange: onChange, typers: make(map[string]*time.Timer)}
}

func (ti *TypingIndicator) Show(userID string) {
	ti.mu.Lock()
	if t, ok := ti.typers[userID]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(ti.display, func() {
		ti.mu.Lock()
		if ti.typers[userID] != timer {
			ti.mu.Unlock()
			return
		}
		delete(ti.typers, userID)
		ti.mu.Unlock()
		ti.onChange()
	})
	ti.typers[userID] = timer
	ti.mu.Unlock()

	ti.onChange()
}

func (ti *TypingIndicator) Hide(userID string) {
	ti.mu.Lock()
	t, ok := ti.typers[userID]
	if ok {
		t.Stop()
		delete(ti.typers, userID)
	}
	ti.mu.Unlock()

	if ok {
		ti.onChange()
	}
}

// Typing lists the users currently shown as typing, sorted.
func (ti *TypingIndicator) Typing() []string {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	out := make([]string, 0, len(ti.typers))
	for id := range ti.typers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (ti *TypingIndicator) Close() {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	for id, t := range ti.typers {
		t.Stop()
		delete(ti.typers, id)
	}
}
