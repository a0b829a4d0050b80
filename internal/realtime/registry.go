package realtime

import "sync"

// Conn is a live connection handle. Send must not block on a slow peer.
type Conn interface {
	ID() string
	UserID() string
	Send(ev Event) error
}

// Registry tracks which connections are joined to which conversation room.
// It holds no business logic and nothing is persisted.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[Conn]struct{} // roomID -> connections
	conns map[Conn]map[string]struct{} // connection -> roomIDs
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[Conn]struct{}),
		conns: make(map[Conn]map[string]struct{}),
	}
}

// Register joins c to roomID. It reports false if c was already joined.
func (r *Registry) Register(c Conn, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[Conn]struct{})
		r.rooms[roomID] = members
	}
	if _, joined := members[c]; joined {
		return false
	}
	members[c] = struct{}{}

	rooms, ok := r.conns[c]
	if !ok {
		rooms = make(map[string]struct{})
		r.conns[c] = rooms
	}
	rooms[roomID] = struct{}{}
	return true
}

// Unregister removes c from roomID. It reports whether c was joined.
func (r *Registry) Unregister(c Conn, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unregisterLocked(c, roomID)
}

// UnregisterAll drops c from every room and returns the rooms it left.
// The transport calls it on disconnect.
func (r *Registry) UnregisterAll(c Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := make([]string, 0, len(r.conns[c]))
	for roomID := range r.conns[c] {
		rooms = append(rooms, roomID)
	}
	for _, roomID := range rooms {
		r.unregisterLocked(c, roomID)
	}
	return rooms
}

func (r *Registry) unregisterLocked(c Conn, roomID string) bool {
	members, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, joined := members[c]; !joined {
		return false
	}
	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
	if rooms, ok := r.conns[c]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.conns, c)
		}
	}
	return true
}

// Members returns a snapshot of the connections joined to roomID.
func (r *Registry) Members(roomID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Conn, 0, len(r.rooms[roomID]))
	for c := range r.rooms[roomID] {
		out = append(out, c)
	}
	return out
}

func (r *Registry) IsMember(c Conn, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID][c]
	return ok
}

// HasUser reports whether any connection of userID is joined to roomID.
func (r *Registry) HasUser(roomID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.rooms[roomID] {
		if c.UserID() == userID {
			return true
		}
	}
	return false
}

// RoomCount and ConnCount feed the metrics gauges.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Broadcast sends ev to every member of roomID for which skip returns false
// (nil skips nobody). Delivery is best-effort; it returns how many
// connections accepted the event.
func (r *Registry) Broadcast(roomID string, ev Event, skip func(Conn) bool) int {
	sent := 0
	for _, c := range r.Members(roomID) {
		if skip != nil && skip(c) {
			continue
		}
		if err := c.Send(ev); err == nil {
			sent++
		}
	}
	return sent
}
