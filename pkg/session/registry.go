// Package session tracks which connections currently belong to which room.
// State is process-local and rebuilt from scratch on every connect; nothing
// here survives a restart. A multi-instance deployment would back this with
// a shared pub/sub fan-out behind the same interface.
package session

import "sync"

// Member is one connected participant in a room.
type Member struct {
	SocketID string `json:"socketId"`
	Username string `json:"username"`
}

// Departure reports a room a connection left, for notification purposes.
type Departure struct {
	RoomID   string
	Username string
}

// Registry is the in-memory membership map.
type Registry struct {
	mu      sync.RWMutex
	byConn  map[string]Member            // connID -> member
	byRoom  map[string]map[string]bool   // roomID -> set of connIDs
	roomsOf map[string]map[string]bool   // connID -> set of roomIDs
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn:  make(map[string]Member),
		byRoom:  make(map[string]map[string]bool),
		roomsOf: make(map[string]map[string]bool),
	}
}

// Join records the connection in the room and returns the full member list,
// joiner included.
func (r *Registry) Join(connID, roomID, username string) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byConn[connID] = Member{SocketID: connID, Username: username}

	if r.byRoom[roomID] == nil {
		r.byRoom[roomID] = make(map[string]bool)
	}
	r.byRoom[roomID][connID] = true

	if r.roomsOf[connID] == nil {
		r.roomsOf[connID] = make(map[string]bool)
	}
	r.roomsOf[connID][roomID] = true

	return r.members(roomID)
}

// Leave removes the connection from every room it joined and returns the
// affected rooms with the departing username. Rooms left empty are dropped.
func (r *Registry) Leave(connID string) []Departure {
	r.mu.Lock()
	defer r.mu.Unlock()

	member, ok := r.byConn[connID]
	if !ok {
		return nil
	}

	var departures []Departure
	for roomID := range r.roomsOf[connID] {
		delete(r.byRoom[roomID], connID)
		if len(r.byRoom[roomID]) == 0 {
			delete(r.byRoom, roomID)
		}
		departures = append(departures, Departure{RoomID: roomID, Username: member.Username})
	}

	delete(r.roomsOf, connID)
	delete(r.byConn, connID)

	return departures
}

// MembersOf returns the current member list of a room.
func (r *Registry) MembersOf(roomID string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.members(roomID)
}

// members assumes the lock is held.
func (r *Registry) members(roomID string) []Member {
	conns := r.byRoom[roomID]
	members := make([]Member, 0, len(conns))
	for connID := range conns {
		members = append(members, r.byConn[connID])
	}
	return members
}
