package runtime

import (
	"skill-chat/contract"
	"skill-chat/domain"
	"sync"

	"github.com/samber/lo"
)

type Set map[string]struct{}

// Registry is the in-memory view of live connections: who is connected,
// which rooms each connection joined and every user's coarse status.
// Nothing here survives a restart.
type Registry struct {
	mu              sync.RWMutex
	connections     map[string]contract.Connection        // connection id -> connection
	userConnections map[domain.UserID]Set                 // user -> connection ids
	roomMembers     map[domain.RoomID]Set                 // room -> connection ids
	connectionRooms map[string]map[domain.RoomID]struct{} // connection id -> rooms
	status          map[domain.UserID]domain.PresenceStatus
}

func NewRegistry() *Registry {
	return &Registry{
		connections:     make(map[string]contract.Connection),
		userConnections: make(map[domain.UserID]Set),
		roomMembers:     make(map[domain.RoomID]Set),
		connectionRooms: make(map[string]map[domain.RoomID]struct{}),
		status:          make(map[domain.UserID]domain.PresenceStatus),
	}
}

// Add registers conn in its user's personal room. The user's first live
// connection turns them online in the same step; Add reports that change.
func (r *Registry) Add(conn contract.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, user := conn.ID(), conn.UserID()
	r.connections[id] = conn
	if _, ok := r.userConnections[user]; !ok {
		r.userConnections[user] = make(Set)
	}
	r.userConnections[user][id] = struct{}{}
	r.join(id, domain.PersonalRoom(user))
	if len(r.userConnections[user]) == 1 && r.statusOf(user) == domain.StatusOffline {
		r.status[user] = domain.StatusOnline
		return true
	}
	return false
}

// Remove drops the connection and every room membership it held.
// Losing the user's last connection turns them offline in the same step;
// the second result reports that change.
func (r *Registry) Remove(connectionID string) (domain.UserID, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[connectionID]
	if !ok {
		return "", false, false
	}
	for room := range r.connectionRooms[connectionID] {
		r.leave(connectionID, room)
	}
	delete(r.connectionRooms, connectionID)
	delete(r.connections, connectionID)

	user := conn.UserID()
	delete(r.userConnections[user], connectionID)
	if len(r.userConnections[user]) > 0 {
		return user, false, true
	}
	delete(r.userConnections, user)
	_, wasPresent := r.status[user]
	delete(r.status, user)
	return user, wasPresent, true
}

// All returns every live connection.
func (r *Registry) All() []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.connections)
}

// Join adds a registered connection to room. It reports false when the
// connection is unknown or already a member.
func (r *Registry) Join(connectionID string, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[connectionID]; !ok {
		return false
	}
	return r.join(connectionID, room)
}

// Leave is a no-op for non-members.
func (r *Registry) Leave(connectionID string, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leave(connectionID, room)
}

func (r *Registry) join(connectionID string, room domain.RoomID) bool {
	if _, ok := r.roomMembers[room]; !ok {
		r.roomMembers[room] = make(Set)
	}
	if _, ok := r.roomMembers[room][connectionID]; ok {
		return false
	}
	r.roomMembers[room][connectionID] = struct{}{}
	if _, ok := r.connectionRooms[connectionID]; !ok {
		r.connectionRooms[connectionID] = make(map[domain.RoomID]struct{})
	}
	r.connectionRooms[connectionID][room] = struct{}{}
	return true
}

func (r *Registry) leave(connectionID string, room domain.RoomID) bool {
	members, ok := r.roomMembers[room]
	if !ok {
		return false
	}
	if _, ok = members[connectionID]; !ok {
		return false
	}
	delete(members, connectionID)
	// No empty sets left behind
	if len(members) == 0 {
		delete(r.roomMembers, room)
	}
	delete(r.connectionRooms[connectionID], room)
	return true
}

// Members returns the live connections of every given room, each at most once.
func (r *Registry) Members(rooms ...domain.RoomID) []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(Set)
	var members []contract.Connection
	for _, room := range rooms {
		for id := range r.roomMembers[room] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if conn, ok := r.connections[id]; ok {
				members = append(members, conn)
			}
		}
	}
	return members
}

func (r *Registry) Rooms(connectionID string) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.connectionRooms[connectionID])
}

// IsUserInRoom reports whether any connection of user joined room.
func (r *Registry) IsUserInRoom(user domain.UserID, room domain.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.roomMembers[room]
	for id := range r.userConnections[user] {
		if _, ok := members[id]; ok {
			return true
		}
	}
	return false
}

func (r *Registry) ConnectionCount(user domain.UserID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userConnections[user])
}

// SetStatus records a status announced by a connected user and reports
// whether it changed. Users without a live connection stay offline.
func (r *Registry) SetStatus(user domain.UserID, status domain.PresenceStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if status == domain.StatusOffline || len(r.userConnections[user]) == 0 {
		return false
	}
	if r.statusOf(user) == status {
		return false
	}
	r.status[user] = status
	return true
}

func (r *Registry) Status(user domain.UserID) domain.PresenceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.statusOf(user)
}

func (r *Registry) statusOf(user domain.UserID) domain.PresenceStatus {
	if status, ok := r.status[user]; ok {
		return status
	}
	return domain.StatusOffline
}

// Present lists users currently online or away.
func (r *Registry) Present() map[domain.UserID]domain.PresenceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Assign(r.status)
}
