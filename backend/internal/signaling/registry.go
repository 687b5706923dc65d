package signaling

import (
	"errors"
	"sync"
)

// JoinResult is the registry's answer to a join request.
type JoinResult int

const (
	JoinCreated JoinResult = iota + 1
	JoinJoined
	JoinFull
)

func (r JoinResult) String() string {
	switch r {
	case JoinCreated:
		return "created"
	case JoinJoined:
		return "joined"
	case JoinFull:
		return "full"
	}
	return "unknown"
}

var (
	ErrAlreadyInRoom = errors.New("connection already in a room")
	ErrEmptyRoomName = errors.New("room name is empty")
)

// Join describes the outcome of RequestJoin.
type Join struct {
	Result JoinResult
	Room   string
	Role   Role

	// Ready lists the members to notify when the room just became complete.
	Ready []string
}

// Registry tracks room membership. The check-then-add in RequestJoin runs
// under one lock so racing joins cannot overfill a room.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	members map[string]string // connection id -> room id
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		members: make(map[string]string),
	}
}

// RequestJoin adds connID to room when there is space.
func (r *Registry) RequestJoin(connID, room string) (Join, error) {
	if room == "" {
		return Join{}, ErrEmptyRoomName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.members[connID]; ok {
		return Join{Room: current}, ErrAlreadyInRoom
	}

	rm, ok := r.rooms[room]
	if !ok {
		rm = &Room{ID: room}
		r.rooms[room] = rm
	}

	if len(rm.Members) >= maxMembers {
		return Join{Result: JoinFull, Room: room}, nil
	}

	rm.Members = append(rm.Members, connID)
	r.members[connID] = room
	if len(rm.Members) == 1 {
		return Join{Result: JoinCreated, Room: room, Role: RoleInitiator}, nil
	}
	ready := make([]string, len(rm.Members))
	copy(ready, rm.Members)
	return Join{Result: JoinJoined, Room: room, Role: RoleReceiver, Ready: ready}, nil
}

// Leave evicts connID from its room. It returns the room id and the member
// left behind, if any. An emptied room is deleted so its name can be reused.
func (r *Registry) Leave(connID string) (room string, remaining string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok = r.members[connID]
	if !ok {
		return "", "", false
	}
	delete(r.members, connID)

	rm := r.rooms[room]
	rm.remove(connID)
	if len(rm.Members) == 0 {
		delete(r.rooms, room)
		return room, "", true
	}
	return room, rm.Members[0], true
}

// Peer returns the other member of connID's room.
func (r *Registry) Peer(connID string) (room string, peer string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.members[connID]
	if !ok {
		return "", ""
	}
	return room, r.rooms[room].Other(connID)
}

// Members returns a copy of the room's member list in join order.
func (r *Registry) Members(room string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[room]
	if !ok {
		return nil
	}
	out := make([]string, len(rm.Members))
	copy(out, rm.Members)
	return out
}

// Exists reports whether a room with at least one member is registered.
func (r *Registry) Exists(room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[room]
	return ok
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
