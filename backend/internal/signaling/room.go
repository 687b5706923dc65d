package signaling

// maxMembers is the room capacity: one initiator and one receiver.
const maxMembers = 2

// Role is the part a connection plays in its room, fixed by join order.
type Role int

const (
	RoleUnassigned Role = iota
	RoleInitiator
	RoleReceiver
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleReceiver:
		return "receiver"
	}
	return "unassigned"
}

// Room represents a single room where two peers can meet.
type Room struct {
	// ID is the unique identifier for the room.
	ID string

	// Members holds connection ids in join order. Members[0] is the initiator.
	Members []string
}

func (r *Room) remove(connID string) {
	kept := r.Members[:0]
	for _, m := range r.Members {
		if m != connID {
			kept = append(kept, m)
		}
	}
	r.Members = kept
}

// Other returns the member that is not connID, or "" when alone.
func (r *Room) Other(connID string) string {
	for _, m := range r.Members {
		if m != connID {
			return m
		}
	}
	return ""
}
