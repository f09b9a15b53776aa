package signaling

// Room is a set of participants that see each other's negotiation messages.
// Members are kept in join order.
type Room struct {
	ID      string
	Members []*Client

	// owner reserved the room with create_room.
	owner *Client
}

func (r *Room) member(participantID string) *Client {
	for _, c := range r.Members {
		if c.ParticipantID == participantID {
			return c
		}
	}
	return nil
}

func (r *Room) add(c *Client) {
	r.Members = append(r.Members, c)
}

// remove reports whether c was a member.
func (r *Room) remove(c *Client) bool {
	for i, m := range r.Members {
		if m == c {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Room) ids() []string {
	out := make([]string, 0, len(r.Members))
	for _, c := range r.Members {
		out = append(out, c.ParticipantID)
	}
	return out
}

// RoomInfo is the public view of a room served on /api/rooms.
type RoomInfo struct {
	ID      string `json:"id"`
	Members int    `json:"members"`
}
