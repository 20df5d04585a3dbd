package domain

// PeerDetails is display meta for a room member.
type PeerDetails struct {
	Name    string `json:"name"`
	IsAdmin bool   `json:"isAdmin"`
}

// Peer represents one connected participant. Ownership lists are mutated only
// by the session registry under its lock.
type Peer struct {
	ID      PeerID
	Room    RoomName
	Details PeerDetails

	Transports []TransportID
	Producers  []ProducerID
	Consumers  []ConsumerID
}

// NewPeer avoids raw literals in adapters and keeps construction obvious.
func NewPeer(id PeerID, room RoomName) *Peer {
	return &Peer{ID: id, Room: room}
}
