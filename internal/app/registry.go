package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// TransportEntry tags an engine transport with its owner and direction.
type TransportEntry struct {
	Transport core.Transport
	Peer      domain.PeerID
	Room      domain.RoomName
	Consumer  bool // true for the receive side
}

type ProducerEntry struct {
	Producer core.Producer
	Peer     domain.PeerID
	Room     domain.RoomName
}

type ConsumerEntry struct {
	Consumer core.Consumer
	Peer     domain.PeerID
	Room     domain.RoomName
}

// ProducerSnap is what getProducers hands back per producer.
type ProducerSnap struct {
	ID   domain.ProducerID `json:"producerId"`
	Peer domain.PeerID     `json:"peerId"`
}

type transportKey struct {
	peer     domain.PeerID
	consumer bool
}

// Registry is the sole source of truth for who is connected to what.
// All lookups are direct map indices; there are no linear scans.
type Registry struct {
	mu          sync.RWMutex
	peers       map[domain.PeerID]*domain.Peer
	conns       map[domain.PeerID]core.SignalConnection
	transports  map[domain.TransportID]*TransportEntry
	byDirection map[transportKey]domain.TransportID
	producers   map[domain.ProducerID]*ProducerEntry
	consumers   map[domain.ConsumerID]*ConsumerEntry
}

func NewRegistry() *Registry {
	return &Registry{
		peers:       make(map[domain.PeerID]*domain.Peer),
		conns:       make(map[domain.PeerID]core.SignalConnection),
		transports:  make(map[domain.TransportID]*TransportEntry),
		byDirection: make(map[transportKey]domain.TransportID),
		producers:   make(map[domain.ProducerID]*ProducerEntry),
		consumers:   make(map[domain.ConsumerID]*ConsumerEntry),
	}
}

// BindConn associates the peer token with its current signaling connection.
// A reconnect simply rebinds; pending fan-out reaches the new connection.
func (r *Registry) BindConn(peer domain.PeerID, conn core.SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[peer] = conn
	log.Info().Str("module", "app.registry").Str("peer", string(peer)).Msg("bound connection")
}

// UnbindConn removes the association only if conn is still the current one.
// Returns false when a newer connection has already replaced it.
func (r *Registry) UnbindConn(peer domain.PeerID, conn core.SignalConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[peer]; !ok || cur != conn {
		return false
	}
	delete(r.conns, peer)
	log.Info().Str("module", "app.registry").Str("peer", string(peer)).Msg("unbound connection")
	return true
}

func (r *Registry) Conn(peer domain.PeerID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[peer]
	return c, ok
}

// BindPeer registers a peer record for a room, overwriting any prior record
// for the same token.
func (r *Registry) BindPeer(peer domain.PeerID, room domain.RoomName) *domain.Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := domain.NewPeer(peer, room)
	r.peers[peer] = p
	log.Info().Str("module", "app.registry").Str("peer", string(peer)).Str("room", string(room)).Msg("bound peer")
	return p
}

func (r *Registry) Peer(peer domain.PeerID) (*domain.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[peer]
	return p, ok
}

// SetPeerDetails updates display metadata on an existing peer record.
func (r *Registry) SetPeerDetails(peer domain.PeerID, details domain.PeerDetails) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[peer]; ok {
		p.Details = details
	}
}

func (r *Registry) RemovePeer(peer domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, peer)
	log.Info().Str("module", "app.registry").Str("peer", string(peer)).Msg("removed peer")
}

func (r *Registry) RoomOf(peer domain.PeerID) (domain.RoomName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[peer]
	if !ok {
		return "", false
	}
	return p.Room, true
}

func (r *Registry) AddTransport(peer domain.PeerID, room domain.RoomName, consumer bool, t core.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := t.ID()
	r.transports[id] = &TransportEntry{Transport: t, Peer: peer, Room: room, Consumer: consumer}
	r.byDirection[transportKey{peer, consumer}] = id
	if p, ok := r.peers[peer]; ok {
		p.Transports = append(p.Transports, id)
	}
	log.Info().Str("module", "app.registry").Str("peer", string(peer)).Str("transport", string(id)).Bool("consumer", consumer).Msg("added transport")
}

// TransportByDirection resolves a peer's send (consumer=false) or receive
// (consumer=true) transport.
func (r *Registry) TransportByDirection(peer domain.PeerID, consumer bool) (*TransportEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byDirection[transportKey{peer, consumer}]
	if !ok {
		return nil, false
	}
	e, ok := r.transports[id]
	return e, ok
}

func (r *Registry) TransportByID(id domain.TransportID) (*TransportEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.transports[id]
	return e, ok
}

func (r *Registry) RemoveTransport(id domain.TransportID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.transports[id]
	if !ok {
		return
	}
	delete(r.transports, id)
	delete(r.byDirection, transportKey{e.Peer, e.Consumer})
}

func (r *Registry) AddProducer(peer domain.PeerID, room domain.RoomName, p core.Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := p.ID()
	r.producers[id] = &ProducerEntry{Producer: p, Peer: peer, Room: room}
	if pr, ok := r.peers[peer]; ok {
		pr.Producers = append(pr.Producers, id)
	}
	log.Info().Str("module", "app.registry").Str("peer", string(peer)).Str("producer", string(id)).Msg("added producer")
}

func (r *Registry) Producer(id domain.ProducerID) (*ProducerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.producers[id]
	return e, ok
}

func (r *Registry) RemoveProducer(id domain.ProducerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.producers, id)
}

// ProducerCount is the global producer count, used for the producersExist
// hint in the produce acknowledgement.
func (r *Registry) ProducerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.producers)
}

// ProducersInRoom lists producers of a room excluding the given peer's own.
func (r *Registry) ProducersInRoom(room domain.RoomName, except domain.PeerID) []ProducerSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProducerSnap, 0, len(r.producers))
	for id, e := range r.producers {
		if e.Room != room || e.Peer == except {
			continue
		}
		out = append(out, ProducerSnap{ID: id, Peer: e.Peer})
	}
	return out
}

func (r *Registry) AddConsumer(peer domain.PeerID, room domain.RoomName, c core.Consumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := c.ID()
	r.consumers[id] = &ConsumerEntry{Consumer: c, Peer: peer, Room: room}
	if p, ok := r.peers[peer]; ok {
		p.Consumers = append(p.Consumers, id)
	}
	log.Info().Str("module", "app.registry").Str("peer", string(peer)).Str("consumer", string(id)).Msg("added consumer")
}

func (r *Registry) Consumer(id domain.ConsumerID) (*ConsumerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.consumers[id]
	return e, ok
}

func (r *Registry) RemoveConsumer(id domain.ConsumerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.consumers, id)
}

// OwnedByPeer snapshots everything a peer owns, for the departure cascade.
func (r *Registry) OwnedByPeer(peer domain.PeerID) (transports []*TransportEntry, producers []*ProducerEntry, consumers []*ConsumerEntry) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.transports {
		if e.Peer == peer {
			transports = append(transports, e)
		}
	}
	for _, e := range r.producers {
		if e.Peer == peer {
			producers = append(producers, e)
		}
	}
	for _, e := range r.consumers {
		if e.Peer == peer {
			consumers = append(consumers, e)
		}
	}
	return
}
