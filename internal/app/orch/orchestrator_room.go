package orch

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// Attach binds a freshly established signaling connection to the peer token
// and cancels any pending disconnect cleanup. Returns true when an existing
// session was resumed.
func (o *Orchestrator) Attach(peer domain.PeerID, conn core.SignalConnection) bool {
	cancelled := o.CancelCleanup(peer)
	o.Registry.BindConn(peer, conn)
	_, resumed := o.Registry.Peer(peer)
	if resumed && cancelled {
		log.Info().Str("module", "orch").Str("peer", string(peer)).Msg("session resumed within grace window")
	}
	return resumed
}

// Join places the peer in the named room, creating the routing context on
// first use, and returns the room's capability set.
func (o *Orchestrator) Join(peer domain.PeerID, name domain.RoomName) (core.RTPCapabilities, error) {
	if name == "" {
		return core.RTPCapabilities{}, core.ErrRoomNameEmpty
	}
	o.CancelCleanup(peer)

	if existing, ok := o.Registry.Peer(peer); ok {
		if existing.Room == name {
			if room, ok := o.Rooms.Get(name); ok {
				room.AddMember(peer)
				return room.Capabilities(), nil
			}
		} else {
			// At most one room per peer: leaving the old one releases
			// everything owned there.
			o.confirmDeparture(peer)
		}
	}

	room, err := o.Rooms.GetOrCreate(name)
	if err != nil {
		return core.RTPCapabilities{}, err
	}
	o.Registry.BindPeer(peer, name)
	room.AddMember(peer)
	log.Info().Str("module", "orch").Str("peer", string(peer)).Str("room", string(name)).Msg("joined room")
	return room.Capabilities(), nil
}

// Disconnect is called when a signaling connection tears down. Cleanup is
// deferred by the grace window; a reconnect with the same token cancels it.
func (o *Orchestrator) Disconnect(peer domain.PeerID, conn core.SignalConnection) {
	if !o.Registry.UnbindConn(peer, conn) {
		// A newer connection already replaced this one.
		return
	}
	log.Info().Str("module", "orch").Str("peer", string(peer)).Dur("grace", o.Grace).Msg("disconnected, deferring cleanup")

	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.graceTimers[peer]; ok {
		t.Stop()
	}
	o.graceTimers[peer] = time.AfterFunc(o.Grace, func() { o.expireGrace(peer) })
}

// CancelCleanup stops a pending departure timer. Returns true if one was
// pending.
func (o *Orchestrator) CancelCleanup(peer domain.PeerID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.graceTimers[peer]
	if !ok {
		return false
	}
	t.Stop()
	delete(o.graceTimers, peer)
	return true
}

func (o *Orchestrator) expireGrace(peer domain.PeerID) {
	o.mu.Lock()
	if _, ok := o.graceTimers[peer]; !ok {
		// Cancelled between firing and acquiring the lock.
		o.mu.Unlock()
		return
	}
	delete(o.graceTimers, peer)
	o.mu.Unlock()

	if _, ok := o.Registry.Conn(peer); ok {
		log.Info().Str("module", "orch").Str("peer", string(peer)).Msg("peer reconnected, no cleanup needed")
		return
	}
	log.Info().Str("module", "orch").Str("peer", string(peer)).Msg("peer did not reconnect, cleaning up")
	o.confirmDeparture(peer)
}

// confirmDeparture releases everything the peer owns: producers first (their
// close cascades producer-closed notifications to dependent consumers), then
// the peer's own consumers and transports, then registry and room membership.
func (o *Orchestrator) confirmDeparture(peer domain.PeerID) {
	transports, producers, consumers := o.Registry.OwnedByPeer(peer)

	for _, e := range producers {
		id := e.Producer.ID()
		e.Producer.Close()
		o.Registry.RemoveProducer(id)
	}
	for _, e := range consumers {
		id := e.Consumer.ID()
		e.Consumer.Close()
		o.Registry.RemoveConsumer(id)
	}
	for _, e := range transports {
		id := e.Transport.ID()
		e.Transport.Close()
		o.Registry.RemoveTransport(id)
	}

	name, ok := o.Registry.RoomOf(peer)
	o.Registry.RemovePeer(peer)
	if !ok {
		return
	}
	if room, ok := o.Rooms.Get(name); ok {
		room.RemoveMember(peer)
		o.Rooms.ReapIfEmpty(name)
	}
	log.Info().Str("module", "orch").Str("peer", string(peer)).Str("room", string(name)).
		Int("transports", len(transports)).Int("producers", len(producers)).Int("consumers", len(consumers)).
		Msg("peer departed")
}
