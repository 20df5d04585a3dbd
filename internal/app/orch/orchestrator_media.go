package orch

import (
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// CreateTransport creates (or reuses) the peer's transport for the given
// direction. Creation is single-flight: two racing requests for the same
// (peer, direction) observe exactly one stored transport.
func (o *Orchestrator) CreateTransport(peer domain.PeerID, consumer bool) (core.TransportInfo, bool, error) {
	p, ok := o.Registry.Peer(peer)
	if !ok {
		return core.TransportInfo{}, false, core.ErrPeerNotFound
	}
	room, ok := o.Rooms.Get(p.Room)
	if !ok {
		return core.TransportInfo{}, false, core.ErrRoomNotFound
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.Registry.TransportByDirection(peer, consumer); ok {
		log.Warn().Str("module", "orch").Str("peer", string(peer)).Bool("consumer", consumer).Msg("transport already exists, reusing")
		return e.Transport.Info(), true, nil
	}
	t, err := room.Router().CreateTransport(o.TransportOpts)
	if err != nil {
		return core.TransportInfo{}, false, err
	}
	o.Registry.AddTransport(peer, p.Room, consumer, t)
	log.Info().Str("module", "orch").Str("peer", string(peer)).Str("transport", string(t.ID())).Bool("consumer", consumer).Msg("transport created")
	return t.Info(), false, nil
}

// ConnectTransport completes the DTLS handshake on the identified transport,
// or on the peer's send transport when no id is given. Stale or duplicate
// requests are logged and swallowed so they never crash the channel.
func (o *Orchestrator) ConnectTransport(peer domain.PeerID, id domain.TransportID, dtls core.DTLSParameters) {
	var e *app.TransportEntry
	var ok bool
	if id != "" {
		e, ok = o.Registry.TransportByID(id)
	} else {
		e, ok = o.Registry.TransportByDirection(peer, false)
	}
	if !ok || e.Peer != peer {
		log.Warn().Str("module", "orch").Str("peer", string(peer)).Str("transport", string(id)).Msg("connect: no transport found, ignoring")
		return
	}
	if err := e.Transport.Connect(dtls); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("peer", string(peer)).Str("transport", string(e.Transport.ID())).Msg("connect transport")
	}
}

// Produce creates a producer on the peer's send transport, registers it, and
// fans out new-producer to the rest of the room. Registration happens before
// the fan-out, so a notified peer can always resolve the id via getProducers.
func (o *Orchestrator) Produce(peer domain.PeerID, kind domain.MediaKind, params core.RTPParameters) (domain.ProducerID, bool, error) {
	if !kind.Valid() {
		return "", false, fmt.Errorf("unsupported media kind %q", kind)
	}
	p, ok := o.Registry.Peer(peer)
	if !ok {
		return "", false, core.ErrPeerNotFound
	}
	room, ok := o.Rooms.Get(p.Room)
	if !ok {
		return "", false, core.ErrRoomNotFound
	}
	e, ok := o.Registry.TransportByDirection(peer, false)
	if !ok {
		return "", false, core.ErrNoSendTransport
	}

	producer, err := e.Transport.Produce(kind, params)
	if err != nil {
		return "", false, err
	}
	id := producer.ID()
	o.Registry.AddProducer(peer, p.Room, producer)
	producer.OnClose(func() { o.Registry.RemoveProducer(id) })

	o.notifyNewProducer(room, peer, id)
	log.Info().Str("module", "orch").Str("peer", string(peer)).Str("producer", string(id)).Str("kind", string(kind)).Msg("producer created")
	return id, o.Registry.ProducerCount() > 1, nil
}

// Producers lists the producers of the caller's room, excluding its own.
func (o *Orchestrator) Producers(peer domain.PeerID) ([]app.ProducerSnap, error) {
	p, ok := o.Registry.Peer(peer)
	if !ok {
		return nil, core.ErrPeerNotFound
	}
	return o.Registry.ProducersInRoom(p.Room, peer), nil
}

// Consume binds a paused consumer to the peer's receive transport for the
// given upstream producer. Self-consumption and capability mismatches are
// rejected before any engine call that allocates.
func (o *Orchestrator) Consume(peer domain.PeerID, remote domain.ProducerID, caps core.RTPCapabilities, transportID domain.TransportID) (core.ConsumerInfo, error) {
	p, ok := o.Registry.Peer(peer)
	if !ok {
		return core.ConsumerInfo{}, core.ErrPeerNotFound
	}
	room, ok := o.Rooms.Get(p.Room)
	if !ok {
		return core.ConsumerInfo{}, core.ErrRoomNotFound
	}
	pe, ok := o.Registry.Producer(remote)
	if !ok {
		return core.ConsumerInfo{}, core.ErrProducerNotFound
	}
	if pe.Peer == peer {
		return core.ConsumerInfo{}, core.ErrSelfConsume
	}
	te, ok := o.Registry.TransportByID(transportID)
	if !ok || !te.Consumer || te.Peer != peer {
		return core.ConsumerInfo{}, core.ErrTransportNotFound
	}
	if !room.Router().CanConsume(remote, caps) {
		return core.ConsumerInfo{}, core.ErrCannotConsume
	}

	consumer, err := te.Transport.Consume(remote, caps)
	if err != nil {
		return core.ConsumerInfo{}, err
	}
	id := consumer.ID()
	o.Registry.AddConsumer(peer, p.Room, consumer)
	consumer.OnProducerClose(func() {
		o.Registry.RemoveConsumer(id)
		if o.Events != nil {
			o.Events.ProducerClosed(peer, remote)
		}
	})

	log.Info().Str("module", "orch").Str("peer", string(peer)).Str("consumer", string(id)).Str("producer", string(remote)).Msg("consumer created")
	return core.ConsumerInfo{
		ID:            id,
		ProducerID:    remote,
		Kind:          consumer.Kind(),
		RTPParameters: consumer.RTPParameters(),
	}, nil
}

// ResumeConsumer activates a paused consumer once the client pipeline is
// ready. Unknown ids are logged and ignored.
func (o *Orchestrator) ResumeConsumer(peer domain.PeerID, id domain.ConsumerID) {
	e, ok := o.Registry.Consumer(id)
	if !ok || e.Peer != peer {
		log.Error().Str("module", "orch").Str("peer", string(peer)).Str("consumer", string(id)).Msg("resume: consumer not found")
		return
	}
	e.Consumer.Resume()
	log.Info().Str("module", "orch").Str("peer", string(peer)).Str("consumer", string(id)).Msg("consumer resumed")
}

// RequestKeyframe asks the engine for a fresh keyframe on a video producer.
// Best-effort: audio, closed or unknown producers are silently ignored.
func (o *Orchestrator) RequestKeyframe(peer domain.PeerID, id domain.ProducerID) {
	e, ok := o.Registry.Producer(id)
	if !ok {
		log.Debug().Str("module", "orch").Str("peer", string(peer)).Str("producer", string(id)).Msg("keyframe: producer not found")
		return
	}
	e.Producer.RequestKeyframe()
}

// RelayCandidate forwards a trickle ICE candidate to the rest of the room.
func (o *Orchestrator) RelayCandidate(from domain.PeerID, cand webrtc.ICECandidateInit) {
	if o.Events == nil {
		return
	}
	p, ok := o.Registry.Peer(from)
	if !ok {
		return
	}
	room, ok := o.Rooms.Get(p.Room)
	if !ok {
		return
	}
	for _, member := range room.MembersSnapshot() {
		if member == from {
			continue
		}
		o.Events.Candidate(member, from, cand)
	}
}
