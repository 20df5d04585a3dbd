package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Meet/internal/domain"
)

// Frame is a raw binary payload (one signaling message).
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// EventSink receives server-initiated notifications for a peer. Implemented
// by the signaling adapter; the orchestrator never builds wire frames itself.
type EventSink interface {
	NewProducer(to domain.PeerID, producer domain.ProducerID, owner domain.PeerID)
	ProducerClosed(to domain.PeerID, producer domain.ProducerID)
	Candidate(to domain.PeerID, from domain.PeerID, candidate webrtc.ICECandidateInit)
}
