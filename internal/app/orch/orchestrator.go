// Package orch is the signaling protocol handler core: it translates peer
// requests into registry mutations and media-engine calls, and engine events
// into peer notifications. All recoverable errors are returned to the caller;
// nothing here panics the signaling channel.
package orch

import (
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

const DefaultGrace = 5 * time.Second

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
	// Events is set by the signaling adapter after construction.
	Events core.EventSink
	// TransportOpts is the deployment network configuration applied to
	// every transport the engine creates.
	TransportOpts core.TransportOptions
	// Grace is the disconnect debounce window before cleanup.
	Grace time.Duration

	// mu guards graceTimers and makes transport creation single-flight
	// per (peer, direction).
	mu          sync.Mutex
	graceTimers map[domain.PeerID]*time.Timer
}

func New(reg *app.Registry, rooms *app.RoomManager, opts core.TransportOptions, grace time.Duration) *Orchestrator {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Orchestrator{
		Registry:      reg,
		Rooms:         rooms,
		TransportOpts: opts,
		Grace:         grace,
		graceTimers:   make(map[domain.PeerID]*time.Timer),
	}
}

// SetPeerDetails records display metadata sent with a join.
func (o *Orchestrator) SetPeerDetails(peer domain.PeerID, details domain.PeerDetails) {
	o.Registry.SetPeerDetails(peer, details)
}

func (o *Orchestrator) notifyNewProducer(room *app.Room, owner domain.PeerID, producer domain.ProducerID) {
	if o.Events == nil {
		return
	}
	for _, member := range room.MembersSnapshot() {
		if member == owner {
			continue
		}
		o.Events.NewProducer(member, producer, owner)
	}
}
