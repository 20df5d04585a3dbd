// Package engine is an in-process reference media engine. It implements the
// routing-context binding the server coordinates against: capability sets,
// transport descriptors, paused consumers and producer-close cascades, with
// RTP fan-out from producers to their consumers. A deployment backed by a
// native engine replaces this package behind the same core interfaces.
package engine

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
)

type Engine struct {
	mu      sync.Mutex
	routers map[string]*router
	onDied  func(error)
	closed  bool

	minPort, maxPort, nextPort uint16
}

func New(minPort, maxPort uint16) *Engine {
	if minPort == 0 || maxPort < minPort {
		minPort, maxPort = 40000, 40100
	}
	return &Engine{
		routers:  make(map[string]*router),
		minPort:  minPort,
		maxPort:  maxPort,
		nextPort: minPort,
	}
}

func (e *Engine) CreateRouter(codecs []webrtc.RTPCodecCapability) (core.Router, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, core.ErrClosed
	}
	r := &router{
		id:         uuid.NewString(),
		engine:     e,
		caps:       core.RTPCapabilities{Codecs: codecs},
		transports: make(map[string]*transport),
		producers:  make(map[string]*producer),
	}
	e.routers[r.id] = r
	log.Info().Str("module", "engine").Str("router", r.id).Int("codecs", len(codecs)).Msg("router created")
	return r, nil
}

// OnDied registers the fatal-failure callback. The reference engine has no
// worker process to lose, but the contract is part of the binding: callers
// must treat it as unrecoverable.
func (e *Engine) OnDied(fn func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onDied = fn
}

func (e *Engine) die(err error) {
	e.mu.Lock()
	fn := e.onDied
	e.mu.Unlock()
	if fn != nil {
		go fn(err)
	}
}

func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	routers := make([]*router, 0, len(e.routers))
	for _, r := range e.routers {
		routers = append(routers, r)
	}
	e.routers = make(map[string]*router)
	e.mu.Unlock()

	for _, r := range routers {
		r.Close()
	}
}

// allocPort hands out candidate ports from the configured range, wrapping
// around; ports here are descriptors, not bound sockets.
func (e *Engine) allocPort() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.nextPort
	e.nextPort++
	if e.nextPort > e.maxPort {
		e.nextPort = e.minPort
	}
	return p
}

func (e *Engine) removeRouter(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.routers, id)
}
