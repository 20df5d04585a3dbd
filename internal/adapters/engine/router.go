package engine

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// router is the per-room routing context: it owns the negotiated capability
// set and the transports/producers created under it.
type router struct {
	id     string
	engine *Engine
	caps   core.RTPCapabilities

	mu         sync.RWMutex
	transports map[string]*transport
	producers  map[string]*producer
	closed     bool
}

func (r *router) ID() string { return r.id }

func (r *router) Capabilities() core.RTPCapabilities { return r.caps }

func (r *router) CreateTransport(opts core.TransportOptions) (core.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, core.ErrClosed
	}
	t, err := newTransport(r, opts)
	if err != nil {
		return nil, err
	}
	r.transports[string(t.id)] = t
	log.Info().Str("module", "engine").Str("router", r.id).Str("transport", string(t.id)).Msg("transport created")
	return t, nil
}

// CanConsume checks that the producer exists and that the given capability
// set carries a codec matching the producer's stream.
func (r *router) CanConsume(id domain.ProducerID, caps core.RTPCapabilities) bool {
	r.mu.RLock()
	p, ok := r.producers[string(id)]
	r.mu.RUnlock()
	if !ok || p.Closed() {
		return false
	}
	params := p.RTPParameters()
	for _, c := range caps.Codecs {
		if !strings.EqualFold(c.MimeType, params.MimeType) {
			continue
		}
		if c.ClockRate != params.ClockRate {
			continue
		}
		if params.Channels != 0 && c.Channels != params.Channels {
			continue
		}
		return true
	}
	return false
}

func (r *router) producer(id domain.ProducerID) (*producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[string(id)]
	return p, ok
}

func (r *router) addProducer(p *producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[string(p.id)] = p
}

func (r *router) removeProducer(id domain.ProducerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.producers, string(id))
}

func (r *router) removeTransport(id domain.TransportID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.transports, string(id))
}

func (r *router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	transports := make([]*transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	r.mu.Unlock()

	for _, t := range transports {
		t.Close()
	}
	r.engine.removeRouter(r.id)
	log.Info().Str("module", "engine").Str("router", r.id).Msg("router closed")
}
