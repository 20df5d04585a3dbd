package engine

import (
	"maps"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// producer is one published media stream. It fans incoming RTP out to every
// attached consumer and cascades its close to all of them.
type producer struct {
	id     domain.ProducerID
	kind   domain.MediaKind
	params core.RTPParameters
	tr     *transport

	mu         sync.RWMutex
	consumers  map[domain.ConsumerID]*consumer
	onClose    []func()
	onKeyframe func(*rtcp.PictureLossIndication)
	closed     bool
}

func newProducer(t *transport, kind domain.MediaKind, params core.RTPParameters) *producer {
	return &producer{
		id:        domain.ProducerID(uuid.NewString()),
		kind:      kind,
		params:    params,
		tr:        t,
		consumers: make(map[domain.ConsumerID]*consumer),
	}
}

func (p *producer) ID() domain.ProducerID { return p.id }

func (p *producer) Kind() domain.MediaKind { return p.kind }

func (p *producer) RTPParameters() core.RTPParameters { return p.params }

func (p *producer) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// WriteRTP is the ingest path: it forwards one packet to every consumer that
// is live and resumed. Dead consumers are detached outside the read lock.
func (p *producer) WriteRTP(pkt *rtp.Packet) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return core.ErrClosed
	}
	snapshot := make(map[domain.ConsumerID]*consumer, len(p.consumers))
	maps.Copy(snapshot, p.consumers)
	p.mu.RUnlock()

	var dirty []domain.ConsumerID
	for id, c := range snapshot {
		if !c.deliver(pkt) {
			dirty = append(dirty, id)
		}
	}
	if len(dirty) > 0 {
		p.mu.Lock()
		for _, id := range dirty {
			delete(p.consumers, id)
		}
		p.mu.Unlock()
	}
	return nil
}

// RequestKeyframe emits a PLI toward the ingest side. Audio and closed
// producers ignore the request.
func (p *producer) RequestKeyframe() {
	p.mu.RLock()
	fn := p.onKeyframe
	closed := p.closed
	p.mu.RUnlock()
	if p.kind != domain.MediaKindVideo || closed {
		return
	}
	if fn != nil {
		fn(&rtcp.PictureLossIndication{MediaSSRC: p.params.SSRC})
	}
	log.Debug().Str("module", "engine").Str("producer", string(p.id)).Msg("keyframe requested")
}

// OnKeyframeRequest registers the ingest-side PLI handler.
func (p *producer) OnKeyframeRequest(fn func(*rtcp.PictureLossIndication)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onKeyframe = fn
}

func (p *producer) OnClose(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClose = append(p.onClose, fn)
}

func (p *producer) attach(c *consumer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consumers[c.id] = c
}

func (p *producer) detach(id domain.ConsumerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.consumers, id)
}

// Close marks the producer closed, then lets every dependent consumer fire
// its producer-close observers before the producer's own observers run.
func (p *producer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	consumers := make([]*consumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		consumers = append(consumers, c)
	}
	p.consumers = make(map[domain.ConsumerID]*consumer)
	callbacks := p.onClose
	p.mu.Unlock()

	for _, c := range consumers {
		c.producerClosed()
	}
	p.tr.removeProducer(p.id)
	p.tr.router.removeProducer(p.id)
	for _, fn := range callbacks {
		fn()
	}
	log.Info().Str("module", "engine").Str("producer", string(p.id)).Msg("producer closed")
}
