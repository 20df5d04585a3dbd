package engine

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/randutil"
	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

const (
	statePaused int32 = iota
	stateActive
	stateClosed
)

const consumerQueueLen = 64

// consumer is one subscribed media stream. It starts paused so the first
// frames are not dropped before the receiving pipeline is ready.
type consumer struct {
	id     domain.ConsumerID
	src    *producer
	params core.RTPParameters
	tr     *transport

	state atomic.Int32 // statePaused by default
	ch    chan *rtp.Packet
	done  chan struct{}

	mu              sync.Mutex
	closeOnce       sync.Once
	onProducerClose []func()
}

func newConsumer(t *transport, src *producer) *consumer {
	params := src.RTPParameters()
	params.SSRC = randutil.NewMathRandomGenerator().Uint32()
	return &consumer{
		id:     domain.ConsumerID(uuid.NewString()),
		src:    src,
		params: params,
		tr:     t,
		ch:     make(chan *rtp.Packet, consumerQueueLen),
		done:   make(chan struct{}),
	}
}

func (c *consumer) ID() domain.ConsumerID { return c.id }

func (c *consumer) ProducerID() domain.ProducerID { return c.src.id }

func (c *consumer) Kind() domain.MediaKind { return c.src.kind }

func (c *consumer) RTPParameters() core.RTPParameters { return c.params }

func (c *consumer) Paused() bool { return c.state.Load() == statePaused }

// Resume activates a paused consumer; resuming twice (or after close) is a
// no-op.
func (c *consumer) Resume() {
	c.state.CompareAndSwap(statePaused, stateActive)
}

// deliver queues one packet. Reports false when the consumer is gone and the
// caller should detach it; paused consumers drop packets but stay attached.
func (c *consumer) deliver(pkt *rtp.Packet) bool {
	switch c.state.Load() {
	case stateClosed:
		return false
	case statePaused:
		return true
	}
	select {
	case c.ch <- pkt:
	default:
		// Slow reader: drop rather than block the fan-out.
	}
	return true
}

// ReadRTP blocks until the next packet or until the consumer closes.
func (c *consumer) ReadRTP() (*rtp.Packet, error) {
	select {
	case pkt := <-c.ch:
		return pkt, nil
	case <-c.done:
		return nil, io.EOF
	}
}

func (c *consumer) OnProducerClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onProducerClose = append(c.onProducerClose, fn)
}

// producerClosed is invoked by the upstream producer's close cascade: the
// consumer closes first, then its observers run.
func (c *consumer) producerClosed() {
	c.Close()
	c.mu.Lock()
	callbacks := c.onProducerClose
	c.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
	log.Info().Str("module", "engine").Str("consumer", string(c.id)).Str("producer", string(c.src.id)).Msg("upstream producer closed")
}

func (c *consumer) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(stateClosed)
		close(c.done)
		c.src.detach(c.id)
		c.tr.removeConsumer(c.id)
		log.Info().Str("module", "engine").Str("consumer", string(c.id)).Msg("consumer closed")
	})
}
