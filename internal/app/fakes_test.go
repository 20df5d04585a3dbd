package app

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// fakeEngine counts router creations so tests can assert one routing context
// per room name.
type fakeEngine struct {
	mu      sync.Mutex
	created int32
	onDied  func(error)
}

func (e *fakeEngine) CreateRouter(codecs []webrtc.RTPCodecCapability) (core.Router, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created++
	return &fakeRouter{id: fmt.Sprintf("router-%d", e.created), caps: core.RTPCapabilities{Codecs: codecs}}, nil
}

func (e *fakeEngine) OnDied(fn func(error)) { e.onDied = fn }

func (e *fakeEngine) Close() {}

func (e *fakeEngine) routers() int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.created
}

type fakeRouter struct {
	id     string
	caps   core.RTPCapabilities
	closed atomic.Bool
}

func (r *fakeRouter) ID() string { return r.id }

func (r *fakeRouter) Capabilities() core.RTPCapabilities { return r.caps }

func (r *fakeRouter) CreateTransport(core.TransportOptions) (core.Transport, error) {
	return &fakeTransport{id: domain.TransportID(fmt.Sprintf("%s-tr", r.id))}, nil
}

func (r *fakeRouter) CanConsume(domain.ProducerID, core.RTPCapabilities) bool { return true }

func (r *fakeRouter) Close() { r.closed.Store(true) }

type fakeTransport struct {
	id     domain.TransportID
	closed atomic.Bool
}

func (t *fakeTransport) ID() domain.TransportID { return t.id }

func (t *fakeTransport) Info() core.TransportInfo { return core.TransportInfo{ID: t.id} }

func (t *fakeTransport) Connect(core.DTLSParameters) error { return nil }

func (t *fakeTransport) Produce(kind domain.MediaKind, params core.RTPParameters) (core.Producer, error) {
	return &fakeProducer{id: domain.ProducerID(string(t.id) + "-p"), kind: kind}, nil
}

func (t *fakeTransport) Consume(id domain.ProducerID, caps core.RTPCapabilities) (core.Consumer, error) {
	return &fakeConsumer{id: domain.ConsumerID(string(t.id) + "-c"), producer: id}, nil
}

func (t *fakeTransport) Close() { t.closed.Store(true) }

type fakeProducer struct {
	id     domain.ProducerID
	kind   domain.MediaKind
	closed atomic.Bool
}

func (p *fakeProducer) ID() domain.ProducerID { return p.id }

func (p *fakeProducer) Kind() domain.MediaKind { return p.kind }

func (p *fakeProducer) Closed() bool { return p.closed.Load() }

func (p *fakeProducer) RequestKeyframe() {}

func (p *fakeProducer) OnClose(func()) {}

func (p *fakeProducer) Close() { p.closed.Store(true) }

type fakeConsumer struct {
	id       domain.ConsumerID
	producer domain.ProducerID
	resumed  atomic.Bool
	closed   atomic.Bool
}

func (c *fakeConsumer) ID() domain.ConsumerID { return c.id }

func (c *fakeConsumer) ProducerID() domain.ProducerID { return c.producer }

func (c *fakeConsumer) Kind() domain.MediaKind { return domain.MediaKindAudio }

func (c *fakeConsumer) RTPParameters() core.RTPParameters { return core.RTPParameters{} }

func (c *fakeConsumer) Paused() bool { return !c.resumed.Load() }

func (c *fakeConsumer) Resume() { c.resumed.Store(true) }

func (c *fakeConsumer) OnProducerClose(func()) {}

func (c *fakeConsumer) Close() { c.closed.Store(true) }

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}
