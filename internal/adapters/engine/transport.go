package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/randutil"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

const (
	iceChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890"

	// Host candidate priority per RFC 8445 defaults.
	hostCandidatePriority = 2130706431
)

type transport struct {
	id     domain.TransportID
	router *router
	info   core.TransportInfo

	mu         sync.Mutex
	connected  bool
	remoteDTLS core.DTLSParameters
	producers  map[domain.ProducerID]*producer
	consumers  map[domain.ConsumerID]*consumer
	closed     bool
}

func newTransport(r *router, opts core.TransportOptions) (*transport, error) {
	ufrag, err := randutil.GenerateCryptoRandomString(16, iceChars)
	if err != nil {
		return nil, err
	}
	pwd, err := randutil.GenerateCryptoRandomString(32, iceChars)
	if err != nil {
		return nil, err
	}

	addr := opts.AnnouncedIP
	if addr == "" {
		addr = opts.ListenIP
	}
	proto := "udp"
	if !opts.PreferUDP {
		proto = "tcp"
	}

	t := &transport{
		id:        domain.TransportID(uuid.NewString()),
		router:    r,
		producers: make(map[domain.ProducerID]*producer),
		consumers: make(map[domain.ConsumerID]*consumer),
	}
	t.info = core.TransportInfo{
		ID: t.id,
		ICEParameters: webrtc.ICEParameters{
			UsernameFragment: ufrag,
			Password:         pwd,
			ICELite:          true,
		},
		ICECandidates: []core.ICECandidate{{
			Foundation: "udpcandidate",
			Priority:   hostCandidatePriority,
			Address:    addr,
			Protocol:   proto,
			Port:       r.engine.allocPort(),
			Type:       "host",
		}},
		DTLSParameters: core.DTLSParameters{
			Role:         "auto",
			Fingerprints: []webrtc.DTLSFingerprint{newFingerprint()},
		},
	}
	return t, nil
}

// newFingerprint derives a sha-256 certificate fingerprint descriptor.
func newFingerprint() webrtc.DTLSFingerprint {
	sum := sha256.Sum256([]byte(uuid.NewString()))
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = strings.ToUpper(hex.EncodeToString([]byte{b}))
	}
	return webrtc.DTLSFingerprint{
		Algorithm: "sha-256",
		Value:     strings.Join(parts, ":"),
	}
}

func (t *transport) ID() domain.TransportID { return t.id }

func (t *transport) Info() core.TransportInfo { return t.info }

// Connect stores the remote DTLS parameters. Both ends of a connection can
// race to call it; the second call is a no-op.
func (t *transport) Connect(dtls core.DTLSParameters) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return core.ErrClosed
	}
	if t.connected {
		log.Warn().Str("module", "engine").Str("transport", string(t.id)).Msg("transport already connected, skipping")
		return nil
	}
	t.remoteDTLS = dtls
	t.connected = true
	log.Info().Str("module", "engine").Str("transport", string(t.id)).Msg("transport connected")
	return nil
}

func (t *transport) Produce(kind domain.MediaKind, params core.RTPParameters) (core.Producer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, core.ErrClosed
	}
	if !t.connected {
		return nil, core.ErrNotConnected
	}
	if params.SSRC == 0 {
		params.SSRC = randutil.NewMathRandomGenerator().Uint32()
	}
	p := newProducer(t, kind, params)
	t.producers[p.id] = p
	t.router.addProducer(p)
	return p, nil
}

func (t *transport) Consume(id domain.ProducerID, caps core.RTPCapabilities) (core.Consumer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, core.ErrClosed
	}
	src, ok := t.router.producer(id)
	if !ok || src.Closed() {
		return nil, core.ErrProducerNotFound
	}
	if !t.router.CanConsume(id, caps) {
		return nil, core.ErrCannotConsume
	}
	c := newConsumer(t, src)
	t.consumers[c.id] = c
	src.attach(c)
	return c, nil
}

func (t *transport) removeConsumer(id domain.ConsumerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.consumers, id)
}

func (t *transport) removeProducer(id domain.ProducerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.producers, id)
}

// Close tears down the transport and everything bound to it. Producer close
// cascades to dependent consumers on other transports.
func (t *transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	producers := make([]*producer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	consumers := make([]*consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	t.mu.Unlock()

	for _, p := range producers {
		p.Close()
	}
	for _, c := range consumers {
		c.Close()
	}
	t.router.removeTransport(t.id)
	log.Info().Str("module", "engine").Str("transport", string(t.id)).Msg("transport closed")
}
