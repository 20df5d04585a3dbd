package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Meet/internal/domain"
)

// RTPCapabilities is the negotiated codec capability set of a routing
// context (or of a client device).
type RTPCapabilities struct {
	Codecs []webrtc.RTPCodecCapability `json:"codecs"`
}

// RTPParameters describes a single produced/consumed media stream.
type RTPParameters struct {
	MimeType  string `json:"mimeType"`
	ClockRate uint32 `json:"clockRate"`
	Channels  uint16 `json:"channels,omitempty"`
	SSRC      uint32 `json:"ssrc,omitempty"`
}

// DTLSParameters is one side's DTLS role and certificate fingerprints.
type DTLSParameters struct {
	Role         string                   `json:"role"`
	Fingerprints []webrtc.DTLSFingerprint `json:"fingerprints"`
}

// ICECandidate is a transport-local candidate as announced to the client.
type ICECandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	Address    string `json:"address"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
}

// TransportOptions is deployment network configuration for new transports.
type TransportOptions struct {
	ListenIP    string
	AnnouncedIP string
	PreferUDP   bool
	ICEServers  []webrtc.ICEServer
}

// TransportInfo carries everything the client needs to connect a transport.
type TransportInfo struct {
	ID             domain.TransportID   `json:"id"`
	ICEParameters  webrtc.ICEParameters `json:"iceParameters"`
	ICECandidates  []ICECandidate       `json:"iceCandidates"`
	DTLSParameters DTLSParameters       `json:"dtlsParameters"`
}

// ConsumerInfo carries everything the client needs to mirror a consumer.
type ConsumerInfo struct {
	ID            domain.ConsumerID `json:"id"`
	ProducerID    domain.ProducerID `json:"producerId"`
	Kind          domain.MediaKind  `json:"kind"`
	RTPParameters RTPParameters     `json:"rtpParameters"`
}

// MediaEngine is the external media-routing collaborator. The server only
// does bookkeeping around it; routing, codecs and crypto live behind it.
type MediaEngine interface {
	CreateRouter(codecs []webrtc.RTPCodecCapability) (Router, error)
	// OnDied registers a callback for unrecoverable engine failure.
	// There is no per-room recovery; the process must restart.
	OnDied(func(error))
	Close()
}

// Router is the per-room routing context.
type Router interface {
	ID() string
	Capabilities() RTPCapabilities
	CreateTransport(TransportOptions) (Transport, error)
	// CanConsume reports whether the producer can be consumed under the
	// given device capabilities.
	CanConsume(domain.ProducerID, RTPCapabilities) bool
	Close()
}

// Transport is one peer's send or receive media channel.
type Transport interface {
	ID() domain.TransportID
	Info() TransportInfo
	// Connect completes the DTLS handshake. Calling it on an already
	// connected transport is a no-op, not an error.
	Connect(DTLSParameters) error
	Produce(kind domain.MediaKind, params RTPParameters) (Producer, error)
	// Consume creates a consumer bound to the given upstream producer.
	// Consumers start paused and must be resumed explicitly.
	Consume(domain.ProducerID, RTPCapabilities) (Consumer, error)
	Close()
}

type Producer interface {
	ID() domain.ProducerID
	Kind() domain.MediaKind
	Closed() bool
	// RequestKeyframe is best-effort; ignored for audio or closed producers.
	RequestKeyframe()
	OnClose(func())
	Close()
}

type Consumer interface {
	ID() domain.ConsumerID
	ProducerID() domain.ProducerID
	Kind() domain.MediaKind
	RTPParameters() RTPParameters
	Paused() bool
	// Resume activates a paused consumer. Resuming twice is a no-op.
	Resume()
	// OnProducerClose fires when the upstream producer disappears; the
	// consumer is closed by the engine before the callback runs.
	OnProducerClose(func())
	Close()
}
