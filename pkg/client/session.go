package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// Signaler is the call surface Session needs; *Client satisfies it.
type Signaler interface {
	Call(ctx context.Context, typ string, payload, out any) error
	Notify(typ string, payload any) error
}

// ConsumerStarted is invoked for every consumer the session sets up, after
// the server acknowledged it but before resume. Returning a non-nil error
// skips the resume.
type ConsumerStarted func(info core.ConsumerInfo, owner domain.PeerID) error

// Session mirrors one peer's server-side state: the joined room, device
// capabilities, one send and one receive transport, produced track ids and
// the set of already-consumed remote producers. All methods are safe for
// concurrent use.
type Session struct {
	sig Signaler

	mu       sync.Mutex
	room     domain.RoomName
	caps     core.RTPCapabilities
	sendTr   *core.TransportInfo
	recvTr   *core.TransportInfo
	produced []domain.ProducerID
	// consumed guards at-most-once consumption per remote producer.
	consumed map[domain.ProducerID]domain.ConsumerID

	onConsumer ConsumerStarted
	onClosed   func(domain.ProducerID)
}

func NewSession(sig Signaler) *Session {
	return &Session{
		sig:      sig,
		consumed: make(map[domain.ProducerID]domain.ConsumerID),
	}
}

// OnConsumerStarted sets the media-side hook for new consumers.
func (s *Session) OnConsumerStarted(h ConsumerStarted) {
	s.mu.Lock()
	s.onConsumer = h
	s.mu.Unlock()
}

// OnProducerClosed sets the hook invoked when a remote producer goes away.
func (s *Session) OnProducerClosed(h func(domain.ProducerID)) {
	s.mu.Lock()
	s.onClosed = h
	s.mu.Unlock()
}

// HandleNotification is wired as the Client's NotificationHandler.
func (s *Session) HandleNotification(ctx context.Context) NotificationHandler {
	return func(typ string, data json.RawMessage) {
		switch typ {
		case signal.TypeNewProducer:
			var ev signal.NewProducerEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				return
			}
			// The event names one producer, but re-fetching the full list
			// covers producers announced while we were joining.
			if err := s.SyncProducers(ctx); err != nil {
				log.Warn().Err(err).Str("module", "client").Msg("producer sync failed")
			}
		case signal.TypeProducerClosed:
			var ev signal.ProducerClosedEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				return
			}
			s.handleProducerClosed(ev.RemoteProducerID)
		}
	}
}

// Join enters a room and stores the router capabilities. Any state from a
// previous room is dropped.
func (s *Session) Join(ctx context.Context, room domain.RoomName) (core.RTPCapabilities, error) {
	var resp signal.JoinRoomResponse
	err := s.sig.Call(ctx, signal.TypeJoinRoom, signal.JoinRoomRequest{RoomName: room}, &resp)
	if err != nil {
		return core.RTPCapabilities{}, err
	}

	s.mu.Lock()
	if s.room != room {
		s.sendTr = nil
		s.recvTr = nil
		s.produced = nil
		s.consumed = make(map[domain.ProducerID]domain.ConsumerID)
	}
	s.room = room
	s.caps = resp.RTPCapabilities
	s.mu.Unlock()
	return resp.RTPCapabilities, nil
}

func (s *Session) Capabilities() core.RTPCapabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

// EnsureSendTransport creates the send transport on first use and returns
// the cached parameters afterwards.
func (s *Session) EnsureSendTransport(ctx context.Context) (core.TransportInfo, error) {
	return s.ensureTransport(ctx, false)
}

// EnsureRecvTransport creates the receive transport on first use.
func (s *Session) EnsureRecvTransport(ctx context.Context) (core.TransportInfo, error) {
	return s.ensureTransport(ctx, true)
}

func (s *Session) ensureTransport(ctx context.Context, consumer bool) (core.TransportInfo, error) {
	s.mu.Lock()
	cached := s.sendTr
	if consumer {
		cached = s.recvTr
	}
	s.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	var resp signal.CreateTransportResponse
	err := s.sig.Call(ctx, signal.TypeCreateTransport, signal.CreateTransportRequest{Consumer: consumer}, &resp)
	if err != nil {
		return core.TransportInfo{}, err
	}

	s.mu.Lock()
	if consumer {
		s.recvTr = &resp.Params
	} else {
		s.sendTr = &resp.Params
	}
	s.mu.Unlock()
	return resp.Params, nil
}

// ConnectSendTransport finishes the DTLS handshake of the send transport.
func (s *Session) ConnectSendTransport(dtls core.DTLSParameters) error {
	return s.sig.Notify(signal.TypeTransportConnect, signal.TransportConnectRequest{DTLSParameters: dtls})
}

// ConnectRecvTransport finishes the DTLS handshake of the receive transport.
func (s *Session) ConnectRecvTransport(dtls core.DTLSParameters) error {
	s.mu.Lock()
	tr := s.recvTr
	s.mu.Unlock()
	if tr == nil {
		return core.ErrTransportNotFound
	}
	return s.sig.Notify(signal.TypeTransportConnect, signal.TransportConnectRequest{
		TransportID:    tr.ID,
		DTLSParameters: dtls,
	})
}

// Produce registers a local track with the server. The second return value
// reports whether other peers in the room already have producers.
func (s *Session) Produce(ctx context.Context, kind domain.MediaKind, params core.RTPParameters) (domain.ProducerID, bool, error) {
	var resp signal.ProduceResponse
	err := s.sig.Call(ctx, signal.TypeTransportProduce, signal.ProduceRequest{Kind: kind, RTPParameters: params}, &resp)
	if err != nil {
		return "", false, err
	}
	s.mu.Lock()
	s.produced = append(s.produced, resp.ID)
	s.mu.Unlock()
	return resp.ID, resp.ProducersExist, nil
}

func (s *Session) Produced() []domain.ProducerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ProducerID, len(s.produced))
	copy(out, s.produced)
	return out
}

// SyncProducers fetches the room's producer list and consumes every remote
// producer not yet consumed. Safe to call repeatedly and concurrently: each
// producer is consumed at most once.
func (s *Session) SyncProducers(ctx context.Context) error {
	var resp signal.GetProducersResponse
	if err := s.sig.Call(ctx, signal.TypeGetProducers, nil, &resp); err != nil {
		return err
	}
	for _, p := range resp.Producers {
		if err := s.ConsumeOne(ctx, p.ID, p.Peer); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("producer", string(p.ID)).Msg("consume failed")
		}
	}
	return nil
}

// ConsumeOne consumes a single remote producer unless it was consumed
// before, then resumes the consumer.
func (s *Session) ConsumeOne(ctx context.Context, producer domain.ProducerID, owner domain.PeerID) error {
	s.mu.Lock()
	if _, done := s.consumed[producer]; done {
		s.mu.Unlock()
		return nil
	}
	// Reserve before the call so a concurrent sync skips this producer.
	s.consumed[producer] = ""
	tr := s.recvTr
	caps := s.caps
	hook := s.onConsumer
	s.mu.Unlock()

	if tr == nil {
		s.release(producer)
		return core.ErrTransportNotFound
	}

	var resp signal.ConsumeResponse
	err := s.sig.Call(ctx, signal.TypeConsume, signal.ConsumeRequest{
		RTPCapabilities:           caps,
		RemoteProducerID:          producer,
		ServerConsumerTransportID: tr.ID,
	}, &resp)
	if err != nil {
		s.release(producer)
		return err
	}

	s.mu.Lock()
	s.consumed[producer] = resp.Params.ID
	s.mu.Unlock()

	if hook != nil {
		if err := hook(resp.Params, owner); err != nil {
			return err
		}
	}
	return s.ResumeConsumer(resp.Params.ID)
}

// ResumeConsumer unpauses a server-side consumer. Consumers start paused, so
// this is the second half of every consume.
func (s *Session) ResumeConsumer(id domain.ConsumerID) error {
	return s.sig.Notify(signal.TypeConsumerResume, signal.ConsumerResumeRequest{ServerConsumerID: id})
}

// RequestKeyframe asks the producer's origin for a fresh keyframe.
func (s *Session) RequestKeyframe(producer domain.ProducerID) error {
	return s.sig.Notify(signal.TypeRequestKeyframe, signal.KeyframeRequest{ProducerID: producer})
}

// SendCandidate relays a local ICE candidate to the other room members.
func (s *Session) SendCandidate(cand webrtc.ICECandidateInit) error {
	return s.sig.Notify(signal.TypeICECandidate, signal.CandidatePayload{Candidate: cand})
}

// Consumed reports the consumer id for a remote producer, if any.
func (s *Session) Consumed(producer domain.ProducerID) (domain.ConsumerID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.consumed[producer]
	return id, ok && id != ""
}

func (s *Session) release(producer domain.ProducerID) {
	s.mu.Lock()
	delete(s.consumed, producer)
	s.mu.Unlock()
}

func (s *Session) handleProducerClosed(producer domain.ProducerID) {
	s.mu.Lock()
	_, known := s.consumed[producer]
	delete(s.consumed, producer)
	hook := s.onClosed
	s.mu.Unlock()
	if known && hook != nil {
		hook(producer)
	}
}
