package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
)

func (ctl *Controller) handleCreateTransport(peer domain.PeerID, c *wsConn, env Envelope) {
	var p CreateTransportRequest
	if err := json.Unmarshal(env.Data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad createWebRtcTransport payload")
		ctl.respondErr(c, env.ID, err)
		return
	}

	info, reused, err := ctl.Orch.CreateTransport(peer, p.Consumer)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("peer", string(peer)).Msg("create transport failed")
		ctl.respondErr(c, env.ID, err)
		return
	}
	if reused {
		log.Warn().Str("module", "signal").Str("peer", string(peer)).Msg("returning existing transport params")
	}
	ctl.respond(c, env.ID, CreateTransportResponse{Params: info})
}

// handleTransportConnect is fire-and-forget: stale or duplicate requests are
// tolerated silently.
func (ctl *Controller) handleTransportConnect(peer domain.PeerID, env Envelope) {
	var p TransportConnectRequest
	if err := json.Unmarshal(env.Data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad transport-connect payload")
		return
	}
	ctl.Orch.ConnectTransport(peer, p.TransportID, p.DTLSParameters)
}

func (ctl *Controller) handleProduce(peer domain.PeerID, c *wsConn, env Envelope) {
	var p ProduceRequest
	if err := json.Unmarshal(env.Data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad transport-produce payload")
		ctl.respondErr(c, env.ID, err)
		return
	}

	id, producersExist, err := ctl.Orch.Produce(peer, p.Kind, p.RTPParameters)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("peer", string(peer)).Msg("produce failed")
		ctl.respondErr(c, env.ID, err)
		return
	}
	ctl.respond(c, env.ID, ProduceResponse{ID: id, ProducersExist: producersExist})
}

func (ctl *Controller) handleConsume(peer domain.PeerID, c *wsConn, env Envelope) {
	var p ConsumeRequest
	if err := json.Unmarshal(env.Data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad consume payload")
		ctl.respondErr(c, env.ID, err)
		return
	}

	info, err := ctl.Orch.Consume(peer, p.RemoteProducerID, p.RTPCapabilities, p.ServerConsumerTransportID)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("peer", string(peer)).Str("producer", string(p.RemoteProducerID)).Msg("consume failed")
		ctl.respondErr(c, env.ID, err)
		return
	}
	ctl.respond(c, env.ID, ConsumeResponse{Params: info})
}

func (ctl *Controller) handleConsumerResume(peer domain.PeerID, env Envelope) {
	var p ConsumerResumeRequest
	if err := json.Unmarshal(env.Data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad consumer-resume payload")
		return
	}
	ctl.Orch.ResumeConsumer(peer, p.ServerConsumerID)
}

func (ctl *Controller) handleRequestKeyframe(peer domain.PeerID, env Envelope) {
	var p KeyframeRequest
	if err := json.Unmarshal(env.Data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad request-keyframe payload")
		return
	}
	ctl.Orch.RequestKeyframe(peer, p.ProducerID)
}

func (ctl *Controller) handleCandidate(peer domain.PeerID, env Envelope) {
	var p CandidatePayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad ice-candidate payload")
		return
	}
	ctl.Orch.RelayCandidate(peer, p.Candidate)
}
