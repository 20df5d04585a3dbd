package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
)

func (ctl *Controller) handleJoinRoom(peer domain.PeerID, c *wsConn, env Envelope) {
	var p JoinRoomRequest
	if err := json.Unmarshal(env.Data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad joinRoom payload")
		ctl.respondErr(c, env.ID, err)
		return
	}

	caps, err := ctl.Orch.Join(peer, p.RoomName)
	if err == nil && p.Name != "" {
		ctl.Orch.SetPeerDetails(peer, domain.PeerDetails{Name: p.Name})
	}
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("peer", string(peer)).Str("room", string(p.RoomName)).Msg("join failed")
		ctl.respondErr(c, env.ID, err)
		return
	}
	ctl.respond(c, env.ID, JoinRoomResponse{RTPCapabilities: caps})
}

func (ctl *Controller) handleGetProducers(peer domain.PeerID, c *wsConn, env Envelope) {
	producers, err := ctl.Orch.Producers(peer)
	if err != nil {
		ctl.respondErr(c, env.ID, err)
		return
	}
	log.Debug().Str("module", "signal").Str("peer", string(peer)).Int("count", len(producers)).Msg("returning producers")
	ctl.respond(c, env.ID, GetProducersResponse{Producers: producers})
}
