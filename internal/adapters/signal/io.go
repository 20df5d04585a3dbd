package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, peer domain.PeerID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("peer", string(peer)).Msg("readPump closing")
		cancel()
		c.Close()
		// Transport-level disconnect: cleanup is deferred by the grace
		// window, cancelled if the peer reconnects with its token.
		ctl.Orch.Disconnect(peer, c)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("peer", string(peer)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Str("peer", string(peer)).Msg("readPump read error")
				return
			}
			ctl.handleMessage(peer, c, data)
		}
	}
}

func (ctl *Controller) handleMessage(peer domain.PeerID, c *wsConn, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case TypeJoinRoom:
		ctl.handleJoinRoom(peer, c, env)
	case TypeCreateTransport:
		ctl.handleCreateTransport(peer, c, env)
	case TypeTransportConnect:
		ctl.handleTransportConnect(peer, env)
	case TypeTransportProduce:
		ctl.handleProduce(peer, c, env)
	case TypeGetProducers:
		ctl.handleGetProducers(peer, c, env)
	case TypeConsume:
		ctl.handleConsume(peer, c, env)
	case TypeConsumerResume:
		ctl.handleConsumerResume(peer, env)
	case TypeRequestKeyframe:
		ctl.handleRequestKeyframe(peer, env)
	case TypeICECandidate:
		ctl.handleCandidate(peer, env)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

// respond acknowledges a request with a result payload.
func (ctl *Controller) respond(c *wsConn, id uint64, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("respond marshal")
		return
	}
	ctl.sendEnvelope(c, Envelope{Type: TypeResponse, ID: id, Data: data})
}

// respondErr acknowledges a request with an error result. Recoverable errors
// always travel back this way, never as a dropped connection.
func (ctl *Controller) respondErr(c *wsConn, id uint64, err error) {
	data, merr := json.Marshal(ErrorResult{Error: err.Error()})
	if merr != nil {
		return
	}
	ctl.sendEnvelope(c, Envelope{Type: TypeResponse, ID: id, Data: data})
}

func (ctl *Controller) push(conn core.SignalConnection, typ string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("push marshal")
		return
	}
	b, err := json.Marshal(Envelope{Type: typ, Data: data})
	if err != nil {
		return
	}
	if err := conn.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", typ).Msg("notification dropped")
	}
}

func (ctl *Controller) sendEnvelope(c *wsConn, env Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendEnvelope marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", env.Type).Msg("send dropped")
	}
}
