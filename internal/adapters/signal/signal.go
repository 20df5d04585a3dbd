package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Controller drives the signaling protocol over websocket. It also
// implements core.EventSink so the orchestrator can push notifications.
type Controller struct {
	Orch *orch.Orchestrator
	Cfg  *config.Config
}

func NewController(o *orch.Orchestrator, cfg *config.Config) *Controller {
	return &Controller{Orch: o, Cfg: cfg}
}

type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the HTTP request, binds the connection to the peer
// token and starts the read/write pumps.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	peer := domain.PeerID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("peer", string(peer)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.Cfg != nil && ctl.Cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.Cfg.ReadLimit)
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	resumed := ctl.Orch.Attach(peer, conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, peer, conn)

	ctl.notify(peer, TypeConnectionSuccess, ConnectionSuccess{SocketID: peer})
	if resumed {
		log.Info().Str("module", "signal").Str("peer", string(peer)).Msg("session resumed")
	}
}

// notify pushes one fire-and-forget event to a peer's current connection.
func (ctl *Controller) notify(peer domain.PeerID, typ string, payload any) {
	conn, ok := ctl.Orch.Registry.Conn(peer)
	if !ok {
		return
	}
	ctl.push(conn, typ, payload)
}

// NewProducer implements core.EventSink.
func (ctl *Controller) NewProducer(to domain.PeerID, producer domain.ProducerID, owner domain.PeerID) {
	ctl.notify(to, TypeNewProducer, NewProducerEvent{ProducerID: producer, PeerID: owner})
}

// ProducerClosed implements core.EventSink.
func (ctl *Controller) ProducerClosed(to domain.PeerID, producer domain.ProducerID) {
	ctl.notify(to, TypeProducerClosed, ProducerClosedEvent{RemoteProducerID: producer})
}

// Candidate implements core.EventSink.
func (ctl *Controller) Candidate(to domain.PeerID, from domain.PeerID, cand webrtc.ICECandidateInit) {
	ctl.notify(to, TypeICECandidate, CandidatePayload{PeerID: from, Candidate: cand})
}
