package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// Envelope is the wire frame. Requests carry a non-zero ID and receive a
// "response" frame with the same ID; notifications use ID zero.
type Envelope struct {
	Type string          `json:"type"`
	ID   uint64          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	TypeConnectionSuccess = "connection-success"
	TypeResponse          = "response"

	TypeJoinRoom         = "joinRoom"
	TypeCreateTransport  = "createWebRtcTransport"
	TypeTransportConnect = "transport-connect"
	TypeTransportProduce = "transport-produce"
	TypeGetProducers     = "getProducers"
	TypeConsume          = "consume"
	TypeConsumerResume   = "consumer-resume"
	TypeRequestKeyframe  = "request-keyframe"
	TypeICECandidate     = "ice-candidate"

	TypeNewProducer    = "new-producer"
	TypeProducerClosed = "producer-closed"
)

type ConnectionSuccess struct {
	SocketID domain.PeerID `json:"socketId"`
}

type ErrorResult struct {
	Error string `json:"error"`
}

type JoinRoomRequest struct {
	RoomName domain.RoomName `json:"roomName"`
	// Name is optional display metadata kept on the peer record.
	Name string `json:"name,omitempty"`
}

type JoinRoomResponse struct {
	RTPCapabilities core.RTPCapabilities `json:"rtpCapabilities"`
}

type CreateTransportRequest struct {
	Consumer bool `json:"consumer"`
}

type CreateTransportResponse struct {
	Params core.TransportInfo `json:"params"`
}

type TransportConnectRequest struct {
	// TransportID selects a receive transport; empty means the send
	// transport.
	TransportID    domain.TransportID  `json:"serverTransportId,omitempty"`
	DTLSParameters core.DTLSParameters `json:"dtlsParameters"`
}

type ProduceRequest struct {
	Kind          domain.MediaKind   `json:"kind"`
	RTPParameters core.RTPParameters `json:"rtpParameters"`
}

type ProduceResponse struct {
	ID             domain.ProducerID `json:"id"`
	ProducersExist bool              `json:"producersExist"`
}

type GetProducersResponse struct {
	Producers []app.ProducerSnap `json:"producers"`
}

type ConsumeRequest struct {
	RTPCapabilities           core.RTPCapabilities `json:"rtpCapabilities"`
	RemoteProducerID          domain.ProducerID    `json:"remoteProducerId"`
	ServerConsumerTransportID domain.TransportID   `json:"serverConsumerTransportId"`
}

type ConsumeResponse struct {
	Params core.ConsumerInfo `json:"params"`
}

type ConsumerResumeRequest struct {
	ServerConsumerID domain.ConsumerID `json:"serverConsumerId"`
}

type KeyframeRequest struct {
	ProducerID domain.ProducerID `json:"producerId"`
}

type CandidatePayload struct {
	PeerID    domain.PeerID           `json:"peerId,omitempty"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type NewProducerEvent struct {
	ProducerID domain.ProducerID `json:"producerId"`
	PeerID     domain.PeerID     `json:"peerId"`
}

type ProducerClosedEvent struct {
	RemoteProducerID domain.ProducerID `json:"remoteProducerId"`
}
