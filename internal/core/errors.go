package core

import "errors"

// Recoverable per-request errors. These travel back through the request's
// acknowledgement payload and never crash the signaling channel.
var (
	ErrPeerNotFound      = errors.New("peer not found")
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomNameEmpty     = errors.New("room name empty")
	ErrTransportNotFound = errors.New("transport not found")
	ErrNoSendTransport   = errors.New("no send transport")
	ErrNotConnected      = errors.New("transport not connected")
	ErrProducerNotFound  = errors.New("producer not found")
	ErrConsumerNotFound  = errors.New("consumer not found")
	ErrSelfConsume       = errors.New("cannot consume own producer")
	ErrCannotConsume     = errors.New("incompatible rtp capabilities")
	ErrClosed            = errors.New("closed")
)
