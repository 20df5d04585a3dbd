// Package domain contains entity without logic, just meta-data
package domain

type (
	// PeerID is the stable application-level client token. It is issued once
	// per browser and survives websocket reconnects, unlike a connection id.
	PeerID string

	RoomName string

	// Engine-assigned identifiers.
	TransportID string
	ProducerID  string
	ConsumerID  string
)

type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool {
	return k == MediaKindAudio || k == MediaKindVideo
}
