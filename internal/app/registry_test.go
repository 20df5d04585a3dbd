package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/domain"
)

// TestRegistryConnIdentity verifies that unbinding only succeeds for the
// connection currently bound: a stale connection's teardown must not evict
// the one that replaced it.
func TestRegistryConnIdentity(t *testing.T) {
	reg := NewRegistry()
	old := &fakeConn{}
	fresh := &fakeConn{}

	reg.BindConn("peer-a", old)
	reg.BindConn("peer-a", fresh)

	require.False(t, reg.UnbindConn("peer-a", old), "stale connection must not unbind")

	got, ok := reg.Conn("peer-a")
	require.True(t, ok)
	require.Same(t, fresh, got)

	require.True(t, reg.UnbindConn("peer-a", fresh))
	_, ok = reg.Conn("peer-a")
	require.False(t, ok)
}

// TestRegistryTransportDirection verifies the (peer, direction) index: one
// send and one receive transport resolve independently, and removal clears
// the index entry.
func TestRegistryTransportDirection(t *testing.T) {
	reg := NewRegistry()
	reg.BindPeer("peer-a", "room-1")

	send := &fakeTransport{id: "tr-send"}
	recv := &fakeTransport{id: "tr-recv"}
	reg.AddTransport("peer-a", "room-1", false, send)
	reg.AddTransport("peer-a", "room-1", true, recv)

	e, ok := reg.TransportByDirection("peer-a", false)
	require.True(t, ok)
	require.Equal(t, domain.TransportID("tr-send"), e.Transport.ID())
	require.False(t, e.Consumer)

	e, ok = reg.TransportByDirection("peer-a", true)
	require.True(t, ok)
	require.Equal(t, domain.TransportID("tr-recv"), e.Transport.ID())
	require.True(t, e.Consumer)

	reg.RemoveTransport("tr-recv")
	_, ok = reg.TransportByDirection("peer-a", true)
	require.False(t, ok)
	_, ok = reg.TransportByID("tr-recv")
	require.False(t, ok)

	// The send side is untouched.
	_, ok = reg.TransportByDirection("peer-a", false)
	require.True(t, ok)
}

// TestRegistryProducersInRoom verifies that the producer listing is scoped to
// the room and never includes the requesting peer's own producers.
func TestRegistryProducersInRoom(t *testing.T) {
	reg := NewRegistry()
	reg.BindPeer("alice", "room-1")
	reg.BindPeer("bob", "room-1")
	reg.BindPeer("carol", "room-2")

	reg.AddProducer("alice", "room-1", &fakeProducer{id: "p-alice"})
	reg.AddProducer("bob", "room-1", &fakeProducer{id: "p-bob"})
	reg.AddProducer("carol", "room-2", &fakeProducer{id: "p-carol"})

	snaps := reg.ProducersInRoom("room-1", "alice")
	require.Len(t, snaps, 1)
	require.Equal(t, domain.ProducerID("p-bob"), snaps[0].ID)
	require.Equal(t, domain.PeerID("bob"), snaps[0].Peer)

	require.Empty(t, reg.ProducersInRoom("room-3", "alice"))
	require.Equal(t, 3, reg.ProducerCount())
}

// TestRegistryOwnedByPeer verifies the departure snapshot covers everything
// the peer owns and nothing anyone else does.
func TestRegistryOwnedByPeer(t *testing.T) {
	reg := NewRegistry()
	reg.BindPeer("alice", "room-1")
	reg.BindPeer("bob", "room-1")

	reg.AddTransport("alice", "room-1", false, &fakeTransport{id: "tr-a"})
	reg.AddProducer("alice", "room-1", &fakeProducer{id: "p-a"})
	reg.AddConsumer("alice", "room-1", &fakeConsumer{id: "c-a"})
	reg.AddTransport("bob", "room-1", false, &fakeTransport{id: "tr-b"})

	transports, producers, consumers := reg.OwnedByPeer("alice")
	require.Len(t, transports, 1)
	require.Len(t, producers, 1)
	require.Len(t, consumers, 1)
	require.Equal(t, domain.TransportID("tr-a"), transports[0].Transport.ID())

	transports, producers, consumers = reg.OwnedByPeer("bob")
	require.Len(t, transports, 1)
	require.Empty(t, producers)
	require.Empty(t, consumers)
}
