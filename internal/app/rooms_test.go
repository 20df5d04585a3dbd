package app

import (
	"fmt"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/domain"
)

var testCodecs = []webrtc.RTPCodecCapability{
	{MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
	{MimeType: "video/VP8", ClockRate: 90000},
}

// TestRoomManagerOneRouterPerRoom verifies that concurrent joins of the same
// room name observe exactly one routing context.
func TestRoomManagerOneRouterPerRoom(t *testing.T) {
	eng := &fakeEngine{}
	m := NewRoomManager(eng, testCodecs)

	const workers = 16
	rooms := make([]*Room, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room, err := m.GetOrCreate("standup")
			require.NoError(t, err)
			room.AddMember(domain.PeerID(fmt.Sprintf("peer-%d", i)))
			rooms[i] = room
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, eng.routers())
	for _, room := range rooms {
		require.Same(t, rooms[0], room)
	}
	require.Equal(t, workers, rooms[0].MemberCount())
}

// TestRoomMembershipIsASet verifies re-joining never duplicates a member.
func TestRoomMembershipIsASet(t *testing.T) {
	m := NewRoomManager(&fakeEngine{}, testCodecs)
	room, err := m.GetOrCreate("standup")
	require.NoError(t, err)

	room.AddMember("alice")
	room.AddMember("alice")
	room.AddMember("bob")
	require.Equal(t, 2, room.MemberCount())
	require.True(t, room.HasMember("alice"))

	room.RemoveMember("alice")
	require.Equal(t, 1, room.MemberCount())
	require.False(t, room.HasMember("alice"))
}

// TestRoomManagerReap verifies empty rooms are reaped with their router and
// occupied rooms are left alone.
func TestRoomManagerReap(t *testing.T) {
	eng := &fakeEngine{}
	m := NewRoomManager(eng, testCodecs)
	room, err := m.GetOrCreate("standup")
	require.NoError(t, err)
	room.AddMember("alice")

	require.False(t, m.ReapIfEmpty("standup"), "occupied room must not be reaped")

	room.RemoveMember("alice")
	require.True(t, m.ReapIfEmpty("standup"))
	_, ok := m.Get("standup")
	require.False(t, ok)
	require.True(t, room.Router().(*fakeRouter).closed.Load())

	// Recreating after the reap builds a fresh routing context.
	_, err = m.GetOrCreate("standup")
	require.NoError(t, err)
	require.EqualValues(t, 2, eng.routers())
}

// TestRoomManagerList verifies the listing used by the rooms API.
func TestRoomManagerList(t *testing.T) {
	m := NewRoomManager(&fakeEngine{}, testCodecs)
	a, _ := m.GetOrCreate("a")
	a.AddMember("alice")
	a.AddMember("bob")
	_, _ = m.GetOrCreate("b")

	infos := m.List()
	require.Len(t, infos, 2)
	counts := map[domain.RoomName]int{}
	for _, info := range infos {
		counts[info.Name] = info.MemberCount
	}
	require.Equal(t, 2, counts["a"])
	require.Equal(t, 0, counts["b"])
}
