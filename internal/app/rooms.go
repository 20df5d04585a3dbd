package app

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// Room pairs a routing context with its membership set. The router is owned
// exclusively by the manager; members are a set, so re-joins never duplicate.
type Room struct {
	room   *domain.Room
	router core.Router

	mu      sync.RWMutex
	members map[domain.PeerID]struct{}
}

func (r *Room) Name() domain.RoomName { return r.room.Name }

func (r *Room) Router() core.Router { return r.router }

func (r *Room) Capabilities() core.RTPCapabilities { return r.router.Capabilities() }

func (r *Room) AddMember(peer domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[peer] = struct{}{}
	log.Info().Str("module", "app.room").Str("room", string(r.room.Name)).Str("peer", string(peer)).Msg("member added")
}

func (r *Room) RemoveMember(peer domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, peer)
	log.Info().Str("module", "app.room").Str("room", string(r.room.Name)).Str("peer", string(peer)).Msg("member removed")
}

func (r *Room) HasMember(peer domain.PeerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[peer]
	return ok
}

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *Room) MembersSnapshot() []domain.PeerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PeerID, 0, len(r.members))
	for p := range r.members {
		out = append(out, p)
	}
	return out
}

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"member_count"`
}

// RoomManager creates one routing context per room name, lazily, and reaps
// the room once its last confirmed member has left.
type RoomManager struct {
	engine core.MediaEngine
	codecs []webrtc.RTPCodecCapability

	mu    sync.RWMutex
	rooms map[domain.RoomName]*Room
}

func NewRoomManager(engine core.MediaEngine, codecs []webrtc.RTPCodecCapability) *RoomManager {
	return &RoomManager{
		engine: engine,
		codecs: codecs,
		rooms:  make(map[domain.RoomName]*Room),
	}
}

func (m *RoomManager) GetOrCreate(name domain.RoomName) (*Room, error) {
	m.mu.RLock()
	room, ok := m.rooms[name]
	m.mu.RUnlock()
	if ok {
		return room, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[name]; ok {
		return room, nil
	}
	router, err := m.engine.CreateRouter(m.codecs)
	if err != nil {
		return nil, err
	}
	room = &Room{
		room:    &domain.Room{Name: name},
		router:  router,
		members: make(map[domain.PeerID]struct{}),
	}
	m.rooms[name] = room
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Str("router", router.ID()).Msg("room created")
	return room, nil
}

func (m *RoomManager) Get(name domain.RoomName) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[name]
	return room, ok
}

func (m *RoomManager) List() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for name, r := range m.rooms {
		out = append(out, RoomInfo{Name: name, MemberCount: r.MemberCount()})
	}
	return out
}

// ReapIfEmpty closes the room's router and forgets the room when nobody is
// left. Returns true if the room was removed.
func (m *RoomManager) ReapIfEmpty(name domain.RoomName) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[name]
	if !ok || room.MemberCount() > 0 {
		return false
	}
	room.router.Close()
	delete(m.rooms, name)
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Msg("empty room reaped")
	return true
}
