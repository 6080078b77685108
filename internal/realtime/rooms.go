package realtime

import (
	"sort"
	"sync"
)

// Room name helpers. Rooms are logical broadcast groups the server uses to
// scope fan-out; membership is client-asserted and server-tracked.
func ProjectRoom(projectID string) string { return "project:" + projectID }
func UserRoom(userID string) string       { return "user:" + userID }
func TeamRoom(teamID string) string       { return "team:" + teamID }

// RoomSet tracks which rooms a connection has joined. The server does not
// persist membership across a transport drop, so the set is the client's
// source of truth and is re-asserted after every reconnect.
type RoomSet struct {
	mu    sync.Mutex
	rooms map[string]struct{}
}

func NewRoomSet() *RoomSet {
	return &RoomSet{rooms: make(map[string]struct{})}
}

// Add records membership. Returns false if the room was already held.
func (s *RoomSet) Add(room string) bool {
	if room == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room]; ok {
		return false
	}
	s.rooms[room] = struct{}{}
	return true
}

// Remove drops membership. Returns false if the room was not held.
func (s *RoomSet) Remove(room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room]; !ok {
		return false
	}
	delete(s.rooms, room)
	return true
}

func (s *RoomSet) Contains(room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[room]
	return ok
}

// List returns held rooms in sorted order so rejoin traffic is deterministic.
func (s *RoomSet) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

func (s *RoomSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = make(map[string]struct{})
}
