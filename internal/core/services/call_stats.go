package services

import (
	"sync"
	"time"
)

// RoomCallStats is an aggregate view of call activity in one room.
type RoomCallStats struct {
	RoomName  string    `json:"room_name"`
	Published int       `json:"published"`
	Shown     int       `json:"shown"`
	Accepted  int       `json:"accepted"`
	Expired   int       `json:"expired"`
	Cleaned   int       `json:"cleaned"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CallStats keeps in-process per-room counters for the diagnostics endpoint.
type CallStats struct {
	mu    sync.RWMutex
	rooms map[string]*RoomCallStats
}

func NewCallStats() *CallStats {
	return &CallStats{
		rooms: make(map[string]*RoomCallStats),
	}
}

func (s *CallStats) room(roomName string) *RoomCallStats {
	stats, exists := s.rooms[roomName]
	if !exists {
		stats = &RoomCallStats{RoomName: roomName}
		s.rooms[roomName] = stats
	}
	stats.UpdatedAt = time.Now()
	return stats
}

func (s *CallStats) RecordPublished(roomName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomName).Published++
}

func (s *CallStats) RecordShown(roomName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomName).Shown++
}

func (s *CallStats) RecordAccepted(roomName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomName).Accepted++
}

func (s *CallStats) RecordExpired(roomName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomName).Expired++
}

func (s *CallStats) RecordCleaned(roomName string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(roomName).Cleaned += count
}

// Snapshot returns a copy of the counters for one room.
func (s *CallStats) Snapshot(roomName string) RoomCallStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if stats, exists := s.rooms[roomName]; exists {
		return *stats
	}
	return RoomCallStats{RoomName: roomName}
}
