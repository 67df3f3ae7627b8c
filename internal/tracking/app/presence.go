package app

import (
	"sync"
	"time"

	"github.com/Charan951/driveflow-dashboard-sub001/internal/tracking/domain"
)

// PresenceStore holds the last known position per tracked identity. Written
// only by the ingest path; last write wins. Losing the map costs nothing
// but temporary staleness.
type PresenceStore struct {
	mu      sync.RWMutex
	byStaff map[string]domain.Presence
	now     func() time.Time
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{
		byStaff: make(map[string]domain.Presence),
		now:     time.Now,
	}
}

func (s *PresenceStore) Set(staffID, role string, p domain.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byStaff[staffID] = domain.Presence{Point: p, Role: role, RecordedAt: s.now()}
}

func (s *PresenceStore) Last(staffID string) (domain.Point, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pr, ok := s.byStaff[staffID]
	return pr.Point, pr.RecordedAt, ok
}

// All returns a snapshot copy of every tracked presence.
func (s *PresenceStore) All() map[string]domain.Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.Presence, len(s.byStaff))
	for k, v := range s.byStaff {
		out[k] = v
	}
	return out
}
