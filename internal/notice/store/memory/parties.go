package memory

import (
	"context"
	"fmt"
	"sort"

	"noticeops/internal/notice/models"
	id "noticeops/pkg/domain"
	"noticeops/pkg/platform/sentinel"
)

// ListTrackedParties returns parties in any of the given states, or all when none are given.
func (s *Store) ListTrackedParties(_ context.Context, states ...models.PartyState) ([]*models.TrackedParty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.TrackedParty
	for _, p := range s.parties {
		if len(states) > 0 && !hasState(states, p.State) {
			continue
		}
		out = append(out, cloneParty(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartyID < out[j].PartyID })
	return out, nil
}

func (s *Store) FindTrackedParty(_ context.Context, partyID id.PartyID) (*models.TrackedParty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parties[partyID]
	if !ok {
		return nil, fmt.Errorf("party %s: %w", partyID, sentinel.ErrNotFound)
	}
	return cloneParty(p), nil
}

func (s *Store) SaveTrackedParty(_ context.Context, p *models.TrackedParty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parties[p.PartyID] = cloneParty(p)
	return nil
}

func hasState(states []models.PartyState, st models.PartyState) bool {
	for _, s := range states {
		if s == st {
			return true
		}
	}
	return false
}

func cloneParty(p *models.TrackedParty) *models.TrackedParty {
	c := *p
	if p.LastCheckedAt != nil {
		t := *p.LastCheckedAt
		c.LastCheckedAt = &t
	}
	return &c
}
