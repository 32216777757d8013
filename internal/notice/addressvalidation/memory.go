// Package addressvalidation reads the address verification snapshots written by
// the external agency exchange.
package addressvalidation

import (
	"context"
	"sync"
	"time"

	"noticeops/internal/notice/models"
	id "noticeops/pkg/domain"
)

type snapshotKey struct {
	party  id.PartyID
	reason string
}

// MemorySource serves snapshots from a map. Unknown keys report ValidityUnknown.
type MemorySource struct {
	mu        sync.RWMutex
	snapshots map[snapshotKey]models.AddressValidationSnapshot
	delay     time.Duration
	calls     int
}

func NewMemorySource() *MemorySource {
	return &MemorySource{snapshots: make(map[snapshotKey]models.AddressValidationSnapshot)}
}

// Put records the validity for (party, reason).
func (s *MemorySource) Put(partyID id.PartyID, queryReason string, v models.Validity, checkedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshotKey{partyID, queryReason}] = models.AddressValidationSnapshot{
		PartyID:     partyID,
		QueryReason: queryReason,
		Validity:    v,
		CheckedAt:   checkedAt,
	}
}

// SetDelay makes every lookup wait d before answering, or until ctx ends.
func (s *MemorySource) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Calls returns the number of lookups served.
func (s *MemorySource) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

func (s *MemorySource) Lookup(ctx context.Context, partyID id.PartyID, queryReason string) (models.AddressValidationSnapshot, error) {
	s.mu.Lock()
	s.calls++
	delay := s.delay
	snap, ok := s.snapshots[snapshotKey{partyID, queryReason}]
	s.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return models.AddressValidationSnapshot{}, ctx.Err()
		case <-timer.C:
		}
	}
	if !ok {
		return models.AddressValidationSnapshot{PartyID: partyID, QueryReason: queryReason, Validity: models.ValidityUnknown}, nil
	}
	return snap, nil
}
