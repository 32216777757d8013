// Package mirror holds the replica stores for the notice projection and the
// breaker that fronts them.
package mirror

import (
	"context"
	"fmt"
	"sync"

	"noticeops/internal/notice/models"
	id "noticeops/pkg/domain"
	"noticeops/pkg/platform/sentinel"
)

// MemoryStore is an in-process mirror. Writes carrying a version not newer than
// the stored one are ignored.
type MemoryStore struct {
	mu       sync.RWMutex
	notices  map[id.NoticeNo]models.MirrorNotice
	failWith error
	writes   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notices: make(map[id.NoticeNo]models.MirrorNotice)}
}

// FailWith makes every subsequent Upsert return err. Pass nil to heal.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *MemoryStore) Upsert(_ context.Context, m models.MirrorNotice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.writes++
	if cur, ok := s.notices[m.NoticeNo]; ok && cur.Version >= m.Version {
		return nil
	}
	s.notices[m.NoticeNo] = cloneMirror(m)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, noticeNo id.NoticeNo) (*models.MirrorNotice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.notices[noticeNo]
	if !ok {
		return nil, fmt.Errorf("mirror notice %s: %w", noticeNo, sentinel.ErrNotFound)
	}
	c := cloneMirror(m)
	return &c, nil
}

// Writes returns the number of accepted Upsert calls, including ignored stale ones.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

func cloneMirror(m models.MirrorNotice) models.MirrorNotice {
	if m.SuspensionDate != nil {
		t := *m.SuspensionDate
		m.SuspensionDate = &t
	}
	return m
}
