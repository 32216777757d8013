// Package memory is an in-process primary store for notices. It is used by tests
// and by the server when no database is configured.
package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"noticeops/internal/notice/models"
	"noticeops/internal/notice/ports"
	id "noticeops/pkg/domain"
	dErrors "noticeops/pkg/domain-errors"
	"noticeops/pkg/platform/sentinel"
)

// numShards spreads per-notice locks so unrelated notices rarely contend.
const numShards = 128

const defaultTxTimeout = 5 * time.Second

// Store keeps notices, ledger entries, reductions, payments, refunds and tracked
// parties in maps. Per-notice units of work are serialized by sharded locks that
// honour the caller's deadline and are applied only when the callback succeeds.
type Store struct {
	shards  [numShards]*semaphore.Weighted
	timeout time.Duration

	mu         sync.RWMutex
	notices    map[id.NoticeNo]*models.Notice
	ledger     map[id.NoticeNo][]*models.LedgerEntry
	reductions map[id.NoticeNo][]*models.ReductionRecord
	refunds    map[id.NoticeNo][]*models.RefundRecord
	payments   map[string]*models.PaymentRecord
	parties    map[id.PartyID]*models.TrackedParty
}

// Option configures the store.
type Option func(*Store)

// WithTxTimeout bounds how long a unit of work may wait for its lock and run.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// New constructs an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		timeout:    defaultTxTimeout,
		notices:    make(map[id.NoticeNo]*models.Notice),
		ledger:     make(map[id.NoticeNo][]*models.LedgerEntry),
		reductions: make(map[id.NoticeNo][]*models.ReductionRecord),
		refunds:    make(map[id.NoticeNo][]*models.RefundRecord),
		payments:   make(map[string]*models.PaymentRecord),
		parties:    make(map[id.PartyID]*models.TrackedParty),
	}
	for i := range s.shards {
		s.shards[i] = semaphore.NewWeighted(1)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs fn under the notice's shard lock against a private copy of the
// notice's rows, then publishes the copy if fn returns nil.
func (s *Store) Execute(ctx context.Context, noticeNo id.NoticeNo, fn func(tx ports.NoticeTx, n *models.Notice) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "unit of work aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	shard := s.shards[shardFor(noticeNo)]
	if err := shard.Acquire(ctx, 1); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "timed out waiting for notice lock")
	}
	defer shard.Release(1)

	t, err := s.begin(noticeNo)
	if err != nil {
		return err
	}
	if err := fn(t, t.notice.Clone()); err != nil {
		return err
	}
	s.commit(t)
	return nil
}

func (s *Store) begin(noticeNo id.NoticeNo) (*memTx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notices[noticeNo]
	if !ok {
		return nil, fmt.Errorf("notice %s: %w", noticeNo, sentinel.ErrNotFound)
	}
	t := &memTx{
		store:    s,
		noticeNo: noticeNo,
		notice:   n.Clone(),
		outcomes: make(map[string]models.PaymentOutcome),
	}
	for _, e := range s.ledger[noticeNo] {
		t.ledger = append(t.ledger, e.Clone())
	}
	for _, r := range s.reductions[noticeNo] {
		c := *r
		t.reductions = append(t.reductions, &c)
	}
	for _, r := range s.refunds[noticeNo] {
		c := *r
		t.refunds = append(t.refunds, &c)
	}
	return t, nil
}

func (s *Store) commit(t *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notices[t.noticeNo] = t.notice
	s.ledger[t.noticeNo] = t.ledger
	s.reductions[t.noticeNo] = t.reductions
	s.refunds[t.noticeNo] = t.refunds
	for ref, outcome := range t.outcomes {
		if p, ok := s.payments[ref]; ok {
			o := outcome
			p.Outcome = &o
		}
	}
}

// CreateNotice inserts a new notice.
func (s *Store) CreateNotice(_ context.Context, n *models.Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.notices[n.NoticeNo]; exists {
		return fmt.Errorf("notice %s: %w", n.NoticeNo, sentinel.ErrConflict)
	}
	s.notices[n.NoticeNo] = n.Clone()
	return nil
}

func (s *Store) FindNotice(_ context.Context, noticeNo id.NoticeNo) (*models.Notice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notices[noticeNo]
	if !ok {
		return nil, fmt.Errorf("notice %s: %w", noticeNo, sentinel.ErrNotFound)
	}
	return n.Clone(), nil
}

func (s *Store) ListLedger(_ context.Context, noticeNo id.NoticeNo) ([]*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.LedgerEntry, 0, len(s.ledger[noticeNo]))
	for _, e := range s.ledger[noticeNo] {
		out = append(out, e.Clone())
	}
	return out, nil
}

func (s *Store) ListReductions(_ context.Context, noticeNo id.NoticeNo) ([]*models.ReductionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ReductionRecord, 0, len(s.reductions[noticeNo]))
	for _, r := range s.reductions[noticeNo] {
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

func (s *Store) ListRefunds(_ context.Context, noticeNo id.NoticeNo) ([]*models.RefundRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.RefundRecord, 0, len(s.refunds[noticeNo]))
	for _, r := range s.refunds[noticeNo] {
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

// RecordPayment stores the payment row outside any notice lock.
func (s *Store) RecordPayment(_ context.Context, rec *models.PaymentRecord) (*models.PaymentRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.payments[rec.Reference]; ok {
		return clonePayment(existing), false, nil
	}
	s.payments[rec.Reference] = clonePayment(rec)
	return clonePayment(rec), true, nil
}

func (s *Store) ListNoticesByParty(_ context.Context, partyID id.PartyID) ([]*models.Notice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Notice
	for _, n := range s.notices {
		if n.PartyID == partyID {
			out = append(out, n.Clone())
		}
	}
	sortNotices(out)
	return out, nil
}

func (s *Store) ListNoticesDueForRecheck(_ context.Context, reason models.SuspensionReason, cutoff time.Time, limit int) ([]*models.Notice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Notice
	for _, n := range s.notices {
		if n.SuspensionReason != reason || n.DueDateOfRevival == nil {
			continue
		}
		if n.DueDateOfRevival.After(cutoff) {
			continue
		}
		out = append(out, n.Clone())
	}
	sortNotices(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListPendingSync(_ context.Context, limit int) ([]*models.Notice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Notice
	for _, n := range s.notices {
		if n.SyncStatus == models.SyncStatusPending {
			out = append(out, n.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].NoticeNo < out[j].NoticeNo
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkSynced is a compare-and-set on the notice version.
func (s *Store) MarkSynced(_ context.Context, noticeNo id.NoticeNo, version int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notices[noticeNo]
	if !ok {
		return false, fmt.Errorf("notice %s: %w", noticeNo, sentinel.ErrNotFound)
	}
	if n.Version != version {
		return false, nil
	}
	n.SyncStatus = models.SyncStatusSynced
	return true, nil
}

func shardFor(noticeNo id.NoticeNo) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(noticeNo))
	return int(h.Sum32() % numShards)
}

func sortNotices(ns []*models.Notice) {
	sort.Slice(ns, func(i, j int) bool { return ns[i].NoticeNo < ns[j].NoticeNo })
}

func clonePayment(p *models.PaymentRecord) *models.PaymentRecord {
	c := *p
	if p.Outcome != nil {
		o := *p.Outcome
		c.Outcome = &o
	}
	return &c
}
