package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"noticeops/internal/notice/models"
	"noticeops/internal/notice/ports"
	id "noticeops/pkg/domain"
	dErrors "noticeops/pkg/domain-errors"
	"noticeops/pkg/platform/sentinel"
)

type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *Store
	now   time.Time
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = New()
	s.now = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
}

func (s *StoreSuite) seed(noticeNo id.NoticeNo, party id.PartyID) *models.Notice {
	n, err := models.NewNotice(noticeNo, party, "30305", decimal.RequireFromString("100"), models.StageReminder1, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateNotice(s.ctx, n))
	return n
}

// =============================================================================
// Unit of work
// =============================================================================

func (s *StoreSuite) TestExecuteCommitsOnSuccess() {
	s.seed("N1", "P1")

	err := s.store.Execute(s.ctx, "N1", func(tx ports.NoticeTx, n *models.Notice) error {
		n.AmountPaid = decimal.RequireFromString("40")
		n.Touch(s.now)
		return tx.SaveNotice(s.ctx, n)
	})
	s.Require().NoError(err)

	got, err := s.store.FindNotice(s.ctx, "N1")
	s.Require().NoError(err)
	s.True(got.AmountPaid.Equal(decimal.RequireFromString("40")))
	s.Equal(int64(2), got.Version)
}

func (s *StoreSuite) TestExecuteDiscardsOnError() {
	s.seed("N1", "P1")
	boom := errors.New("boom")

	err := s.store.Execute(s.ctx, "N1", func(tx ports.NoticeTx, n *models.Notice) error {
		n.AmountPaid = decimal.RequireFromString("40")
		s.Require().NoError(tx.SaveNotice(s.ctx, n))
		s.Require().NoError(tx.AppendLedgerEntry(s.ctx, &models.LedgerEntry{NoticeNo: "N1", SequenceNo: 1, Reason: models.ReasonPartialPayment}))
		return boom
	})
	s.ErrorIs(err, boom)

	got, err := s.store.FindNotice(s.ctx, "N1")
	s.Require().NoError(err)
	s.True(got.AmountPaid.IsZero())
	entries, err := s.store.ListLedger(s.ctx, "N1")
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *StoreSuite) TestExecuteUnknownNotice() {
	called := false
	err := s.store.Execute(s.ctx, "MISSING", func(ports.NoticeTx, *models.Notice) error {
		called = true
		return nil
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.False(called)
}

func (s *StoreSuite) TestExecuteRejectsForeignRows() {
	s.seed("N1", "P1")
	err := s.store.Execute(s.ctx, "N1", func(tx ports.NoticeTx, _ *models.Notice) error {
		return tx.AppendLedgerEntry(s.ctx, &models.LedgerEntry{NoticeNo: "N2", SequenceNo: 1})
	})
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *StoreSuite) TestExecuteCancelledContext() {
	s.seed("N1", "P1")
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	err := s.store.Execute(ctx, "N1", func(ports.NoticeTx, *models.Notice) error { return nil })
	s.Error(err)
}

func (s *StoreSuite) TestExecuteLockWaitTimesOut() {
	s.store = New(WithTxTimeout(20 * time.Millisecond))
	s.seed("N1", "P1")

	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.store.Execute(context.Background(), "N1", func(ports.NoticeTx, *models.Notice) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	called := false
	err := s.store.Execute(s.ctx, "N1", func(ports.NoticeTx, *models.Notice) error {
		called = true
		return nil
	})
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.False(called)

	close(release)
	s.NoError(<-done)
	s.NoError(s.store.Execute(s.ctx, "N1", func(ports.NoticeTx, *models.Notice) error { return nil }),
		"lock is released after the holder commits")
}

// TestConcurrentSequenceNumbers draws sequence numbers from many goroutines and
// checks they are unique and contiguous.
func (s *StoreSuite) TestConcurrentSequenceNumbers() {
	s.seed("N1", "P1")
	const workers = 64

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.store.Execute(s.ctx, "N1", func(tx ports.NoticeTx, _ *models.Notice) error {
				maxSeq, err := tx.MaxSequenceNumber(s.ctx, "N1")
				if err != nil {
					return err
				}
				if i%2 == 0 {
					return tx.AppendReduction(s.ctx, &models.ReductionRecord{NoticeNo: "N1", SequenceNo: maxSeq + 1})
				}
				return tx.AppendLedgerEntry(s.ctx, &models.LedgerEntry{NoticeNo: "N1", SequenceNo: maxSeq + 1, Reason: models.ReasonForeignVehicle})
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	entries, err := s.store.ListLedger(s.ctx, "N1")
	s.Require().NoError(err)
	reductions, err := s.store.ListReductions(s.ctx, "N1")
	s.Require().NoError(err)

	var seqs []int
	for _, e := range entries {
		seqs = append(seqs, e.SequenceNo)
	}
	for _, r := range reductions {
		seqs = append(seqs, r.SequenceNo)
	}
	sort.Ints(seqs)
	s.Require().Len(seqs, workers)
	for i, seq := range seqs {
		s.Equal(i+1, seq)
	}
}

// =============================================================================
// Payments and refunds
// =============================================================================

func (s *StoreSuite) TestRecordPaymentIsIdempotentByReference() {
	s.seed("N1", "P1")
	rec := &models.PaymentRecord{ID: id.NewPaymentID(), NoticeNo: "N1", Amount: decimal.NewFromInt(10), Reference: "REF1", PaidAt: s.now}

	stored, created, err := s.store.RecordPayment(s.ctx, rec)
	s.Require().NoError(err)
	s.True(created)
	s.Equal(rec.ID, stored.ID)

	again := *rec
	again.ID = id.NewPaymentID()
	stored, created, err = s.store.RecordPayment(s.ctx, &again)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(rec.ID, stored.ID)
}

func (s *StoreSuite) TestPaymentOutcomeCommitsWithUnitOfWork() {
	s.seed("N1", "P1")
	_, _, err := s.store.RecordPayment(s.ctx, &models.PaymentRecord{ID: id.NewPaymentID(), NoticeNo: "N1", Amount: decimal.NewFromInt(10), Reference: "REF1"})
	s.Require().NoError(err)

	err = s.store.Execute(s.ctx, "N1", func(tx ports.NoticeTx, _ *models.Notice) error {
		s.Require().NoError(tx.SetPaymentOutcome(s.ctx, "REF1", models.OutcomePartialPayment))
		p, err := tx.FindPayment(s.ctx, "REF1")
		s.Require().NoError(err)
		s.Require().NotNil(p.Outcome)
		s.Equal(models.OutcomePartialPayment, *p.Outcome)
		return nil
	})
	s.Require().NoError(err)

	err = s.store.Execute(s.ctx, "N1", func(tx ports.NoticeTx, _ *models.Notice) error {
		p, err := tx.FindPayment(s.ctx, "REF1")
		s.Require().NoError(err)
		s.Require().NotNil(p.Outcome)
		return nil
	})
	s.Require().NoError(err)
}

func (s *StoreSuite) TestRefundUniquePerReferenceAndReason() {
	s.seed("N1", "P1")
	refund := &models.RefundRecord{ID: id.NewRefundID(), NoticeNo: "N1", PaymentReference: "REF1", Amount: decimal.NewFromInt(5), Reason: models.RefundOverPayment}

	err := s.store.Execute(s.ctx, "N1", func(tx ports.NoticeTx, _ *models.Notice) error {
		s.Require().NoError(tx.AppendRefund(s.ctx, refund))
		exists, err := tx.RefundExists(s.ctx, "REF1", models.RefundOverPayment)
		s.Require().NoError(err)
		s.True(exists)
		exists, err = tx.RefundExists(s.ctx, "REF1", models.RefundDoublePayment)
		s.Require().NoError(err)
		s.False(exists)
		return tx.AppendRefund(s.ctx, refund)
	})
	s.ErrorIs(err, sentinel.ErrConflict)
}

// =============================================================================
// Queries
// =============================================================================

func (s *StoreSuite) TestListNoticesDueForRecheck() {
	s.seed("N1", "P1")
	s.seed("N2", "P1")
	s.seed("N3", "P2")
	due := func(days int) *time.Time {
		t := s.now.AddDate(0, 0, days)
		return &t
	}
	suspend := func(no id.NoticeNo, reason models.SuspensionReason, d *time.Time) {
		s.Require().NoError(s.store.Execute(s.ctx, no, func(tx ports.NoticeTx, n *models.Notice) error {
			n.ApplySuspension(reason, s.now, d)
			return tx.SaveNotice(s.ctx, n)
		}))
	}
	suspend("N1", models.ReasonUnreachableParty, due(3))
	suspend("N2", models.ReasonUnreachableParty, due(30))
	suspend("N3", models.ReasonReduction, due(1))

	got, err := s.store.ListNoticesDueForRecheck(s.ctx, models.ReasonUnreachableParty, s.now.AddDate(0, 0, 7), 0)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(id.NoticeNo("N1"), got[0].NoticeNo)

	byParty, err := s.store.ListNoticesByParty(s.ctx, "P1")
	s.Require().NoError(err)
	s.Len(byParty, 2)
}

func (s *StoreSuite) TestMarkSyncedComparesVersion() {
	n := s.seed("N1", "P1")

	pending, err := s.store.ListPendingSync(s.ctx, 10)
	s.Require().NoError(err)
	s.Len(pending, 1)

	ok, err := s.store.MarkSynced(s.ctx, "N1", n.Version+1)
	s.Require().NoError(err)
	s.False(ok, "stale acknowledgement must not clear the marker")

	ok, err = s.store.MarkSynced(s.ctx, "N1", n.Version)
	s.Require().NoError(err)
	s.True(ok)

	pending, err = s.store.ListPendingSync(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *StoreSuite) TestTrackedParties() {
	s.Require().NoError(s.store.SaveTrackedParty(s.ctx, &models.TrackedParty{PartyID: "P1", State: models.PartyUnchecked}))
	s.Require().NoError(s.store.SaveTrackedParty(s.ctx, &models.TrackedParty{PartyID: "P2", State: models.PartyInvalid}))
	s.Require().NoError(s.store.SaveTrackedParty(s.ctx, &models.TrackedParty{PartyID: "P3", State: models.PartyValid}))

	got, err := s.store.ListTrackedParties(s.ctx, models.PartyUnchecked, models.PartyValid)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(id.PartyID("P1"), got[0].PartyID)
	s.Equal(id.PartyID("P3"), got[1].PartyID)

	all, err := s.store.ListTrackedParties(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 3)

	_, err = s.store.FindTrackedParty(s.ctx, "NOPE")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
