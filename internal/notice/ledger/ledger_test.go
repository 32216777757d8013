package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"noticeops/internal/notice/ledger"
	"noticeops/internal/notice/models"
	"noticeops/internal/notice/ports"
	"noticeops/internal/notice/store/memory"
	id "noticeops/pkg/domain"
	"noticeops/pkg/platform/sentinel"
)

type LedgerSuite struct {
	suite.Suite
	ctx      context.Context
	store    *memory.Store
	ledger   *ledger.Ledger
	noticeNo id.NoticeNo
	now      time.Time
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.ledger = ledger.New()
	s.noticeNo = id.NoticeNo("500400123K")
	s.now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	n, err := models.NewNotice(s.noticeNo, "S1234567D", "30305", decimal.RequireFromString("150"), models.StageReminder1, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateNotice(s.ctx, n))
}

func (s *LedgerSuite) inTx(fn func(tx ports.NoticeTx) error) error {
	return s.store.Execute(s.ctx, s.noticeNo, func(tx ports.NoticeTx, _ *models.Notice) error {
		return fn(tx)
	})
}

func (s *LedgerSuite) entry(seq int, reason models.SuspensionReason) *models.LedgerEntry {
	return &models.LedgerEntry{
		NoticeNo:         s.noticeNo,
		SequenceNo:       seq,
		Kind:             reason.Kind(),
		Reason:           reason,
		DateOfSuspension: s.now,
		Source:           models.SourceManual,
		Actor:            "tester",
	}
}

// =============================================================================
// Sequence numbers
// =============================================================================

func (s *LedgerSuite) TestNextSequenceNumber() {
	s.Run("starts at one", func() {
		s.Require().NoError(s.inTx(func(tx ports.NoticeTx) error {
			next, err := s.ledger.NextSequenceNumber(s.ctx, tx, s.noticeNo)
			s.Require().NoError(err)
			s.Equal(1, next)
			return nil
		}))
	})

	s.Run("shares the counter with reduction records", func() {
		s.Require().NoError(s.inTx(func(tx ports.NoticeTx) error {
			s.Require().NoError(s.ledger.Append(s.ctx, tx, s.entry(1, models.ReasonUnreachableParty)))
			s.Require().NoError(tx.AppendReduction(s.ctx, &models.ReductionRecord{NoticeNo: s.noticeNo, SequenceNo: 2}))
			next, err := s.ledger.NextSequenceNumber(s.ctx, tx, s.noticeNo)
			s.Require().NoError(err)
			s.Equal(3, next)
			return nil
		}))
	})
}

// =============================================================================
// Append
// =============================================================================

func (s *LedgerSuite) TestAppendRevivesSameFamily() {
	s.Require().NoError(s.inTx(func(tx ports.NoticeTx) error {
		s.Require().NoError(s.ledger.Append(s.ctx, tx, s.entry(1, models.ReasonPartialPayment)))
		s.Require().NoError(s.ledger.Append(s.ctx, tx, s.entry(2, models.ReasonUnreachableParty)))
		return s.ledger.Append(s.ctx, tx, s.entry(3, models.ReasonFullPayment))
	}))

	entries, err := s.store.ListLedger(s.ctx, s.noticeNo)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.False(entries[0].IsActive(), "partial payment entry is superseded by full payment")
	s.True(entries[1].IsActive(), "other families stay active")
	s.True(entries[2].IsActive())

	current := ledger.CurrentSuspension(entries)
	s.Require().NotNil(current)
	s.Equal(3, current.SequenceNo)
}

func (s *LedgerSuite) TestAppendDuplicateSequenceConflicts() {
	err := s.inTx(func(tx ports.NoticeTx) error {
		s.Require().NoError(s.ledger.Append(s.ctx, tx, s.entry(1, models.ReasonReduction)))
		return s.ledger.Append(s.ctx, tx, s.entry(1, models.ReasonForeignVehicle))
	})
	s.True(errors.Is(err, sentinel.ErrConflict))

	entries, err := s.store.ListLedger(s.ctx, s.noticeNo)
	s.Require().NoError(err)
	s.Empty(entries, "failed unit of work leaves nothing behind")
}

// =============================================================================
// Reassert and revive
// =============================================================================

func (s *LedgerSuite) TestReassertUpdatesInPlace() {
	s.Require().NoError(s.inTx(func(tx ports.NoticeTx) error {
		return s.ledger.Append(s.ctx, tx, s.entry(1, models.ReasonUnreachableParty))
	}))

	later := s.now.AddDate(0, 0, 7)
	due := later.AddDate(0, 0, 30)
	s.Require().NoError(s.inTx(func(tx ports.NoticeTx) error {
		e, err := s.ledger.Reassert(s.ctx, tx, s.noticeNo, models.ReasonUnreachableParty, later, &due)
		s.Require().NoError(err)
		s.Equal(1, e.SequenceNo)
		return nil
	}))

	entries, err := s.store.ListLedger(s.ctx, s.noticeNo)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.True(entries[0].DateOfSuspension.Equal(later))
	s.True(entries[0].DueDateOfRevival.Equal(due))
	s.True(entries[0].IsActive())
}

func (s *LedgerSuite) TestReassertWithoutActiveEntry() {
	err := s.inTx(func(tx ports.NoticeTx) error {
		_, err := s.ledger.Reassert(s.ctx, tx, s.noticeNo, models.ReasonUnreachableParty, s.now, nil)
		return err
	})
	s.ErrorIs(err, ledger.ErrNoActiveEntry)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *LedgerSuite) TestRevive() {
	s.Require().NoError(s.inTx(func(tx ports.NoticeTx) error {
		return s.ledger.Append(s.ctx, tx, s.entry(1, models.ReasonUnreachableParty))
	}))
	revivedAt := s.now.Add(48 * time.Hour)
	s.Require().NoError(s.inTx(func(tx ports.NoticeTx) error {
		_, err := s.ledger.Revive(s.ctx, tx, s.noticeNo, models.ReasonUnreachableParty, revivedAt)
		return err
	}))

	entries, err := s.store.ListLedger(s.ctx, s.noticeNo)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Require().NotNil(entries[0].DateOfRevival)
	s.True(entries[0].DateOfRevival.Equal(revivedAt))
	s.Nil(ledger.CurrentSuspension(entries))
}

func (s *LedgerSuite) TestLatest() {
	s.Require().NoError(s.inTx(func(tx ports.NoticeTx) error {
		latest, err := s.ledger.Latest(s.ctx, tx, s.noticeNo)
		s.Require().NoError(err)
		s.Nil(latest)

		s.Require().NoError(s.ledger.Append(s.ctx, tx, s.entry(1, models.ReasonReduction)))
		s.Require().NoError(s.ledger.Append(s.ctx, tx, s.entry(2, models.ReasonPartialPayment)))
		latest, err = s.ledger.Latest(s.ctx, tx, s.noticeNo)
		s.Require().NoError(err)
		s.Equal(models.ReasonPartialPayment, latest.Reason)
		return nil
	}))
}

func TestIsCurrentlyUnderReduction(t *testing.T) {
	now := time.Now()
	n, err := models.NewNotice("A1", "P1", "30305", decimal.NewFromInt(10), models.StageReminder1, now)
	if err != nil {
		t.Fatal(err)
	}
	if ledger.IsCurrentlyUnderReduction(n) {
		t.Fatal("fresh notice is not under reduction")
	}
	n.ApplySuspension(models.ReasonReduction, now, nil)
	if !ledger.IsCurrentlyUnderReduction(n) {
		t.Fatal("expected reduction guard to trigger")
	}
	n.ApplySuspension(models.ReasonUnreachableParty, now, nil)
	if ledger.IsCurrentlyUnderReduction(n) {
		t.Fatal("HST is not a reduction")
	}
}

func (s *LedgerSuite) TestReviveTemporary() {
	s.Require().NoError(s.inTx(func(tx ports.NoticeTx) error {
		s.Require().NoError(s.ledger.Append(s.ctx, tx, s.entry(1, models.ReasonUnreachableParty)))
		s.Require().NoError(s.ledger.Append(s.ctx, tx, s.entry(2, models.ReasonAdvisoryNotice)))
		n, err := s.ledger.ReviveTemporary(s.ctx, tx, s.noticeNo, s.now)
		s.Require().NoError(err)
		s.Equal(1, n)
		return nil
	}))

	entries, err := s.store.ListLedger(s.ctx, s.noticeNo)
	s.Require().NoError(err)
	s.False(entries[0].IsActive())
	s.True(entries[1].IsActive(), "permanent entries are left alone")
}
