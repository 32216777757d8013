package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"noticeops/internal/notice/metrics"
	"noticeops/internal/notice/mirror"
	"noticeops/internal/notice/models"
	"noticeops/internal/notice/service"
	"noticeops/internal/notice/store/memory"
	id "noticeops/pkg/domain"
	dErrors "noticeops/pkg/domain-errors"
	"noticeops/pkg/requestcontext"
)

type CoordinatorSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	store   *memory.Store
	mirror  *mirror.MemoryStore
	metrics *metrics.Metrics
	svc     *service.Coordinator
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) SetupTest() {
	s.now = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithActor(requestcontext.WithTime(context.Background(), s.now), "officer-7")
	s.store = memory.New()
	s.mirror = mirror.NewMemoryStore()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.svc = service.New(s.store, s.mirror,
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		service.WithMetrics(s.metrics),
	)
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (s *CoordinatorSuite) register(noticeNo id.NoticeNo, amount string, ruleCode string, stage models.Stage) {
	_, err := s.svc.RegisterNotice(s.ctx, models.RegisterNoticeCommand{
		NoticeNo:          noticeNo,
		PartyID:           "S1234567D",
		RuleCode:          ruleCode,
		CompositionAmount: dec(amount),
		Stage:             stage,
	})
	s.Require().NoError(err)
}

func (s *CoordinatorSuite) pay(noticeNo id.NoticeNo, amount, ref string) (*models.PaymentResult, error) {
	return s.svc.ApplyPayment(s.ctx, models.PaymentCommand{
		NoticeNo:  noticeNo,
		Amount:    dec(amount),
		Method:    models.MethodEService,
		Reference: ref,
		PaidAt:    s.now,
	})
}

func (s *CoordinatorSuite) reductionCmd(noticeNo id.NoticeNo) models.ReductionCommand {
	return models.ReductionCommand{
		NoticeNo:      noticeNo,
		AmountReduced: dec("50.00"),
		NewPayable:    dec("100.00"),
		Reason:        "first-time offender",
		EffectiveDate: s.now,
		ExpiryDate:    s.now.AddDate(0, 0, 14),
		Actor:         "officer-7",
	}
}

func (s *CoordinatorSuite) notice(noticeNo id.NoticeNo) *models.Notice {
	n, err := s.svc.GetNotice(s.ctx, noticeNo)
	s.Require().NoError(err)
	return n
}

func (s *CoordinatorSuite) history(noticeNo id.NoticeNo) *models.NoticeHistory {
	h, err := s.svc.History(s.ctx, noticeNo)
	s.Require().NoError(err)
	return h
}

// =============================================================================
// Payments (scenarios 1-3)
// =============================================================================

func (s *CoordinatorSuite) TestFullPayment() {
	s.register("N100", "100.00", "30305", models.StageReminder1)

	res, err := s.pay("N100", "100.00", "PAY-1")
	s.Require().NoError(err)
	s.Equal(models.OutcomeFullPayment, res.Outcome)
	s.True(res.OverpaymentAmount.IsZero())
	s.False(res.SyncPending)

	n := s.notice("N100")
	s.Equal(models.SuspensionPermanent, n.SuspensionKind)
	s.Equal(models.ReasonFullPayment, n.SuspensionReason)
	s.True(n.AmountPaid.Equal(dec("100.00")))
	s.False(n.PaymentAllowed)
	s.Equal(models.SyncStatusSynced, n.SyncStatus)

	h := s.history("N100")
	s.Require().Len(h.Ledger, 1)
	s.Equal(models.SourcePayment, h.Ledger[0].Source)
	s.Equal("officer-7", h.Ledger[0].Actor)
	s.Empty(h.Refunds)

	m, err := s.mirror.Get(s.ctx, "N100")
	s.Require().NoError(err)
	s.Equal(models.ReasonFullPayment, m.SuspensionReason)
	s.Equal(n.Version, m.Version)
}

func (s *CoordinatorSuite) TestDoublePayment() {
	s.register("N100", "100.00", "30305", models.StageReminder1)
	_, err := s.pay("N100", "100.00", "PAY-1")
	s.Require().NoError(err)
	before := s.notice("N100")

	res, err := s.pay("N100", "50.00", "PAY-2")
	s.Require().NoError(err)
	s.Equal(models.OutcomeDoublePayment, res.Outcome)
	s.True(res.RefundAmount.Equal(dec("50.00")))

	after := s.notice("N100")
	s.Equal(before.Version, after.Version, "double payment does not touch the notice")
	s.Equal(models.ReasonFullPayment, after.SuspensionReason)
	s.True(after.AmountPaid.Equal(dec("100.00")))

	h := s.history("N100")
	s.Len(h.Ledger, 1)
	s.Require().Len(h.Refunds, 1)
	s.Equal(models.RefundDoublePayment, h.Refunds[0].Reason)
	s.True(h.Refunds[0].Amount.Equal(dec("50.00")))
	s.Equal("PAY-2", h.Refunds[0].PaymentReference)
}

func (s *CoordinatorSuite) TestOverPayment() {
	s.register("N200", "200.00", "30305", models.StageReminder1)

	res, err := s.pay("N200", "250.00", "PAY-1")
	s.Require().NoError(err)
	s.Equal(models.OutcomeOverPayment, res.Outcome)
	s.True(res.OverpaymentAmount.Equal(dec("50.00")))

	n := s.notice("N200")
	s.Equal(models.SuspensionPermanent, n.SuspensionKind)
	s.Equal(models.ReasonFullPayment, n.SuspensionReason)

	h := s.history("N200")
	s.Require().Len(h.Refunds, 1)
	s.Equal(models.RefundOverPayment, h.Refunds[0].Reason)
	s.True(h.Refunds[0].Amount.Equal(dec("50.00")))
}

func (s *CoordinatorSuite) TestPartialThenFullPayment() {
	s.register("N300", "100.00", "30305", models.StageReminder1)

	res, err := s.pay("N300", "40.00", "PAY-1")
	s.Require().NoError(err)
	s.Equal(models.OutcomePartialPayment, res.Outcome)
	n := s.notice("N300")
	s.Equal(models.SuspensionPermanent, n.SuspensionKind)
	s.Equal(models.ReasonPartialPayment, n.SuspensionReason)
	s.True(n.PaymentAllowed)

	res, err = s.pay("N300", "60.00", "PAY-2")
	s.Require().NoError(err)
	s.Equal(models.OutcomeFullPayment, res.Outcome)
	s.True(res.NewTotalPaid.Equal(dec("100.00")))

	h := s.history("N300")
	s.Require().Len(h.Ledger, 2)
	s.False(h.Ledger[0].IsActive(), "partial-payment entry is revived by the full payment")
	s.True(h.Ledger[1].IsActive())
	s.Equal(2, h.Notice.LastSequenceNo)
}

func (s *CoordinatorSuite) TestPaymentReplay() {
	s.register("N100", "100.00", "30305", models.StageReminder1)
	first, err := s.pay("N100", "100.00", "PAY-1")
	s.Require().NoError(err)

	again, err := s.pay("N100", "100.00", "PAY-1")
	s.Require().NoError(err)
	s.True(again.Replayed)
	s.Equal(first.Outcome, again.Outcome)

	h := s.history("N100")
	s.Len(h.Ledger, 1)
	s.Empty(h.Refunds, "a replay is not a double payment")
}

func (s *CoordinatorSuite) TestPaymentReferenceReusedForDifferentAmount() {
	s.register("N100", "100.00", "30305", models.StageReminder1)
	_, err := s.pay("N100", "10.00", "PAY-1")
	s.Require().NoError(err)

	_, err = s.pay("N100", "20.00", "PAY-1")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *CoordinatorSuite) TestPaymentValidation() {
	s.register("N100", "100.00", "30305", models.StageReminder1)

	s.Run("non-positive amount", func() {
		_, err := s.pay("N100", "0", "PAY-1")
		s.Equal(dErrors.KindValidation, dErrors.KindOf(err))
	})
	s.Run("missing reference", func() {
		_, err := s.pay("N100", "10", "  ")
		s.Equal(dErrors.KindValidation, dErrors.KindOf(err))
	})
	s.Run("unknown notice", func() {
		_, err := s.pay("MISSING", "10", "PAY-9")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Equal(models.ReasonCodeNoticeNotFound, dErrors.ReasonOf(err))
	})
}

// TestConcurrentPayments checks that amountPaid is computed from a consistent
// snapshot under concurrent payments.
func (s *CoordinatorSuite) TestConcurrentPayments() {
	s.register("N400", "1000.00", "30305", models.StageReminder1)
	const payments = 40

	var wg sync.WaitGroup
	for i := 0; i < payments; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.pay("N400", "10.00", "PAY-"+string(rune('A'+i/26))+string(rune('A'+i%26)))
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	n := s.notice("N400")
	s.True(n.AmountPaid.Equal(dec("400.00")), "got %s", n.AmountPaid)
	h := s.history("N400")
	s.Len(h.Ledger, payments)
	active := 0
	for _, e := range h.Ledger {
		if e.IsActive() {
			active++
		}
	}
	s.Equal(1, active, "one active payment-family entry")
}

// =============================================================================
// Reductions (scenarios 4-5)
// =============================================================================

func (s *CoordinatorSuite) TestReductionApplied() {
	s.register("N150", "150.00", "30305", models.StageReminder2)

	res, err := s.svc.RequestReduction(s.ctx, s.reductionCmd("N150"))
	s.Require().NoError(err)
	s.Equal(models.ReductionApplied, res.Status)
	s.Equal(1, res.SequenceNo)
	s.True(res.AmountPayable.Equal(dec("100.00")))

	n := s.notice("N150")
	s.Equal(models.SuspensionTemporary, n.SuspensionKind)
	s.Equal(models.ReasonReduction, n.SuspensionReason)
	s.True(n.AmountPayable.Equal(dec("100.00")))
	s.Require().NotNil(n.DueDateOfRevival)
	s.True(n.DueDateOfRevival.Equal(s.now.AddDate(0, 0, 14)))

	h := s.history("N150")
	s.Require().Len(h.Ledger, 1)
	s.Require().Len(h.Reductions, 1)
	s.Equal(h.Ledger[0].SequenceNo, h.Reductions[0].SequenceNo)
	s.True(h.Reductions[0].OriginalAmount.Equal(dec("150.00")))

	m, err := s.mirror.Get(s.ctx, "N150")
	s.Require().NoError(err)
	s.True(m.AmountPayable.Equal(dec("100.00")))
}

func (s *CoordinatorSuite) TestReductionIdempotent() {
	s.register("N150", "150.00", "30305", models.StageReminder2)
	_, err := s.svc.RequestReduction(s.ctx, s.reductionCmd("N150"))
	s.Require().NoError(err)
	version := s.notice("N150").Version

	res, err := s.svc.RequestReduction(s.ctx, s.reductionCmd("N150"))
	s.Require().NoError(err)
	s.Equal(models.ReductionAlreadyApplied, res.Status)

	h := s.history("N150")
	s.Len(h.Ledger, 1)
	s.Len(h.Reductions, 1)
	s.Equal(version, h.Notice.Version)
}

func (s *CoordinatorSuite) TestReductionRejections() {
	s.Run("already paid", func() {
		s.register("R1", "150.00", "30305", models.StageReminder2)
		_, err := s.pay("R1", "20.00", "PAY-R1")
		s.Require().NoError(err)
		_, err = s.svc.RequestReduction(s.ctx, s.reductionCmd("R1"))
		s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
		s.Equal(models.ReasonCodeNoticeAlreadyPaid, dErrors.ReasonOf(err))
	})

	s.Run("reduced above original", func() {
		s.register("R2", "150.00", "30305", models.StageReminder2)
		cmd := s.reductionCmd("R2")
		cmd.AmountReduced = dec("151.00")
		_, err := s.svc.RequestReduction(s.ctx, cmd)
		s.Equal(models.ReasonCodeInvalidReductionAmount, dErrors.ReasonOf(err))
		s.Equal(dErrors.KindValidation, dErrors.KindOf(err))
	})

	s.Run("not eligible", func() {
		s.register("R3", "150.00", "99999", models.StageReminder2)
		_, err := s.svc.RequestReduction(s.ctx, s.reductionCmd("R3"))
		s.Equal(models.ReasonCodeNotEligible, dErrors.ReasonOf(err))
		s.Equal(dErrors.KindBusiness, dErrors.KindOf(err))
	})

	s.Run("rejections write nothing", func() {
		for _, no := range []id.NoticeNo{"R2", "R3"} {
			h := s.history(no)
			s.Empty(h.Ledger)
			s.Empty(h.Reductions)
			s.Equal(int64(1), h.Notice.Version)
		}
	})
}

// =============================================================================
// Sequence numbers under concurrency
// =============================================================================

func (s *CoordinatorSuite) TestConcurrentSuspensionsShareContiguousSequence() {
	s.register("N500", "150.00", "30305", models.StageReminder2)
	due := s.now.AddDate(0, 0, 30)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, err := s.svc.RequestReduction(s.ctx, s.reductionCmd("N500"))
			s.NoError(err)
		}()
		go func() {
			defer wg.Done()
			_, err := s.svc.SuspendUnreachable(s.ctx, "N500", due, models.SourceLooping)
			s.NoError(err)
		}()
		go func() {
			defer wg.Done()
			_, _ = s.svc.ReviveSuspension(s.ctx, "N500")
		}()
	}
	wg.Wait()

	h := s.history("N500")
	var seqs []int
	for _, e := range h.Ledger {
		seqs = append(seqs, e.SequenceNo)
	}
	for _, r := range h.Reductions {
		if r.SequenceNo != 0 {
			found := false
			for _, e := range h.Ledger {
				if e.SequenceNo == r.SequenceNo && e.Reason == models.ReasonReduction {
					found = true
				}
			}
			s.True(found, "reduction %d shares its number with a ledger entry", r.SequenceNo)
		}
	}
	sort.Ints(seqs)
	for i, seq := range seqs {
		s.Equal(i+1, seq, "sequence numbers are contiguous")
	}
	s.Equal(len(seqs), h.Notice.LastSequenceNo)
}

// =============================================================================
// Looping suspension writes and revival
// =============================================================================

func (s *CoordinatorSuite) TestSuspendUnreachableSkipsSuspendedNotices() {
	s.register("N600", "100.00", "30305", models.StageReminder1)
	s.register("N601", "100.00", "30305", models.StageReminder1)
	_, err := s.pay("N601", "10.00", "PAY-1")
	s.Require().NoError(err)
	due := s.now.AddDate(0, 0, 21)

	change, err := s.svc.SuspendUnreachable(s.ctx, "N600", due, models.SourceLooping)
	s.Require().NoError(err)
	s.True(change.Applied)

	change, err = s.svc.SuspendUnreachable(s.ctx, "N601", due, models.SourceLooping)
	s.Require().NoError(err)
	s.False(change.Applied)
	s.Equal(models.ReasonPartialPayment, s.notice("N601").SuspensionReason)

	n := s.notice("N600")
	s.True(n.IsLooping())
	s.True(n.DueDateOfRevival.Equal(due))
}

func (s *CoordinatorSuite) TestReassertUpdatesWithoutNewRows() {
	s.register("N700", "100.00", "30305", models.StageReminder1)
	_, err := s.svc.SuspendUnreachable(s.ctx, "N700", s.now.AddDate(0, 0, 21), models.SourceLooping)
	s.Require().NoError(err)

	later := s.now.AddDate(0, 0, 20)
	ctx := requestcontext.WithTime(s.ctx, later)
	newDue := later.AddDate(0, 0, 21)
	change, err := s.svc.ReassertUnreachable(ctx, "N700", newDue)
	s.Require().NoError(err)
	s.True(change.Applied)

	h := s.history("N700")
	s.Require().Len(h.Ledger, 1)
	s.True(h.Ledger[0].DateOfSuspension.Equal(later))
	s.True(h.Ledger[0].DueDateOfRevival.Equal(newDue))
	s.True(h.Notice.SuspensionDate.Equal(later))
	s.True(h.Notice.DueDateOfRevival.Equal(newDue))
}

func (s *CoordinatorSuite) TestReviveSuspension() {
	s.register("N800", "100.00", "30305", models.StageReminder1)
	_, err := s.svc.SuspendUnreachable(s.ctx, "N800", s.now.AddDate(0, 0, 21), models.SourceLooping)
	s.Require().NoError(err)

	n, err := s.svc.ReviveSuspension(s.ctx, "N800")
	s.Require().NoError(err)
	s.False(n.IsSuspended())
	s.Nil(n.DueDateOfRevival)

	h := s.history("N800")
	s.Require().Len(h.Ledger, 1)
	s.NotNil(h.Ledger[0].DateOfRevival)

	_, err = s.svc.ReviveSuspension(s.ctx, "N800")
	s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule), "nothing left to revive")

	_, err = s.pay("N800", "100.00", "PAY-1")
	s.Require().NoError(err)
	_, err = s.svc.ReviveSuspension(s.ctx, "N800")
	s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule), "permanent suspensions stay")
}

func (s *CoordinatorSuite) TestPaymentSupersedesTemporarySuspension() {
	s.register("N900", "100.00", "30305", models.StageReminder1)
	_, err := s.svc.SuspendUnreachable(s.ctx, "N900", s.now.AddDate(0, 0, 21), models.SourceLooping)
	s.Require().NoError(err)

	_, err = s.pay("N900", "100.00", "PAY-1")
	s.Require().NoError(err)

	h := s.history("N900")
	s.Require().Len(h.Ledger, 2)
	s.False(h.Ledger[0].IsActive(), "HST entry lifted when the payment suspension replaces it")
	s.Equal(models.ReasonFullPayment, h.Notice.SuspensionReason)
}

// =============================================================================
// Mirror failures and resync
// =============================================================================

func (s *CoordinatorSuite) TestMirrorFailureIsASyncWarning() {
	s.register("N100", "100.00", "30305", models.StageReminder1)
	s.mirror.FailWith(errors.New("replica unreachable"))

	res, err := s.pay("N100", "100.00", "PAY-1")
	s.Require().NoError(err, "mirror failure never fails the caller")
	s.True(res.SyncPending)
	s.Equal(models.OutcomeFullPayment, res.Outcome)
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.SyncWarnings))

	n := s.notice("N100")
	s.Equal(models.SyncStatusPending, n.SyncStatus)
	s.Equal(models.ReasonFullPayment, n.SuspensionReason, "primary commit stands")

	// Sweep while the mirror is still down
	rs, err := s.svc.ResyncPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(1, rs.Attempted)
	s.Equal(1, rs.Failed)

	s.mirror.FailWith(nil)
	rs, err = s.svc.ResyncPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(1, rs.Synced)

	m, err := s.mirror.Get(s.ctx, "N100")
	s.Require().NoError(err)
	s.Equal(models.ReasonFullPayment, m.SuspensionReason)
	s.Equal(n.Version, m.Version)
	s.Equal(models.SyncStatusSynced, s.notice("N100").SyncStatus)

	// Idempotent: nothing left
	rs, err = s.svc.ResyncPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(0, rs.Attempted)
}

func (s *CoordinatorSuite) TestRegisterDuplicateNotice() {
	s.register("N100", "100.00", "30305", models.StageReminder1)
	_, err := s.svc.RegisterNotice(s.ctx, models.RegisterNoticeCommand{
		NoticeNo: "N100", PartyID: "P1", RuleCode: "30305", CompositionAmount: dec("1"), Stage: models.StageReminder1,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}
