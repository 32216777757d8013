package service

import (
	"context"
	"time"

	"noticeops/internal/notice/models"
	"noticeops/internal/notice/payment"
	"noticeops/internal/notice/ports"
	id "noticeops/pkg/domain"
	dErrors "noticeops/pkg/domain-errors"
	"noticeops/pkg/requestcontext"
)

// ApplyPayment records an incoming payment, classifies it against the notice
// balance and applies the outcome.
//
// The payment row is committed on its own before classification so every payment
// is durably recorded. A reference that was already classified returns the stored
// outcome with Replayed set and writes nothing.
func (c *Coordinator) ApplyPayment(ctx context.Context, cmd models.PaymentCommand) (result *models.PaymentResult, err error) {
	start := time.Now()
	ctx, span := startSpan(ctx, "notice.ApplyPayment", cmd.NoticeNo)
	defer func() {
		c.metrics.ObserveOperation("apply_payment", start)
		if err != nil {
			c.reject(ctx, "apply_payment", cmd.NoticeNo, err)
		}
		endSpan(span, err)
	}()

	cmd.Normalize()
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	if _, err := c.store.FindNotice(ctx, cmd.NoticeNo); err != nil {
		return nil, translate(err, "failed to load notice")
	}

	stored, created, err := c.store.RecordPayment(ctx, &models.PaymentRecord{
		ID:        id.NewPaymentID(),
		NoticeNo:  cmd.NoticeNo,
		Amount:    cmd.Amount,
		Method:    cmd.Method,
		Reference: cmd.Reference,
		PaidAt:    cmd.PaidAt,
		CreatedAt: now,
	})
	if err != nil {
		return nil, translate(err, "failed to record payment")
	}
	if !created && (stored.NoticeNo != cmd.NoticeNo || !stored.Amount.Equal(cmd.Amount)) {
		return nil, dErrors.New(dErrors.CodeConflict, "payment reference already recorded for a different payment")
	}

	var (
		projection models.MirrorNotice
		changed    bool
	)
	err = c.store.Execute(ctx, cmd.NoticeNo, func(tx ports.NoticeTx, n *models.Notice) error {
		rec, err := tx.FindPayment(ctx, cmd.Reference)
		if err != nil {
			return err
		}
		if rec.Outcome != nil {
			result = replayedPayment(n, *rec.Outcome)
			return nil
		}

		cls := payment.Classify(cmd.Amount, n.AmountPayable, n.AmountPaid, n.IsFullyPaid())
		if err := c.applyClassification(ctx, tx, n, cmd, cls, now); err != nil {
			return err
		}
		if err := tx.SetPaymentOutcome(ctx, cmd.Reference, cls.Outcome); err != nil {
			return err
		}

		refund, _, _ := cls.RefundAmount()
		result = &models.PaymentResult{
			NoticeNo:          n.NoticeNo,
			Outcome:           cls.Outcome,
			NewTotalPaid:      cls.NewTotalPaid,
			OverpaymentAmount: cls.OverpaymentAmount,
			RefundAmount:      refund,
		}
		if cls.Outcome != models.OutcomeDoublePayment {
			n.Touch(now)
			if err := tx.SaveNotice(ctx, n); err != nil {
				return err
			}
			projection = n.Projection()
			changed = true
		}
		return nil
	})
	if err != nil {
		return nil, translate(err, "failed to apply payment")
	}

	if result.Replayed {
		c.logger.InfoContext(ctx, "payment replayed",
			"notice_no", cmd.NoticeNo,
			"reference", cmd.Reference,
			"outcome", result.Outcome,
		)
		return result, nil
	}

	c.metrics.IncrementPaymentOutcome(string(result.Outcome))
	c.logger.InfoContext(ctx, "payment applied",
		"notice_no", cmd.NoticeNo,
		"reference", cmd.Reference,
		"outcome", result.Outcome,
		"new_total_paid", result.NewTotalPaid.String(),
	)
	if changed {
		result.SyncPending = c.pushMirror(ctx, projection)
	}
	return result, nil
}

// applyClassification performs the writes for one outcome inside the unit of work.
func (c *Coordinator) applyClassification(ctx context.Context, tx ports.NoticeTx, n *models.Notice, cmd models.PaymentCommand, cls payment.Classification, now time.Time) error {
	switch cls.Outcome {
	case models.OutcomeDoublePayment:
		return c.refund(ctx, tx, n.NoticeNo, cmd.Reference, cls, now)

	case models.OutcomeFullPayment, models.OutcomeOverPayment, models.OutcomePartialPayment:
		reason := cls.SuspensionReason()
		if _, err := c.ledger.ReviveTemporary(ctx, tx, n.NoticeNo, cmd.PaidAt); err != nil {
			return err
		}
		seq, err := c.ledger.NextSequenceNumber(ctx, tx, n.NoticeNo)
		if err != nil {
			return err
		}
		entry := &models.LedgerEntry{
			NoticeNo:         n.NoticeNo,
			SequenceNo:       seq,
			Kind:             reason.Kind(),
			Reason:           reason,
			DateOfSuspension: cmd.PaidAt,
			Source:           models.SourcePayment,
			Actor:            requestcontext.Actor(ctx),
			Remark:           "payment " + cmd.Reference,
		}
		if err := c.ledger.Append(ctx, tx, entry); err != nil {
			return err
		}

		n.AmountPaid = cls.NewTotalPaid
		n.ApplySuspension(reason, cmd.PaidAt, nil)
		n.LastSequenceNo = seq
		if cls.SettlesNotice() {
			n.PaymentAllowed = false
		}
		if cls.Outcome == models.OutcomeOverPayment {
			return c.refund(ctx, tx, n.NoticeNo, cmd.Reference, cls, now)
		}
		return nil
	}
	return dErrors.New(dErrors.CodeInternal, "unhandled payment outcome "+string(cls.Outcome))
}

// refund creates the refund owed by cls unless one already exists for the reference.
func (c *Coordinator) refund(ctx context.Context, tx ports.NoticeTx, noticeNo id.NoticeNo, reference string, cls payment.Classification, now time.Time) error {
	amount, reason, ok := cls.RefundAmount()
	if !ok || !amount.IsPositive() {
		return nil
	}
	exists, err := tx.RefundExists(ctx, reference, reason)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return tx.AppendRefund(ctx, &models.RefundRecord{
		ID:               id.NewRefundID(),
		NoticeNo:         noticeNo,
		PaymentReference: reference,
		Amount:           amount,
		Reason:           reason,
		CreatedAt:        now,
	})
}

func replayedPayment(n *models.Notice, outcome models.PaymentOutcome) *models.PaymentResult {
	return &models.PaymentResult{
		NoticeNo:     n.NoticeNo,
		Outcome:      outcome,
		NewTotalPaid: n.AmountPaid,
		Replayed:     true,
		SyncPending:  n.SyncStatus == models.SyncStatusPending,
	}
}
