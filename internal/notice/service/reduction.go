package service

import (
	"context"
	"time"

	"noticeops/internal/notice/ledger"
	"noticeops/internal/notice/models"
	"noticeops/internal/notice/ports"
	"noticeops/pkg/requestcontext"
)

// RequestReduction grants a reduction of the amount payable.
//
// A notice already under reduction is answered with ReductionAlreadyApplied and no
// writes. Otherwise the checks run in a fixed order (paid, amounts, dates,
// eligibility) and the first failure aborts the unit of work. The ledger entry and
// the reduction record share one sequence number.
func (c *Coordinator) RequestReduction(ctx context.Context, cmd models.ReductionCommand) (result *models.ReductionResult, err error) {
	start := time.Now()
	ctx, span := startSpan(ctx, "notice.RequestReduction", cmd.NoticeNo)
	defer func() {
		c.metrics.ObserveOperation("request_reduction", start)
		if err != nil {
			c.metrics.IncrementReduction("rejected")
			c.reject(ctx, "request_reduction", cmd.NoticeNo, err)
		}
		endSpan(span, err)
	}()

	cmd.Normalize()
	if cmd.Actor == "" {
		cmd.Actor = requestcontext.Actor(ctx)
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	var projection models.MirrorNotice
	err = c.store.Execute(ctx, cmd.NoticeNo, func(tx ports.NoticeTx, n *models.Notice) error {
		if ledger.IsCurrentlyUnderReduction(n) {
			result = &models.ReductionResult{
				NoticeNo:      n.NoticeNo,
				Status:        models.ReductionAlreadyApplied,
				AmountPayable: n.AmountPayable,
				SyncPending:   n.SyncStatus == models.SyncStatusPending,
			}
			return nil
		}

		latest, err := c.ledger.Latest(ctx, tx, n.NoticeNo)
		if err != nil {
			return err
		}
		if err := c.engine.Evaluate(cmd, n, latest); err != nil {
			return err
		}

		if _, err := c.ledger.ReviveTemporary(ctx, tx, n.NoticeNo, cmd.EffectiveDate); err != nil {
			return err
		}
		seq, err := c.ledger.NextSequenceNumber(ctx, tx, n.NoticeNo)
		if err != nil {
			return err
		}
		due := cmd.ExpiryDate
		entry := &models.LedgerEntry{
			NoticeNo:         n.NoticeNo,
			SequenceNo:       seq,
			Kind:             models.ReasonReduction.Kind(),
			Reason:           models.ReasonReduction,
			DateOfSuspension: cmd.EffectiveDate,
			DueDateOfRevival: &due,
			Source:           models.SourceReduction,
			Actor:            cmd.Actor,
			Remark:           cmd.Reason,
		}
		if err := c.ledger.Append(ctx, tx, entry); err != nil {
			return err
		}
		if err := tx.AppendReduction(ctx, &models.ReductionRecord{
			NoticeNo:        n.NoticeNo,
			SequenceNo:      seq,
			DateOfReduction: cmd.EffectiveDate,
			OriginalAmount:  n.CompositionAmount,
			AmountReduced:   cmd.AmountReduced,
			AmountPayable:   cmd.NewPayable,
			Reason:          cmd.Reason,
			ExpiryDate:      cmd.ExpiryDate,
			Actor:           cmd.Actor,
		}); err != nil {
			return err
		}

		n.AmountPayable = cmd.NewPayable
		n.ApplySuspension(models.ReasonReduction, cmd.EffectiveDate, &due)
		n.LastSequenceNo = seq
		n.Touch(now)
		if err := tx.SaveNotice(ctx, n); err != nil {
			return err
		}

		projection = n.Projection()
		result = &models.ReductionResult{
			NoticeNo:      n.NoticeNo,
			Status:        models.ReductionApplied,
			SequenceNo:    seq,
			AmountPayable: n.AmountPayable,
		}
		return nil
	})
	if err != nil {
		return nil, translate(err, "failed to apply reduction")
	}

	if result.Status == models.ReductionAlreadyApplied {
		c.metrics.IncrementReduction("already_applied")
		c.logger.InfoContext(ctx, "reduction already applied",
			"notice_no", cmd.NoticeNo,
		)
		return result, nil
	}

	c.metrics.IncrementReduction("applied")
	c.logger.InfoContext(ctx, "reduction applied",
		"notice_no", cmd.NoticeNo,
		"sr_no", result.SequenceNo,
		"amount_payable", result.AmountPayable.String(),
		"actor", cmd.Actor,
	)
	result.SyncPending = c.pushMirror(ctx, projection)
	return result, nil
}
