package service

import (
	"context"
	"time"

	"noticeops/internal/notice/models"
	"noticeops/internal/notice/ports"
	id "noticeops/pkg/domain"
	dErrors "noticeops/pkg/domain-errors"
	"noticeops/pkg/requestcontext"
)

// SuspensionChange reports the outcome of a looping suspension write.
type SuspensionChange struct {
	Applied     bool
	SyncPending bool
}

// SuspendUnreachable places a Temporary/HST suspension on a notice that has no
// suspension. The check is repeated under the notice lock, so a notice suspended
// concurrently by another path is left alone and Applied is false.
func (c *Coordinator) SuspendUnreachable(ctx context.Context, noticeNo id.NoticeNo, due time.Time, source models.Source) (change SuspensionChange, err error) {
	ctx, span := startSpan(ctx, "notice.SuspendUnreachable", noticeNo)
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	var projection models.MirrorNotice
	err = c.store.Execute(ctx, noticeNo, func(tx ports.NoticeTx, n *models.Notice) error {
		if n.IsSuspended() {
			return nil
		}
		seq, err := c.ledger.NextSequenceNumber(ctx, tx, noticeNo)
		if err != nil {
			return err
		}
		entry := &models.LedgerEntry{
			NoticeNo:         noticeNo,
			SequenceNo:       seq,
			Kind:             models.ReasonUnreachableParty.Kind(),
			Reason:           models.ReasonUnreachableParty,
			DateOfSuspension: now,
			DueDateOfRevival: &due,
			Source:           source,
			Actor:            requestcontext.Actor(ctx),
			Remark:           "address verification invalid",
		}
		if err := c.ledger.Append(ctx, tx, entry); err != nil {
			return err
		}
		n.ApplySuspension(models.ReasonUnreachableParty, now, &due)
		n.LastSequenceNo = seq
		n.Touch(now)
		if err := tx.SaveNotice(ctx, n); err != nil {
			return err
		}
		projection = n.Projection()
		change.Applied = true
		return nil
	})
	if err != nil {
		return SuspensionChange{}, translate(err, "failed to suspend notice")
	}
	if change.Applied {
		c.logger.InfoContext(ctx, "notice suspended for unreachable party",
			"notice_no", noticeNo,
			"due_date_of_revival", due,
		)
		change.SyncPending = c.pushMirror(ctx, projection)
	}
	return change, nil
}

// ReassertUnreachable moves a looping suspension forward: new suspension date and
// due date on both the notice and its current ledger entry. No ledger row is added.
// Applied is false when the notice is no longer held by the looping suspension.
func (c *Coordinator) ReassertUnreachable(ctx context.Context, noticeNo id.NoticeNo, due time.Time) (change SuspensionChange, err error) {
	ctx, span := startSpan(ctx, "notice.ReassertUnreachable", noticeNo)
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	var projection models.MirrorNotice
	err = c.store.Execute(ctx, noticeNo, func(tx ports.NoticeTx, n *models.Notice) error {
		if !n.IsLooping() {
			return nil
		}
		if _, err := c.ledger.Reassert(ctx, tx, noticeNo, models.ReasonUnreachableParty, now, &due); err != nil {
			return err
		}
		n.ApplySuspension(models.ReasonUnreachableParty, now, &due)
		n.Touch(now)
		if err := tx.SaveNotice(ctx, n); err != nil {
			return err
		}
		projection = n.Projection()
		change.Applied = true
		return nil
	})
	if err != nil {
		return SuspensionChange{}, translate(err, "failed to reassert suspension")
	}
	if change.Applied {
		c.logger.DebugContext(ctx, "looping suspension reasserted",
			"notice_no", noticeNo,
			"due_date_of_revival", due,
		)
		change.SyncPending = c.pushMirror(ctx, projection)
	}
	return change, nil
}

// ReviveSuspension lifts the notice's current Temporary suspension: the active
// ledger entry gets its date of revival and the notice returns to no suspension.
// Permanent suspensions cannot be revived.
func (c *Coordinator) ReviveSuspension(ctx context.Context, noticeNo id.NoticeNo) (notice *models.Notice, err error) {
	ctx, span := startSpan(ctx, "notice.ReviveSuspension", noticeNo)
	defer func() {
		if err != nil {
			c.reject(ctx, "revive_suspension", noticeNo, err)
		}
		endSpan(span, err)
	}()

	now := requestcontext.Now(ctx)
	var projection models.MirrorNotice
	err = c.store.Execute(ctx, noticeNo, func(tx ports.NoticeTx, n *models.Notice) error {
		switch n.SuspensionKind {
		case models.SuspensionNone:
			return dErrors.New(dErrors.CodeBusinessRule, "notice is not suspended")
		case models.SuspensionPermanent:
			return dErrors.New(dErrors.CodeBusinessRule, "permanent suspension cannot be revived")
		case models.SuspensionTemporary:
		}
		if _, err := c.ledger.Revive(ctx, tx, noticeNo, n.SuspensionReason, now); err != nil {
			return err
		}
		n.ClearSuspension()
		n.Touch(now)
		if err := tx.SaveNotice(ctx, n); err != nil {
			return err
		}
		projection = n.Projection()
		notice = n
		return nil
	})
	if err != nil {
		return nil, translate(err, "failed to revive suspension")
	}
	c.logger.InfoContext(ctx, "suspension revived",
		"notice_no", noticeNo,
		"actor", requestcontext.Actor(ctx),
	)
	if c.pushMirror(ctx, projection) {
		notice.SyncStatus = models.SyncStatusPending
	} else {
		notice.SyncStatus = models.SyncStatusSynced
	}
	return notice, nil
}
