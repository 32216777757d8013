package service

import (
	"context"

	"noticeops/internal/notice/models"
	id "noticeops/pkg/domain"
	"noticeops/pkg/requestcontext"
)

// RegisterNotice creates a notice from the offence intake and pushes its first
// projection to the mirror.
func (c *Coordinator) RegisterNotice(ctx context.Context, cmd models.RegisterNoticeCommand) (*models.Notice, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	n, err := models.NewNotice(cmd.NoticeNo, cmd.PartyID, cmd.RuleCode, cmd.CompositionAmount, cmd.Stage, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := c.store.CreateNotice(ctx, n); err != nil {
		return nil, translate(err, "notice already registered")
	}
	if !c.pushMirror(ctx, n.Projection()) {
		n.SyncStatus = models.SyncStatusSynced
	}
	return n, nil
}

// GetNotice returns the current notice.
func (c *Coordinator) GetNotice(ctx context.Context, noticeNo id.NoticeNo) (*models.Notice, error) {
	n, err := c.store.FindNotice(ctx, noticeNo)
	if err != nil {
		return nil, translate(err, "failed to load notice")
	}
	return n, nil
}

// History returns the notice with its ledger, reductions and refunds.
func (c *Coordinator) History(ctx context.Context, noticeNo id.NoticeNo) (*models.NoticeHistory, error) {
	n, err := c.GetNotice(ctx, noticeNo)
	if err != nil {
		return nil, err
	}
	entries, err := c.store.ListLedger(ctx, noticeNo)
	if err != nil {
		return nil, translate(err, "failed to load ledger")
	}
	reductions, err := c.store.ListReductions(ctx, noticeNo)
	if err != nil {
		return nil, translate(err, "failed to load reductions")
	}
	refunds, err := c.store.ListRefunds(ctx, noticeNo)
	if err != nil {
		return nil, translate(err, "failed to load refunds")
	}
	return &models.NoticeHistory{
		Notice:     n,
		Ledger:     entries,
		Reductions: reductions,
		Refunds:    refunds,
	}, nil
}
