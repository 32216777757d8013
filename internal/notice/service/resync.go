package service

import (
	"context"

	"noticeops/internal/notice/models"
)

const defaultResyncBatch = 500

// ResyncPending pushes every notice still marked for resync to the mirror and
// clears the marker when the pushed version is still current. Safe to run
// repeatedly: the mirror ignores versions it already holds.
func (c *Coordinator) ResyncPending(ctx context.Context, limit int) (models.ResyncResult, error) {
	if limit <= 0 {
		limit = defaultResyncBatch
	}
	var res models.ResyncResult
	pending, err := c.store.ListPendingSync(ctx, limit)
	if err != nil {
		return res, translate(err, "failed to list notices pending resync")
	}

	for _, n := range pending {
		if ctx.Err() != nil {
			break
		}
		res.Attempted++
		m := n.Projection()

		pushCtx, cancel := context.WithTimeout(ctx, c.mirrorTimeout)
		err := c.mirror.Upsert(pushCtx, m)
		cancel()
		if err != nil {
			res.Failed++
			c.metrics.IncrementResync("failed")
			c.logger.WarnContext(ctx, "resync push failed",
				"notice_no", n.NoticeNo,
				"version", n.Version,
				"error", err,
			)
			continue
		}

		ok, err := c.store.MarkSynced(ctx, n.NoticeNo, n.Version)
		switch {
		case err != nil:
			res.Failed++
			c.metrics.IncrementResync("failed")
			c.logger.WarnContext(ctx, "resync marker not cleared",
				"notice_no", n.NoticeNo,
				"error", err,
			)
		case !ok:
			res.Superseded++
			c.metrics.IncrementResync("superseded")
		default:
			res.Synced++
			c.metrics.IncrementResync("synced")
		}
	}

	if res.Attempted > 0 {
		c.logger.InfoContext(ctx, "mirror resync sweep finished",
			"attempted", res.Attempted,
			"synced", res.Synced,
			"failed", res.Failed,
			"superseded", res.Superseded,
		)
	}
	return res, nil
}
