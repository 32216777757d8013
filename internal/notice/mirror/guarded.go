package mirror

import (
	"context"
	"fmt"
	"log/slog"

	"noticeops/internal/notice/models"
	"noticeops/internal/notice/ports"
	id "noticeops/pkg/domain"
	"noticeops/pkg/platform/circuit"
	"noticeops/pkg/platform/sentinel"
)

// Guarded fronts a mirror store with a circuit breaker. While the breaker is open
// writes fail fast with sentinel.ErrUnavailable and the caller leaves the notice
// marked for resync.
type Guarded struct {
	next    ports.MirrorStore
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// NewGuarded wraps next. A nil logger discards breaker transitions.
func NewGuarded(next ports.MirrorStore, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Guarded{next: next, breaker: breaker, logger: logger}
}

func (g *Guarded) Upsert(ctx context.Context, m models.MirrorNotice) error {
	if !g.breaker.Allow() {
		return fmt.Errorf("mirror circuit %s open: %w", g.breaker.Name(), sentinel.ErrUnavailable)
	}
	if err := g.next.Upsert(ctx, m); err != nil {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "mirror circuit opened", "breaker", g.breaker.Name(), "error", err)
		}
		return err
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "mirror circuit closed", "breaker", g.breaker.Name())
	}
	return nil
}

func (g *Guarded) Get(ctx context.Context, noticeNo id.NoticeNo) (*models.MirrorNotice, error) {
	return g.next.Get(ctx, noticeNo)
}
