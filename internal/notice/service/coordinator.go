// Package service holds the reconciliation coordinator: the only component that
// mutates notices or writes ledger, reduction, payment and refund rows.
//
// Every mutation runs as one per-notice unit of work against the primary store.
// The mirror push happens after commit, outside the lock, and never fails the
// caller: a failed push leaves the notice marked for the resync sweep.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"noticeops/internal/notice/ledger"
	"noticeops/internal/notice/metrics"
	"noticeops/internal/notice/models"
	"noticeops/internal/notice/ports"
	"noticeops/internal/notice/reduction"
	id "noticeops/pkg/domain"
	dErrors "noticeops/pkg/domain-errors"
	"noticeops/pkg/platform/sentinel"
)

var tracer = otel.Tracer("noticeops/internal/notice/service")

const defaultMirrorTimeout = 2 * time.Second

// Coordinator applies payment, reduction and suspension decisions.
type Coordinator struct {
	store         ports.NoticeStore
	mirror        ports.MirrorStore
	ledger        *ledger.Ledger
	engine        *reduction.Engine
	logger        *slog.Logger
	metrics       *metrics.Metrics
	mirrorTimeout time.Duration
}

// Option configures the coordinator.
type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithMirrorTimeout bounds each post-commit mirror write.
func WithMirrorTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.mirrorTimeout = d
		}
	}
}

// New constructs a coordinator over the primary store and the mirror.
func New(store ports.NoticeStore, mirror ports.MirrorStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:         store,
		mirror:        mirror,
		ledger:        ledger.New(),
		engine:        reduction.NewEngine(),
		logger:        slog.Default(),
		mirrorTimeout: defaultMirrorTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// pushMirror writes the projection and clears the resync marker. It reports
// whether the notice is still pending resync.
func (c *Coordinator) pushMirror(ctx context.Context, m models.MirrorNotice) (pending bool) {
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.mirrorTimeout)
	defer cancel()

	if err := c.mirror.Upsert(pushCtx, m); err != nil {
		c.metrics.IncrementMirrorWrite("failed")
		c.metrics.IncrementSyncWarning()
		c.logger.WarnContext(ctx, "SyncWarning: mirror write failed, notice left pending resync",
			"notice_no", m.NoticeNo,
			"version", m.Version,
			"error", err,
		)
		return true
	}
	c.metrics.IncrementMirrorWrite("ok")

	if _, err := c.store.MarkSynced(pushCtx, m.NoticeNo, m.Version); err != nil {
		c.logger.WarnContext(ctx, "SyncWarning: mirror written but sync marker not cleared",
			"notice_no", m.NoticeNo,
			"version", m.Version,
			"error", err,
		)
		return true
	}
	return false
}

// translate maps store and infrastructure errors onto domain errors. Domain errors
// pass through unchanged.
func translate(err error, msg string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, ledger.ErrNoActiveEntry):
		return dErrors.Wrap(err, dErrors.CodeInternal, "suspension ledger is inconsistent with notice")
	case errors.Is(err, sentinel.ErrNotFound):
		return &dErrors.Error{
			Code:    dErrors.CodeNotFound,
			Reason:  models.ReasonCodeNoticeNotFound,
			Message: "notice not found",
			Err:     err,
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func startSpan(ctx context.Context, name string, noticeNo id.NoticeNo) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("notice.no", noticeNo.String())))
}

// endSpan records err on the span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

// reject records a validation or business rejection.
func (c *Coordinator) reject(ctx context.Context, operation string, noticeNo id.NoticeNo, err error) {
	reason := dErrors.ReasonOf(err)
	if reason == "" {
		reason = string(dErrors.CodeOf(err))
	}
	c.metrics.IncrementRejection(operation, reason)
	if dErrors.KindOf(err) == dErrors.KindTechnical {
		c.logger.ErrorContext(ctx, operation+" failed",
			"notice_no", noticeNo,
			"error", err,
		)
		return
	}
	c.logger.InfoContext(ctx, operation+" rejected",
		"notice_no", noticeNo,
		"code", dErrors.CodeOf(err),
		"reason", reason,
	)
}
