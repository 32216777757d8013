// Package looping runs the looping suspension control loop: notices of parties
// whose address fails verification are suspended, and the suspension is
// re-asserted on every pass until verification succeeds and an officer revives
// the notice.
package looping

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"noticeops/internal/notice/addressvalidation"
	"noticeops/internal/notice/metrics"
	"noticeops/internal/notice/models"
	"noticeops/internal/notice/ports"
	"noticeops/internal/notice/service"
	id "noticeops/pkg/domain"
	dErrors "noticeops/pkg/domain-errors"
	"noticeops/pkg/platform/sentinel"
	"noticeops/pkg/requestcontext"
)

// Actor is recorded on ledger rows written by the pass.
const Actor = "system:looping-suspension"

const passLockKey = "noticeops:looping-suspension:pass"

// ErrPassInProgress is returned when another pass holds the in-process or
// cluster-wide lock.
var ErrPassInProgress = dErrors.New(dErrors.CodeConflict, "looping suspension pass already running")

// Suspender applies and re-asserts the unreachable-party suspension under the
// per-notice lock.
type Suspender interface {
	SuspendUnreachable(ctx context.Context, noticeNo id.NoticeNo, due time.Time, source models.Source) (service.SuspensionChange, error)
	ReassertUnreachable(ctx context.Context, noticeNo id.NoticeNo, due time.Time) (service.SuspensionChange, error)
}

// Config holds the pass parameters.
type Config struct {
	GracePeriodDays int
	LookAheadDays   int
	QueryReason     string
	Workers         int
	LookupTimeout   time.Duration
	LockTTL         time.Duration
	BatchSize       int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		GracePeriodDays: 21,
		LookAheadDays:   0,
		QueryReason:     string(models.ReasonUnreachableParty),
		Workers:         8,
		LookupTimeout:   5 * time.Second,
		LockTTL:         10 * time.Minute,
		BatchSize:       1000,
	}
}

// Controller runs looping suspension passes.
type Controller struct {
	suspender Suspender
	notices   ports.NoticeStore
	parties   ports.PartyStore
	validator ports.AddressValidator
	notifier  ports.Notifier
	locker    ports.PassLocker
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	running   atomic.Bool
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithPassLocker adds a cluster-wide lock around each pass.
func WithPassLocker(l ports.PassLocker) Option {
	return func(c *Controller) {
		c.locker = l
	}
}

// WithConfig overrides the defaults. Zero fields keep their default.
func WithConfig(cfg Config) Option {
	return func(c *Controller) {
		def := DefaultConfig()
		if cfg.GracePeriodDays <= 0 {
			cfg.GracePeriodDays = def.GracePeriodDays
		}
		if cfg.LookAheadDays < 0 {
			cfg.LookAheadDays = def.LookAheadDays
		}
		if strings.TrimSpace(cfg.QueryReason) == "" {
			cfg.QueryReason = def.QueryReason
		}
		if cfg.Workers <= 0 {
			cfg.Workers = def.Workers
		}
		if cfg.LookupTimeout <= 0 {
			cfg.LookupTimeout = def.LookupTimeout
		}
		if cfg.LockTTL <= 0 {
			cfg.LockTTL = def.LockTTL
		}
		if cfg.BatchSize <= 0 {
			cfg.BatchSize = def.BatchSize
		}
		c.cfg = cfg
	}
}

func New(suspender Suspender, notices ports.NoticeStore, parties ports.PartyStore, validator ports.AddressValidator, notifier ports.Notifier, opts ...Option) *Controller {
	c := &Controller{
		suspender: suspender,
		notices:   notices,
		parties:   parties,
		notifier:  notifier,
		cfg:       DefaultConfig(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.validator = addressvalidation.NewBounded(validator, c.cfg.LookupTimeout)
	return c
}

// TrackParty registers a party for monitoring. Tracking an already tracked party
// returns it unchanged.
func (c *Controller) TrackParty(ctx context.Context, partyID id.PartyID) (*models.TrackedParty, error) {
	if partyID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "party id is required")
	}
	existing, err := c.parties.FindTrackedParty(ctx, partyID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tracked party")
	}
	p := &models.TrackedParty{
		PartyID:     partyID,
		QueryReason: c.cfg.QueryReason,
		State:       models.PartyUnchecked,
	}
	if err := c.parties.SaveTrackedParty(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to track party")
	}
	c.logger.InfoContext(ctx, "party tracked for address verification", "party_id", partyID)
	return p, nil
}

// passCounters aggregates results from concurrent workers.
type passCounters struct {
	processed atomic.Int64
	suspended atomic.Int64
	reapplied atomic.Int64
	released  atomic.Int64
	errors    atomic.Int64
}

func (pc *passCounters) result() models.PassResult {
	return models.PassResult{
		Processed: int(pc.processed.Load()),
		Suspended: int(pc.suspended.Load()),
		Reapplied: int(pc.reapplied.Load()),
		Released:  int(pc.released.Load()),
		Errors:    int(pc.errors.Load()),
	}
}

// RunPass runs the auto-suspend pass followed by the re-check pass. Per-notice
// failures are counted in Errors and never abort the batch. Overlapping passes
// return ErrPassInProgress.
func (c *Controller) RunPass(ctx context.Context) (models.PassResult, error) {
	if !c.running.CompareAndSwap(false, true) {
		c.metrics.IncrementPassSkipped()
		return models.PassResult{}, ErrPassInProgress
	}
	defer c.running.Store(false)

	if c.locker != nil {
		release, ok, err := c.locker.TryLock(ctx, passLockKey, c.cfg.LockTTL)
		if err != nil {
			return models.PassResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to obtain pass lock")
		}
		if !ok {
			c.metrics.IncrementPassSkipped()
			return models.PassResult{}, ErrPassInProgress
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				c.logger.WarnContext(ctx, "failed to release pass lock", "error", err)
			}
		}()
	}

	start := time.Now()
	defer c.metrics.ObservePass(start)

	ctx = requestcontext.WithActor(ctx, Actor)
	ctx = requestcontext.WithTime(ctx, requestcontext.Now(ctx))

	var counters passCounters
	if err := c.autoSuspend(ctx, &counters); err != nil {
		return counters.result(), err
	}
	if err := c.recheck(ctx, &counters); err != nil {
		return counters.result(), err
	}

	res := counters.result()
	c.metrics.AddPassNotices("processed", res.Processed)
	c.metrics.AddPassNotices("suspended", res.Suspended)
	c.metrics.AddPassNotices("reapplied", res.Reapplied)
	c.metrics.AddPassNotices("released", res.Released)
	c.metrics.AddPassNotices("error", res.Errors)
	c.logger.InfoContext(ctx, "looping suspension pass finished",
		"processed", res.Processed,
		"suspended", res.Suspended,
		"reapplied", res.Reapplied,
		"released", res.Released,
		"errors", res.Errors,
		"duration", time.Since(start),
	)
	return res, nil
}

// autoSuspend checks every tracked party and suspends the unsuspended notices of
// parties that fail verification. Parties already held invalid are listed too, so
// a notice whose suspension failed on an earlier pass, or one registered after
// the party was flagged, is picked up.
func (c *Controller) autoSuspend(ctx context.Context, counters *passCounters) error {
	parties, err := c.parties.ListTrackedParties(ctx, models.PartyUnchecked, models.PartyValid, models.PartyInvalid)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tracked parties")
	}

	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	for _, p := range parties {
		g.Go(func() error {
			c.suspendParty(ctx, p, counters)
			return nil
		})
	}
	return g.Wait()
}

func (c *Controller) suspendParty(ctx context.Context, p *models.TrackedParty, counters *passCounters) {
	validity, err := c.lookup(ctx, p.PartyID)
	if err != nil {
		counters.errors.Add(1)
		return
	}
	now := requestcontext.Now(ctx)
	newlyInvalid := p.State != models.PartyInvalid && validity == models.ValidityInvalid
	if p.Transition(validity, now) {
		if err := c.parties.SaveTrackedParty(ctx, p); err != nil {
			counters.errors.Add(1)
			c.logger.ErrorContext(ctx, "failed to save tracked party", "party_id", p.PartyID, "error", err)
			return
		}
	}
	if validity != models.ValidityInvalid {
		return
	}

	notices, err := c.notices.ListNoticesByParty(ctx, p.PartyID)
	if err != nil {
		counters.errors.Add(1)
		c.logger.ErrorContext(ctx, "failed to list notices for party", "party_id", p.PartyID, "error", err)
		return
	}

	due := models.DaysFrom(now, c.cfg.GracePeriodDays)
	var suspended []string
	for _, n := range notices {
		if n.IsSuspended() {
			continue
		}
		counters.processed.Add(1)
		change, err := c.suspender.SuspendUnreachable(ctx, n.NoticeNo, due, models.SourceLooping)
		if err != nil {
			counters.errors.Add(1)
			c.logger.ErrorContext(ctx, "failed to suspend notice",
				"notice_no", n.NoticeNo,
				"party_id", p.PartyID,
				"error", err,
			)
			continue
		}
		if change.Applied {
			counters.suspended.Add(1)
			suspended = append(suspended, n.NoticeNo.String())
		}
	}

	if newlyInvalid {
		c.notify(ctx, p.PartyID, suspended)
	}
}

// recheck re-verifies every looping suspension due within the look-ahead window.
// Invalid moves the suspension forward; valid leaves it for explicit revival.
func (c *Controller) recheck(ctx context.Context, counters *passCounters) error {
	now := requestcontext.Now(ctx)
	cutoff := models.DaysFrom(now, c.cfg.LookAheadDays+1).Add(-time.Nanosecond)
	due, err := c.notices.ListNoticesDueForRecheck(ctx, models.ReasonUnreachableParty, cutoff, c.cfg.BatchSize)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list notices due for re-check")
	}

	byParty := make(map[id.PartyID][]*models.Notice)
	var order []id.PartyID
	for _, n := range due {
		if _, ok := byParty[n.PartyID]; !ok {
			order = append(order, n.PartyID)
		}
		byParty[n.PartyID] = append(byParty[n.PartyID], n)
	}

	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	for _, partyID := range order {
		notices := byParty[partyID]
		g.Go(func() error {
			c.recheckParty(ctx, partyID, notices, counters)
			return nil
		})
	}
	return g.Wait()
}

func (c *Controller) recheckParty(ctx context.Context, partyID id.PartyID, notices []*models.Notice, counters *passCounters) {
	counters.processed.Add(int64(len(notices)))
	validity, err := c.lookup(ctx, partyID)
	if err != nil {
		counters.errors.Add(int64(len(notices)))
		return
	}
	now := requestcontext.Now(ctx)
	c.recordValidity(ctx, partyID, validity, now)

	switch validity {
	case models.ValidityInvalid:
		due := models.DaysFrom(now, c.cfg.GracePeriodDays)
		for _, n := range notices {
			change, err := c.suspender.ReassertUnreachable(ctx, n.NoticeNo, due)
			if err != nil {
				counters.errors.Add(1)
				c.logger.ErrorContext(ctx, "failed to re-assert suspension",
					"notice_no", n.NoticeNo,
					"party_id", partyID,
					"error", err,
				)
				continue
			}
			if change.Applied {
				counters.reapplied.Add(1)
			}
		}
	case models.ValidityValid:
		counters.released.Add(int64(len(notices)))
		for _, n := range notices {
			c.logger.InfoContext(ctx, "address verified, notice awaiting revival",
				"notice_no", n.NoticeNo,
				"party_id", partyID,
			)
		}
	}
}

// recordValidity moves the tracked party to the state implied by validity,
// tracking it if it was not tracked yet.
func (c *Controller) recordValidity(ctx context.Context, partyID id.PartyID, validity models.Validity, now time.Time) {
	p, err := c.parties.FindTrackedParty(ctx, partyID)
	if errors.Is(err, sentinel.ErrNotFound) {
		p = &models.TrackedParty{PartyID: partyID, QueryReason: c.cfg.QueryReason, State: models.PartyUnchecked}
	} else if err != nil {
		c.logger.WarnContext(ctx, "failed to load tracked party", "party_id", partyID, "error", err)
		return
	}
	if !p.Transition(validity, now) {
		return
	}
	if err := c.parties.SaveTrackedParty(ctx, p); err != nil {
		c.logger.WarnContext(ctx, "failed to save tracked party", "party_id", partyID, "error", err)
	}
}

// lookup returns the party's validity. Timeouts report Unknown so the caller
// leaves state untouched; other failures are returned.
func (c *Controller) lookup(ctx context.Context, partyID id.PartyID) (models.Validity, error) {
	snap, err := c.validator.Lookup(ctx, partyID, c.cfg.QueryReason)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeTimeout) {
			c.metrics.IncrementValidationLookup("timeout")
			c.logger.WarnContext(ctx, "address verification unavailable", "party_id", partyID)
			return models.ValidityUnknown, nil
		}
		c.metrics.IncrementValidationLookup("error")
		c.logger.ErrorContext(ctx, "address verification lookup failed", "party_id", partyID, "error", err)
		return "", err
	}
	c.metrics.IncrementValidationLookup(strings.ToLower(string(snap.Validity)))
	return snap.Validity, nil
}

func (c *Controller) notify(ctx context.Context, partyID id.PartyID, noticeNos []string) {
	if c.notifier == nil {
		return
	}
	err := c.notifier.Publish(ctx, models.Notification{
		Type:      models.NotificationAddressInvalid,
		PartyID:   partyID,
		NoticeNos: noticeNos,
		CreatedAt: requestcontext.Now(ctx),
	})
	if err != nil {
		c.logger.WarnContext(ctx, "failed to publish notification", "party_id", partyID, "error", err)
	}
}
