package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"noticeops/internal/notice/handler"
	"noticeops/internal/notice/looping"
	noticemetrics "noticeops/internal/notice/metrics"
	"noticeops/internal/notice/service"
	"noticeops/internal/platform/config"
	"noticeops/internal/platform/httpserver"
	"noticeops/internal/platform/logger"
	"noticeops/internal/platform/metrics"
	"noticeops/pkg/platform/httputil"
	"noticeops/pkg/platform/middleware/actor"
	"noticeops/pkg/platform/middleware/admin"
	"noticeops/pkg/platform/middleware/request"
	"noticeops/pkg/platform/middleware/requesttime"
)

// main wires the notice services to their stores, the scheduler and the HTTP
// router, then blocks until SIGINT or SIGTERM.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Error("noticeops stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer in.close(log)

	noticeMetrics := noticemetrics.New()
	store := in.noticeStore(cfg.Database)

	svc := service.New(store, in.mirror(log),
		service.WithLogger(log),
		service.WithMetrics(noticeMetrics),
		service.WithMirrorTimeout(cfg.Resync.MirrorTimeout),
	)

	loopingOpts := []looping.Option{
		looping.WithLogger(log),
		looping.WithMetrics(noticeMetrics),
		looping.WithConfig(looping.Config{
			GracePeriodDays: cfg.Suspension.GracePeriodDays,
			LookAheadDays:   cfg.Suspension.LookAheadDays,
			QueryReason:     cfg.Suspension.QueryReason,
			Workers:         cfg.Suspension.Workers,
			LookupTimeout:   cfg.Suspension.LookupTimeout,
			LockTTL:         cfg.Suspension.LockTTL,
			BatchSize:       cfg.Suspension.BatchSize,
		}),
	}
	if locker := in.passLocker(); locker != nil {
		loopingOpts = append(loopingOpts, looping.WithPassLocker(locker))
	}
	ctrl := looping.New(svc, store, store, in.addressValidator(), in.notifier(cfg.Kafka, log), loopingOpts...)

	sched, err := looping.NewScheduler(ctx, ctrl, svc, looping.Schedule{
		PassSpec:      cfg.Suspension.Schedule,
		PassTimeout:   cfg.Suspension.PassTimeout,
		ResyncSpec:    cfg.Resync.Schedule,
		ResyncTimeout: cfg.Resync.Timeout,
		ResyncBatch:   cfg.Resync.BatchSize,
	}, log)
	if err != nil {
		return err
	}

	router := newRouter(cfg, log, in, handler.New(svc, ctrl, log))
	srv := httpserver.New(cfg.Server.Addr, router)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting noticeops", "addr", cfg.Server.Addr,
			"postgres", in.db != nil, "redis", in.redis != nil, "kafka", in.kafka != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	sched.Start()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	sched.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("noticeops stopped cleanly")
	return nil
}

func newRouter(cfg config.Config, log *slog.Logger, in *infra, h *handler.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(request.Logger(log))
	r.Use(metrics.LatencyMiddleware(metrics.New()))
	r.Use(requesttime.InLocation(cfg.Server.Location))
	r.Use(actor.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := in.health(r.Context()); err != nil {
			log.WarnContext(r.Context(), "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	h.Register(r)
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(cfg.Server.AdminToken, log))
		h.RegisterAdmin(r)
	})
	return r
}
