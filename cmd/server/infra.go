package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"noticeops/internal/notice/addressvalidation"
	"noticeops/internal/notice/looping"
	"noticeops/internal/notice/mirror"
	"noticeops/internal/notice/notify"
	"noticeops/internal/notice/ports"
	"noticeops/internal/notice/store/memory"
	pgstore "noticeops/internal/notice/store/postgres"
	"noticeops/internal/platform/config"
	"noticeops/internal/platform/kafka"
	"noticeops/internal/platform/postgres"
	"noticeops/internal/platform/redis"
	"noticeops/pkg/platform/circuit"
)

// infra holds the external connections. Each is nil when its URL or brokers are
// not configured and the in-process fallback is used instead.
type infra struct {
	db    *sql.DB
	redis *redis.Client
	kafka *kgo.Client
}

func openInfra(ctx context.Context, cfg config.Config, logger *slog.Logger) (*infra, error) {
	in := &infra{}
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		in.db = db
		if cfg.Database.Migrate {
			if err := pgstore.Migrate(ctx, db); err != nil {
				in.close(logger)
				return nil, err
			}
		}
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		in.close(logger)
		return nil, err
	}
	in.redis = rdb

	kc, err := kafka.NewClient(ctx, cfg.Kafka)
	if err != nil {
		in.close(logger)
		return nil, err
	}
	in.kafka = kc
	if kc != nil {
		if err := notify.EnsureTopic(ctx, kc, cfg.Kafka.NotificationTopic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			in.close(logger)
			return nil, fmt.Errorf("ensure notification topic: %w", err)
		}
	}
	return in, nil
}

// noticeStore is the primary store plus the tracked party table.
type noticeStore interface {
	ports.NoticeStore
	ports.PartyStore
}

func (in *infra) noticeStore(cfg config.Database) noticeStore {
	if in.db == nil {
		return memory.New(memory.WithTxTimeout(cfg.TxTimeout))
	}
	return pgstore.New(in.db, pgstore.WithTxTimeout(cfg.TxTimeout))
}

func (in *infra) mirror(logger *slog.Logger) ports.MirrorStore {
	if in.redis == nil {
		return mirror.NewMemoryStore()
	}
	breaker := circuit.New("mirror")
	return mirror.NewGuarded(mirror.NewRedisStore(in.redis.Client), breaker, logger)
}

func (in *infra) addressValidator() ports.AddressValidator {
	if in.db == nil {
		return addressvalidation.NewMemorySource()
	}
	return addressvalidation.NewPostgresSource(in.db)
}

func (in *infra) notifier(cfg config.Kafka, logger *slog.Logger) ports.Notifier {
	if in.kafka == nil {
		return notify.NewLogNotifier(logger)
	}
	return notify.NewKafkaNotifier(in.kafka, cfg.NotificationTopic, notify.WithLogger(logger))
}

func (in *infra) passLocker() ports.PassLocker {
	if in.redis == nil {
		return nil
	}
	return looping.NewRedisLocker(in.redis.Client)
}

func (in *infra) health(ctx context.Context) error {
	var errs []error
	if in.db != nil {
		if err := in.db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if in.redis != nil {
		if err := in.redis.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (in *infra) close(logger *slog.Logger) {
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			logger.Warn("closing redis", "error", err)
		}
	}
	if in.db != nil {
		if err := in.db.Close(); err != nil {
			logger.Warn("closing postgres", "error", err)
		}
	}
}
