package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	liststr "noticeops/pkg/platform/strings"
)

// Config is the full service configuration.
type Config struct {
	Server     Server
	Log        Log
	Database   Database
	Redis      RedisConfig
	Kafka      Kafka
	Suspension Suspension
	Resync     Resync
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	AdminToken      string
	ShutdownTimeout time.Duration
	// Location is the business time zone used for "today" in date arithmetic.
	Location *time.Location
}

// Log selects the slog handler.
type Log struct {
	Level  string
	Format string
}

// Database configures the PostgreSQL primary store. An empty URL selects the
// in-memory store.
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	TxTimeout       time.Duration
	Migrate         bool
}

// RedisConfig configures the mirror store and the pass lock. An empty URL
// selects the in-memory mirror and disables the cluster lock.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the notification publisher. No brokers selects the log notifier.
type Kafka struct {
	Brokers           []string
	NotificationTopic string
	Partitions        int32
	ReplicationFactor int16
}

// Suspension configures the looping suspension controller.
type Suspension struct {
	GracePeriodDays int
	LookAheadDays   int
	QueryReason     string
	Workers         int
	LookupTimeout   time.Duration
	LockTTL         time.Duration
	BatchSize       int
	Schedule        string
	PassTimeout     time.Duration
}

// Resync configures the mirror resync sweep.
type Resync struct {
	Schedule      string
	BatchSize     int
	Timeout       time.Duration
	MirrorTimeout time.Duration
}

// DefaultConfig returns the settings used when no environment overrides them.
func DefaultConfig() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
			Location:        time.UTC,
		},
		Log: Log{Level: "info", Format: "json"},
		Database: Database{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			TxTimeout:       5 * time.Second,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{
			NotificationTopic: "noticeops.notifications",
			Partitions:        3,
			ReplicationFactor: 1,
		},
		Suspension: Suspension{
			GracePeriodDays: 21,
			LookAheadDays:   0,
			QueryReason:     "HST",
			Workers:         8,
			LookupTimeout:   5 * time.Second,
			LockTTL:         10 * time.Minute,
			BatchSize:       1000,
			Schedule:        "0 0 2 * * *",
			PassTimeout:     30 * time.Minute,
		},
		Resync: Resync{
			Schedule:      "0 */5 * * * *",
			BatchSize:     500,
			Timeout:       2 * time.Minute,
			MirrorTimeout: 2 * time.Second,
		},
	}
}

// FromEnv builds the configuration from environment variables, reading a .env
// file first when one exists.
func FromEnv() Config {
	_ = godotenv.Load()
	return fromLookup(os.Getenv)
}

func fromLookup(get func(string) string) Config {
	cfg := DefaultConfig()
	e := env{get: get}

	cfg.Server.Addr = e.str("NOTICEOPS_ADDR", cfg.Server.Addr)
	cfg.Server.AdminToken = e.str("NOTICEOPS_ADMIN_TOKEN", "")
	cfg.Server.ShutdownTimeout = e.duration("NOTICEOPS_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	if tz := e.str("NOTICEOPS_TIMEZONE", ""); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			cfg.Server.Location = loc
		}
	}

	cfg.Log.Level = e.str("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = e.str("LOG_FORMAT", cfg.Log.Format)

	cfg.Database.URL = e.str("DATABASE_URL", "")
	cfg.Database.MaxOpenConns = e.int("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = e.int("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnMaxLifetime = e.duration("DATABASE_CONN_MAX_LIFETIME", cfg.Database.ConnMaxLifetime)
	cfg.Database.TxTimeout = e.duration("DATABASE_TX_TIMEOUT", cfg.Database.TxTimeout)
	cfg.Database.Migrate = e.bool("DATABASE_MIGRATE", cfg.Database.Migrate)

	cfg.Redis.URL = e.str("REDIS_URL", "")
	cfg.Redis.PoolSize = e.int("REDIS_POOL_SIZE", cfg.Redis.PoolSize)
	cfg.Redis.MinIdleConns = e.int("REDIS_MIN_IDLE_CONNS", cfg.Redis.MinIdleConns)
	cfg.Redis.DialTimeout = e.duration("REDIS_DIAL_TIMEOUT", cfg.Redis.DialTimeout)
	cfg.Redis.ReadTimeout = e.duration("REDIS_READ_TIMEOUT", cfg.Redis.ReadTimeout)
	cfg.Redis.WriteTimeout = e.duration("REDIS_WRITE_TIMEOUT", cfg.Redis.WriteTimeout)

	cfg.Kafka.Brokers = e.list("KAFKA_BROKERS")
	cfg.Kafka.NotificationTopic = e.str("KAFKA_NOTIFICATION_TOPIC", cfg.Kafka.NotificationTopic)
	cfg.Kafka.Partitions = int32(e.int("KAFKA_TOPIC_PARTITIONS", int(cfg.Kafka.Partitions)))
	cfg.Kafka.ReplicationFactor = int16(e.int("KAFKA_TOPIC_REPLICATION", int(cfg.Kafka.ReplicationFactor)))

	cfg.Suspension.GracePeriodDays = e.int("SUSPENSION_GRACE_PERIOD_DAYS", cfg.Suspension.GracePeriodDays)
	cfg.Suspension.LookAheadDays = e.int("SUSPENSION_LOOKAHEAD_DAYS", cfg.Suspension.LookAheadDays)
	cfg.Suspension.QueryReason = e.str("SUSPENSION_QUERY_REASON", cfg.Suspension.QueryReason)
	cfg.Suspension.Workers = e.int("SUSPENSION_WORKERS", cfg.Suspension.Workers)
	cfg.Suspension.LookupTimeout = e.duration("SUSPENSION_LOOKUP_TIMEOUT", cfg.Suspension.LookupTimeout)
	cfg.Suspension.LockTTL = e.duration("SUSPENSION_LOCK_TTL", cfg.Suspension.LockTTL)
	cfg.Suspension.BatchSize = e.int("SUSPENSION_BATCH_SIZE", cfg.Suspension.BatchSize)
	cfg.Suspension.Schedule = e.str("SUSPENSION_SCHEDULE", cfg.Suspension.Schedule)
	cfg.Suspension.PassTimeout = e.duration("SUSPENSION_PASS_TIMEOUT", cfg.Suspension.PassTimeout)

	cfg.Resync.Schedule = e.str("RESYNC_SCHEDULE", cfg.Resync.Schedule)
	cfg.Resync.BatchSize = e.int("RESYNC_BATCH_SIZE", cfg.Resync.BatchSize)
	cfg.Resync.Timeout = e.duration("RESYNC_TIMEOUT", cfg.Resync.Timeout)
	cfg.Resync.MirrorTimeout = e.duration("MIRROR_WRITE_TIMEOUT", cfg.Resync.MirrorTimeout)

	return cfg
}

// env reads typed values, falling back to the default on absent or malformed input.
type env struct {
	get func(string) string
}

func (e env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e env) int(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(e.get(key)))
	if err != nil {
		return def
	}
	return v
}

func (e env) bool(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(e.get(key)))
	if err != nil {
		return def
	}
	return v
}

func (e env) duration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(e.get(key)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func (e env) list(key string) []string {
	return liststr.SplitList(e.get(key))
}
