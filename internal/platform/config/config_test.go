package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func lookup(values map[string]string) func(string) string {
	return func(k string) string { return values[k] }
}

func TestFromLookupDefaults(t *testing.T) {
	cfg := fromLookup(lookup(nil))
	assert.Equal(t, DefaultConfig().Server.Addr, cfg.Server.Addr)
	assert.Equal(t, 21, cfg.Suspension.GracePeriodDays)
	assert.Empty(t, cfg.Database.URL)
	assert.Nil(t, cfg.Kafka.Brokers)
	assert.Equal(t, time.UTC, cfg.Server.Location)
}

func TestFromLookupOverrides(t *testing.T) {
	cfg := fromLookup(lookup(map[string]string{
		"NOTICEOPS_ADDR":               ":9090",
		"NOTICEOPS_TIMEZONE":           "Asia/Singapore",
		"DATABASE_URL":                 "postgres://localhost/noticeops",
		"DATABASE_MIGRATE":             "true",
		"KAFKA_BROKERS":                "a:9092, b:9092,",
		"SUSPENSION_GRACE_PERIOD_DAYS": "14",
		"SUSPENSION_LOOKUP_TIMEOUT":    "750ms",
		"RESYNC_BATCH_SIZE":            "not-a-number",
	}))

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "Asia/Singapore", cfg.Server.Location.String())
	assert.True(t, cfg.Database.Migrate)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 14, cfg.Suspension.GracePeriodDays)
	assert.Equal(t, 750*time.Millisecond, cfg.Suspension.LookupTimeout)
	assert.Equal(t, 500, cfg.Resync.BatchSize, "malformed values keep the default")
}
