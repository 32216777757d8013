package mirror

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"noticeops/internal/notice/models"
	id "noticeops/pkg/domain"
	"noticeops/pkg/platform/sentinel"
)

const noticeKeyPrefix = "mirror:notice:"

// upsertScript writes the projection only when the incoming version is newer.
// Returns 1 when written, 0 when the stored version is the same or newer.
var upsertScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1],
	'version', ARGV[1],
	'suspension_kind', ARGV[2],
	'suspension_reason', ARGV[3],
	'suspension_date', ARGV[4],
	'amount_payable', ARGV[5])
return 1
`)

// RedisStore keeps each notice projection in a hash keyed by notice number.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Upsert(ctx context.Context, m models.MirrorNotice) error {
	date := ""
	if m.SuspensionDate != nil {
		date = m.SuspensionDate.UTC().Format(time.RFC3339Nano)
	}
	err := upsertScript.Run(ctx, s.client, []string{noticeKey(m.NoticeNo)},
		m.Version,
		string(m.SuspensionKind),
		string(m.SuspensionReason),
		date,
		m.AmountPayable.String(),
	).Err()
	if err != nil {
		return fmt.Errorf("mirror upsert %s: %w", m.NoticeNo, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, noticeNo id.NoticeNo) (*models.MirrorNotice, error) {
	fields, err := s.client.HGetAll(ctx, noticeKey(noticeNo)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("mirror get %s: %w", noticeNo, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("mirror notice %s: %w", noticeNo, sentinel.ErrNotFound)
	}

	m := &models.MirrorNotice{
		NoticeNo:         noticeNo,
		SuspensionKind:   models.SuspensionKind(fields["suspension_kind"]),
		SuspensionReason: models.SuspensionReason(fields["suspension_reason"]),
	}
	if m.Version, err = strconv.ParseInt(fields["version"], 10, 64); err != nil {
		return nil, fmt.Errorf("mirror notice %s version: %w", noticeNo, err)
	}
	if m.AmountPayable, err = decimal.NewFromString(fields["amount_payable"]); err != nil {
		return nil, fmt.Errorf("mirror notice %s amount: %w", noticeNo, err)
	}
	if raw := fields["suspension_date"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("mirror notice %s date: %w", noticeNo, err)
		}
		m.SuspensionDate = &t
	}
	return m, nil
}

func noticeKey(noticeNo id.NoticeNo) string {
	return noticeKeyPrefix + noticeNo.String()
}
