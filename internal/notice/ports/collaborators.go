package ports

//go:generate mockgen -source=collaborators.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"noticeops/internal/notice/models"
	id "noticeops/pkg/domain"
)

// MirrorStore is the secondary replica holding the notice projection.
// It has no transactional link to the primary store.
type MirrorStore interface {
	// Upsert writes the projection unless the replica already holds a newer version.
	Upsert(ctx context.Context, m models.MirrorNotice) error
	Get(ctx context.Context, noticeNo id.NoticeNo) (*models.MirrorNotice, error)
}

// AddressValidator reads address verification snapshots produced by the external
// agency exchange.
type AddressValidator interface {
	Lookup(ctx context.Context, partyID id.PartyID, queryReason string) (models.AddressValidationSnapshot, error)
}

// Notifier hands notifications to the dispatch subsystem. Delivery is not awaited.
type Notifier interface {
	Publish(ctx context.Context, n models.Notification) error
}

// PassLocker guards against overlapping looping passes across instances.
type PassLocker interface {
	// TryLock obtains the named lock for ttl. ok is false when another holder has it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}
