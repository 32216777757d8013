package addressvalidation

import (
	"context"
	"errors"
	"time"

	"noticeops/internal/notice/models"
	"noticeops/internal/notice/ports"
	id "noticeops/pkg/domain"
	dErrors "noticeops/pkg/domain-errors"
)

// ErrLookupTimeout marks a lookup that did not answer within its budget.
var ErrLookupTimeout = dErrors.New(dErrors.CodeTimeout, "address validation lookup timed out")

// Bounded applies a per-lookup timeout to another validator.
type Bounded struct {
	next    ports.AddressValidator
	timeout time.Duration
}

// NewBounded wraps next. A non-positive timeout disables the bound.
func NewBounded(next ports.AddressValidator, timeout time.Duration) *Bounded {
	return &Bounded{next: next, timeout: timeout}
}

func (b *Bounded) Lookup(ctx context.Context, partyID id.PartyID, queryReason string) (models.AddressValidationSnapshot, error) {
	if b.timeout <= 0 {
		return b.next.Lookup(ctx, partyID, queryReason)
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	snap, err := b.next.Lookup(ctx, partyID, queryReason)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.AddressValidationSnapshot{}, ErrLookupTimeout
		}
		return models.AddressValidationSnapshot{}, err
	}
	return snap, nil
}
