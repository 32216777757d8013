package addressvalidation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"noticeops/internal/notice/models"
	"noticeops/internal/notice/ports/mocks"
	dErrors "noticeops/pkg/domain-errors"
)

func TestMemorySource(t *testing.T) {
	ctx := context.Background()
	src := NewMemorySource()
	checked := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	src.Put("S1234567D", "HST", models.ValidityInvalid, checked)

	snap, err := src.Lookup(ctx, "S1234567D", "HST")
	require.NoError(t, err)
	assert.Equal(t, models.ValidityInvalid, snap.Validity)
	assert.True(t, snap.CheckedAt.Equal(checked))

	snap, err = src.Lookup(ctx, "S1234567D", "OTHER")
	require.NoError(t, err)
	assert.Equal(t, models.ValidityUnknown, snap.Validity, "missing snapshot is unknown")
	assert.Equal(t, 2, src.Calls())
}

func TestBounded_TimesOut(t *testing.T) {
	src := NewMemorySource()
	src.Put("P1", "HST", models.ValidityValid, time.Now())
	src.SetDelay(time.Second)

	b := NewBounded(src, 10*time.Millisecond)
	_, err := b.Lookup(context.Background(), "P1", "HST")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLookupTimeout)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestBounded_PassesThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mocks.NewMockAddressValidator(ctrl)
	boom := errors.New("agency feed offline")

	next.EXPECT().Lookup(gomock.Any(), gomock.Any(), "HST").
		Return(models.AddressValidationSnapshot{Validity: models.ValidityValid}, nil)
	next.EXPECT().Lookup(gomock.Any(), gomock.Any(), "HST").
		Return(models.AddressValidationSnapshot{}, boom)

	b := NewBounded(next, time.Second)
	snap, err := b.Lookup(context.Background(), "P1", "HST")
	require.NoError(t, err)
	assert.Equal(t, models.ValidityValid, snap.Validity)

	_, err = b.Lookup(context.Background(), "P1", "HST")
	assert.ErrorIs(t, err, boom)
}
