package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noticeops/internal/notice/models"
)

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Publish(context.Background(), models.Notification{Type: models.NotificationAddressInvalid, PartyID: "P1"}))
	require.NoError(t, NewLogNotifier(nil).Publish(context.Background(), models.Notification{Type: "X"}))

	got := r.Notifications()
	require.Len(t, got, 1)
	assert.Equal(t, "P1", got[0].PartyID.String())
}
