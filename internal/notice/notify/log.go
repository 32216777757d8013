package notify

import (
	"context"
	"log/slog"
	"sync"

	"noticeops/internal/notice/models"
)

// LogNotifier writes notifications to the log. Used when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Publish(ctx context.Context, note models.Notification) error {
	n.logger.InfoContext(ctx, "notification",
		"type", note.Type,
		"party_id", note.PartyID,
		"notice_nos", note.NoticeNos,
	)
	return nil
}

// Recorder keeps published notifications in memory.
type Recorder struct {
	mu    sync.Mutex
	notes []models.Notification
}

func (r *Recorder) Publish(_ context.Context, note models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note)
	return nil
}

// Notifications returns a copy of everything published so far.
func (r *Recorder) Notifications() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Notification(nil), r.notes...)
}
