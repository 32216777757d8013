// Package ledger maintains the per-notice suspension history and the sequence
// counter shared by ledger entries and reduction records.
//
// Every method takes the NoticeTx of an open per-notice unit of work, so sequence
// numbers are drawn and rows written while the notice lock is held.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"noticeops/internal/notice/models"
	"noticeops/internal/notice/ports"
	id "noticeops/pkg/domain"
	"noticeops/pkg/platform/sentinel"
)

// ErrNoActiveEntry is returned when a reassert or revival finds nothing to act on.
var ErrNoActiveEntry = fmt.Errorf("no active ledger entry: %w", sentinel.ErrNotFound)

// Ledger operates on ledger rows through a NoticeTx.
type Ledger struct{}

// New returns a Ledger.
func New() *Ledger {
	return &Ledger{}
}

// NextSequenceNumber returns max(existing sr_no) + 1 across ledger entries and
// reduction records, starting at 1.
func (l *Ledger) NextSequenceNumber(ctx context.Context, tx ports.NoticeTx, noticeNo id.NoticeNo) (int, error) {
	current, err := tx.MaxSequenceNumber(ctx, noticeNo)
	if err != nil {
		return 0, fmt.Errorf("read max sequence number: %w", err)
	}
	return current + 1, nil
}

// IsCurrentlyUnderReduction is the "reduction already applied" guard, read from the
// notice's denormalized suspension fields.
func IsCurrentlyUnderReduction(n *models.Notice) bool {
	return n.IsUnderReduction()
}

// Append revives any active entry of the same reason family at the new entry's
// date of suspension, then inserts the entry.
func (l *Ledger) Append(ctx context.Context, tx ports.NoticeTx, entry *models.LedgerEntry) error {
	active, err := tx.ActiveLedgerEntries(ctx, entry.NoticeNo)
	if err != nil {
		return fmt.Errorf("list active ledger entries: %w", err)
	}
	family := entry.Reason.Family()
	for _, e := range active {
		if e.Reason.Family() != family {
			continue
		}
		e.Revive(entry.DateOfSuspension)
		if err := tx.UpdateLedgerEntry(ctx, e); err != nil {
			return fmt.Errorf("revive superseded ledger entry %d: %w", e.SequenceNo, err)
		}
	}
	if err := tx.AppendLedgerEntry(ctx, entry); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// ReviveTemporary lifts every active Temporary entry at the given time. Called when
// a new suspension replaces the notice's current one. Returns the number revived.
func (l *Ledger) ReviveTemporary(ctx context.Context, tx ports.NoticeTx, noticeNo id.NoticeNo, at time.Time) (int, error) {
	active, err := tx.ActiveLedgerEntries(ctx, noticeNo)
	if err != nil {
		return 0, fmt.Errorf("list active ledger entries: %w", err)
	}
	revived := 0
	for _, e := range active {
		if e.Kind != models.SuspensionTemporary {
			continue
		}
		e.Revive(at)
		if err := tx.UpdateLedgerEntry(ctx, e); err != nil {
			return revived, fmt.Errorf("revive ledger entry %d: %w", e.SequenceNo, err)
		}
		revived++
	}
	return revived, nil
}

// Active returns the active entry for the reason's family, or ErrNoActiveEntry.
func (l *Ledger) Active(ctx context.Context, tx ports.NoticeTx, noticeNo id.NoticeNo, reason models.SuspensionReason) (*models.LedgerEntry, error) {
	active, err := tx.ActiveLedgerEntries(ctx, noticeNo)
	if err != nil {
		return nil, fmt.Errorf("list active ledger entries: %w", err)
	}
	var found *models.LedgerEntry
	for _, e := range active {
		if e.Reason.Family() == reason.Family() {
			if found == nil || e.SequenceNo > found.SequenceNo {
				found = e
			}
		}
	}
	if found == nil {
		return nil, ErrNoActiveEntry
	}
	return found, nil
}

// Reassert moves the date fields of the current active entry forward in place.
// No row is appended.
func (l *Ledger) Reassert(ctx context.Context, tx ports.NoticeTx, noticeNo id.NoticeNo, reason models.SuspensionReason, suspendedAt time.Time, due *time.Time) (*models.LedgerEntry, error) {
	e, err := l.Active(ctx, tx, noticeNo, reason)
	if err != nil {
		return nil, err
	}
	e.DateOfSuspension = suspendedAt
	e.DueDateOfRevival = due
	if err := tx.UpdateLedgerEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("reassert ledger entry %d: %w", e.SequenceNo, err)
	}
	return e, nil
}

// Revive sets the date of revival on the active entry for reason.
func (l *Ledger) Revive(ctx context.Context, tx ports.NoticeTx, noticeNo id.NoticeNo, reason models.SuspensionReason, at time.Time) (*models.LedgerEntry, error) {
	e, err := l.Active(ctx, tx, noticeNo, reason)
	if err != nil {
		return nil, err
	}
	e.Revive(at)
	if err := tx.UpdateLedgerEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("revive ledger entry %d: %w", e.SequenceNo, err)
	}
	return e, nil
}

// Latest returns the most recent entry, or nil for a notice never suspended.
func (l *Ledger) Latest(ctx context.Context, tx ports.NoticeTx, noticeNo id.NoticeNo) (*models.LedgerEntry, error) {
	e, err := tx.LatestLedgerEntry(ctx, noticeNo)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("read latest ledger entry: %w", err)
	}
	return e, nil
}

// CurrentSuspension derives the in-force suspension from a notice's history:
// the active entry with the highest sequence number, or nil.
func CurrentSuspension(entries []*models.LedgerEntry) *models.LedgerEntry {
	var current *models.LedgerEntry
	for _, e := range entries {
		if !e.IsActive() {
			continue
		}
		if current == nil || e.SequenceNo > current.SequenceNo {
			current = e
		}
	}
	return current
}
