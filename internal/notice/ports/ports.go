// Package ports defines the interfaces the notice services consume.
// Stores and external collaborators are injected through these so the
// coordinator and looping controller stay free of driver dependencies.
package ports

import (
	"context"
	"time"

	"noticeops/internal/notice/models"
	id "noticeops/pkg/domain"
)

// NoticeTx is the view of the primary store available inside a per-notice unit of work.
// Every write made through it commits or rolls back together.
type NoticeTx interface {
	// SaveNotice overwrites the locked notice row.
	SaveNotice(ctx context.Context, n *models.Notice) error

	// MaxSequenceNumber returns the highest sr_no used by ledger entries and
	// reduction records of the notice, or 0 when none exist.
	MaxSequenceNumber(ctx context.Context, noticeNo id.NoticeNo) (int, error)

	// LatestLedgerEntry returns the entry with the highest sr_no, or nil.
	LatestLedgerEntry(ctx context.Context, noticeNo id.NoticeNo) (*models.LedgerEntry, error)

	// ActiveLedgerEntries returns entries with no date of revival, ordered by sr_no.
	ActiveLedgerEntries(ctx context.Context, noticeNo id.NoticeNo) ([]*models.LedgerEntry, error)

	// AppendLedgerEntry inserts a new entry. A duplicate key returns sentinel.ErrConflict.
	AppendLedgerEntry(ctx context.Context, e *models.LedgerEntry) error

	// UpdateLedgerEntry rewrites the date fields of an existing entry.
	UpdateLedgerEntry(ctx context.Context, e *models.LedgerEntry) error

	// AppendReduction inserts a reduction record. A duplicate key returns sentinel.ErrConflict.
	AppendReduction(ctx context.Context, r *models.ReductionRecord) error

	// FindPayment returns the payment recorded under reference, or sentinel.ErrNotFound.
	FindPayment(ctx context.Context, reference string) (*models.PaymentRecord, error)

	// SetPaymentOutcome stores the classification of a recorded payment.
	SetPaymentOutcome(ctx context.Context, reference string, outcome models.PaymentOutcome) error

	// RefundExists reports whether a refund for (reference, reason) was already created.
	RefundExists(ctx context.Context, reference string, reason models.RefundReason) (bool, error)

	// AppendRefund inserts a refund record.
	AppendRefund(ctx context.Context, r *models.RefundRecord) error
}

// NoticeStore is the primary store for notices and their owned records.
type NoticeStore interface {
	// Execute runs fn while holding the exclusive per-notice lock. The notice passed
	// to fn is a private copy; writes made through tx commit only if fn returns nil.
	// An unknown notice returns sentinel.ErrNotFound without calling fn.
	Execute(ctx context.Context, noticeNo id.NoticeNo, fn func(tx NoticeTx, n *models.Notice) error) error

	// CreateNotice inserts a new notice. A duplicate notice number returns sentinel.ErrConflict.
	CreateNotice(ctx context.Context, n *models.Notice) error

	FindNotice(ctx context.Context, noticeNo id.NoticeNo) (*models.Notice, error)
	ListLedger(ctx context.Context, noticeNo id.NoticeNo) ([]*models.LedgerEntry, error)
	ListReductions(ctx context.Context, noticeNo id.NoticeNo) ([]*models.ReductionRecord, error)
	ListRefunds(ctx context.Context, noticeNo id.NoticeNo) ([]*models.RefundRecord, error)

	// RecordPayment durably stores the payment audit row in its own commit.
	// When the reference already exists the stored row is returned with created=false.
	RecordPayment(ctx context.Context, rec *models.PaymentRecord) (stored *models.PaymentRecord, created bool, err error)

	// ListNoticesByParty returns every notice linked to the party.
	ListNoticesByParty(ctx context.Context, partyID id.PartyID) ([]*models.Notice, error)

	// ListNoticesDueForRecheck returns notices held by reason whose due date of
	// revival is on or before the cutoff.
	ListNoticesDueForRecheck(ctx context.Context, reason models.SuspensionReason, cutoff time.Time, limit int) ([]*models.Notice, error)

	// ListPendingSync returns notices whose mirror copy is stale, oldest first.
	ListPendingSync(ctx context.Context, limit int) ([]*models.Notice, error)

	// MarkSynced clears the resync marker only if the notice is still at version.
	MarkSynced(ctx context.Context, noticeNo id.NoticeNo, version int64) (bool, error)
}

// PartyStore holds the parties tracked by the looping suspension controller.
type PartyStore interface {
	ListTrackedParties(ctx context.Context, states ...models.PartyState) ([]*models.TrackedParty, error)
	FindTrackedParty(ctx context.Context, partyID id.PartyID) (*models.TrackedParty, error)
	SaveTrackedParty(ctx context.Context, p *models.TrackedParty) error
}
