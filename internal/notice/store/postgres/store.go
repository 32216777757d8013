// Package postgres is the PostgreSQL primary store for notices. Units of work take
// a row lock on the notice with SELECT ... FOR UPDATE so every ledger, reduction
// and refund write for one notice is serialized by the database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"noticeops/internal/notice/models"
	"noticeops/internal/notice/ports"
	id "noticeops/pkg/domain"
	dErrors "noticeops/pkg/domain-errors"
	"noticeops/pkg/platform/sentinel"
	txcontext "noticeops/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// Store persists notices and their child rows in PostgreSQL.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// Option configures the store.
type Option func(*Store)

// WithTxTimeout bounds how long a unit of work may wait for the row lock and run.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// New constructs a PostgreSQL-backed store.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute locks the notice row, runs fn inside the transaction and commits only
// when fn returns nil.
func (s *Store) Execute(ctx context.Context, noticeNo id.NoticeNo, fn func(tx ports.NoticeTx, n *models.Notice) error) (err error) {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "unit of work aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapTxErr(ctx, err, "begin unit of work")
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	query := `SELECT ` + noticeColumns + ` FROM notices WHERE notice_no = $1 FOR UPDATE`
	n, err := scanNotice(sqlTx.QueryRowContext(ctx, query, string(noticeNo)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("notice %s: %w", noticeNo, sentinel.ErrNotFound)
		}
		return wrapTxErr(ctx, err, "lock notice")
	}

	t := &pgTx{tx: sqlTx, noticeNo: noticeNo}
	if err = fn(t, n); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return wrapTxErr(ctx, err, "commit unit of work")
	}
	return nil
}

func wrapTxErr(ctx context.Context, err error, op string) error {
	if ctx.Err() != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, op+": context cancelled")
	}
	return fmt.Errorf("%s: %w", op, err)
}

// CreateNotice inserts a new notice.
func (s *Store) CreateNotice(ctx context.Context, n *models.Notice) error {
	query := `
		INSERT INTO notices (` + noticeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (notice_no) DO NOTHING
	`
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, query, noticeArgs(n)...)
	if err != nil {
		return fmt.Errorf("create notice: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create notice: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("notice %s: %w", n.NoticeNo, sentinel.ErrConflict)
	}
	return nil
}

func (s *Store) FindNotice(ctx context.Context, noticeNo id.NoticeNo) (*models.Notice, error) {
	query := `SELECT ` + noticeColumns + ` FROM notices WHERE notice_no = $1`
	n, err := scanNotice(txcontext.Pick(ctx, s.db).QueryRowContext(ctx, query, string(noticeNo)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("notice %s: %w", noticeNo, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find notice: %w", err)
	}
	return n, nil
}

func (s *Store) ListLedger(ctx context.Context, noticeNo id.NoticeNo) ([]*models.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM suspension_ledger WHERE notice_no = $1 ORDER BY sr_no`
	return queryLedger(ctx, txcontext.Pick(ctx, s.db), "list ledger", query, string(noticeNo))
}

func (s *Store) ListReductions(ctx context.Context, noticeNo id.NoticeNo) ([]*models.ReductionRecord, error) {
	query := `SELECT ` + reductionColumns + ` FROM reductions WHERE notice_no = $1 ORDER BY sr_no`
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, query, string(noticeNo))
	if err != nil {
		return nil, fmt.Errorf("list reductions: %w", err)
	}
	defer rows.Close()

	out := []*models.ReductionRecord{}
	for rows.Next() {
		r, err := scanReduction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reduction: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reductions: %w", err)
	}
	return out, nil
}

func (s *Store) ListRefunds(ctx context.Context, noticeNo id.NoticeNo) ([]*models.RefundRecord, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE notice_no = $1 ORDER BY created_at, id`
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, query, string(noticeNo))
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()

	out := []*models.RefundRecord{}
	for rows.Next() {
		r, err := scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refund: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	return out, nil
}

// RecordPayment inserts the audit row in its own statement. A reused reference
// returns the row that already holds it.
func (s *Store) RecordPayment(ctx context.Context, rec *models.PaymentRecord) (*models.PaymentRecord, bool, error) {
	db := txcontext.Pick(ctx, s.db)
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (reference) DO NOTHING
		RETURNING ` + paymentColumns
	var outcome any
	if rec.Outcome != nil {
		outcome = string(*rec.Outcome)
	}
	stored, err := scanPayment(db.QueryRowContext(ctx, query,
		uuid.UUID(rec.ID), string(rec.NoticeNo), rec.Amount, string(rec.Method),
		rec.Reference, rec.PaidAt, outcome, rec.CreatedAt,
	))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("record payment: %w", err)
	}

	existing, err := findPayment(ctx, db, rec.Reference)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *Store) ListNoticesByParty(ctx context.Context, partyID id.PartyID) ([]*models.Notice, error) {
	query := `SELECT ` + noticeColumns + ` FROM notices WHERE party_id = $1 ORDER BY notice_no`
	return queryNotices(ctx, txcontext.Pick(ctx, s.db), "list notices by party", query, string(partyID))
}

func (s *Store) ListNoticesDueForRecheck(ctx context.Context, reason models.SuspensionReason, cutoff time.Time, limit int) ([]*models.Notice, error) {
	query := `
		SELECT ` + noticeColumns + `
		FROM notices
		WHERE suspension_reason = $1
		  AND due_date_of_revival IS NOT NULL
		  AND due_date_of_revival <= $2
		ORDER BY notice_no
		LIMIT $3
	`
	return queryNotices(ctx, txcontext.Pick(ctx, s.db), "list notices due for recheck", query,
		string(reason), cutoff, limitArg(limit))
}

func (s *Store) ListPendingSync(ctx context.Context, limit int) ([]*models.Notice, error) {
	query := `
		SELECT ` + noticeColumns + `
		FROM notices
		WHERE sync_status = $1
		ORDER BY updated_at, notice_no
		LIMIT $2
	`
	return queryNotices(ctx, txcontext.Pick(ctx, s.db), "list pending sync", query,
		string(models.SyncStatusPending), limitArg(limit))
}

// MarkSynced clears the resync marker only while the row is still at version.
func (s *Store) MarkSynced(ctx context.Context, noticeNo id.NoticeNo, version int64) (bool, error) {
	db := txcontext.Pick(ctx, s.db)
	res, err := db.ExecContext(ctx,
		`UPDATE notices SET sync_status = $1 WHERE notice_no = $2 AND version = $3`,
		string(models.SyncStatusSynced), string(noticeNo), version,
	)
	if err != nil {
		return false, fmt.Errorf("mark synced: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark synced: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM notices WHERE notice_no = $1)`, string(noticeNo)).Scan(&exists); err != nil {
		return false, fmt.Errorf("mark synced: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("notice %s: %w", noticeNo, sentinel.ErrNotFound)
	}
	return false, nil
}

func noticeArgs(n *models.Notice) []any {
	return []any{
		string(n.NoticeNo), string(n.PartyID), n.RuleCode, n.CompositionAmount, n.AmountPayable, n.AmountPaid,
		string(n.SuspensionKind), string(n.SuspensionReason), timeArg(n.SuspensionDate), timeArg(n.DueDateOfRevival),
		string(n.LastProcessingStage), string(n.NextProcessingStage), n.PaymentAllowed, string(n.SyncStatus),
		n.Version, n.LastSequenceNo, n.UpdatedAt,
	}
}

// limitArg maps a non-positive limit to NULL, which PostgreSQL reads as no limit.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func queryNotices(ctx context.Context, db txcontext.Execer, op, query string, args ...any) ([]*models.Notice, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []*models.Notice
	for rows.Next() {
		n, err := scanNotice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notice: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func queryLedger(ctx context.Context, db txcontext.Execer, op, query string, args ...any) ([]*models.LedgerEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := []*models.LedgerEntry{}
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func findPayment(ctx context.Context, db txcontext.Execer, reference string) (*models.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference = $1`
	p, err := scanPayment(db.QueryRowContext(ctx, query, reference))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payment %s: %w", reference, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return p, nil
}
