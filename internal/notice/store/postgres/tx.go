package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"noticeops/internal/notice/models"
	id "noticeops/pkg/domain"
	"noticeops/pkg/platform/sentinel"
)

// pgTx runs writes for one locked notice inside the open transaction.
type pgTx struct {
	tx       *sql.Tx
	noticeNo id.NoticeNo
}

func (t *pgTx) SaveNotice(ctx context.Context, n *models.Notice) error {
	if err := t.own(n.NoticeNo); err != nil {
		return err
	}
	query := `
		UPDATE notices SET
			party_id = $2, rule_code = $3, composition_amount = $4, amount_payable = $5, amount_paid = $6,
			suspension_kind = $7, suspension_reason = $8, suspension_date = $9, due_date_of_revival = $10,
			last_processing_stage = $11, next_processing_stage = $12, payment_allowed = $13, sync_status = $14,
			version = $15, last_sequence_no = $16, updated_at = $17
		WHERE notice_no = $1
	`
	if _, err := t.tx.ExecContext(ctx, query, noticeArgs(n)...); err != nil {
		return fmt.Errorf("save notice: %w", err)
	}
	return nil
}

func (t *pgTx) MaxSequenceNumber(ctx context.Context, noticeNo id.NoticeNo) (int, error) {
	if err := t.own(noticeNo); err != nil {
		return 0, err
	}
	query := `
		SELECT GREATEST(
			COALESCE((SELECT MAX(sr_no) FROM suspension_ledger WHERE notice_no = $1), 0),
			COALESCE((SELECT MAX(sr_no) FROM reductions WHERE notice_no = $1), 0)
		)
	`
	var seq int
	if err := t.tx.QueryRowContext(ctx, query, string(noticeNo)).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max sequence number: %w", err)
	}
	return seq, nil
}

func (t *pgTx) LatestLedgerEntry(ctx context.Context, noticeNo id.NoticeNo) (*models.LedgerEntry, error) {
	if err := t.own(noticeNo); err != nil {
		return nil, err
	}
	query := `SELECT ` + ledgerColumns + ` FROM suspension_ledger WHERE notice_no = $1 ORDER BY sr_no DESC LIMIT 1`
	e, err := scanLedgerEntry(t.tx.QueryRowContext(ctx, query, string(noticeNo)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest ledger entry: %w", err)
	}
	return e, nil
}

func (t *pgTx) ActiveLedgerEntries(ctx context.Context, noticeNo id.NoticeNo) ([]*models.LedgerEntry, error) {
	if err := t.own(noticeNo); err != nil {
		return nil, err
	}
	query := `
		SELECT ` + ledgerColumns + `
		FROM suspension_ledger
		WHERE notice_no = $1 AND date_of_revival IS NULL
		ORDER BY sr_no
	`
	return queryLedger(ctx, t.tx, "active ledger entries", query, string(noticeNo))
}

func (t *pgTx) AppendLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	if err := t.own(e.NoticeNo); err != nil {
		return err
	}
	query := `
		INSERT INTO suspension_ledger (` + ledgerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (notice_no, sr_no) DO NOTHING
	`
	res, err := t.tx.ExecContext(ctx, query,
		string(e.NoticeNo), e.SequenceNo, string(e.Kind), string(e.Reason), e.DateOfSuspension,
		timeArg(e.DueDateOfRevival), timeArg(e.DateOfRevival), string(e.Source), e.Actor, e.Remark,
	)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return expectInserted(res, fmt.Sprintf("ledger entry %s/%d", e.NoticeNo, e.SequenceNo))
}

func (t *pgTx) UpdateLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	if err := t.own(e.NoticeNo); err != nil {
		return err
	}
	query := `
		UPDATE suspension_ledger
		SET date_of_suspension = $3, due_date_of_revival = $4, date_of_revival = $5
		WHERE notice_no = $1 AND sr_no = $2
	`
	res, err := t.tx.ExecContext(ctx, query,
		string(e.NoticeNo), e.SequenceNo, e.DateOfSuspension,
		timeArg(e.DueDateOfRevival), timeArg(e.DateOfRevival),
	)
	if err != nil {
		return fmt.Errorf("update ledger entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ledger entry: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("ledger entry %s/%d: %w", e.NoticeNo, e.SequenceNo, sentinel.ErrNotFound)
	}
	return nil
}

func (t *pgTx) AppendReduction(ctx context.Context, r *models.ReductionRecord) error {
	if err := t.own(r.NoticeNo); err != nil {
		return err
	}
	query := `
		INSERT INTO reductions (` + reductionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (notice_no, sr_no) DO NOTHING
	`
	res, err := t.tx.ExecContext(ctx, query,
		string(r.NoticeNo), r.SequenceNo, r.DateOfReduction, r.OriginalAmount, r.AmountReduced,
		r.AmountPayable, r.Reason, r.ExpiryDate, r.Actor,
	)
	if err != nil {
		return fmt.Errorf("append reduction: %w", err)
	}
	return expectInserted(res, fmt.Sprintf("reduction %s/%d", r.NoticeNo, r.SequenceNo))
}

func (t *pgTx) FindPayment(ctx context.Context, reference string) (*models.PaymentRecord, error) {
	return findPayment(ctx, t.tx, reference)
}

func (t *pgTx) SetPaymentOutcome(ctx context.Context, reference string, outcome models.PaymentOutcome) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE payments SET outcome = $1 WHERE reference = $2 AND notice_no = $3`,
		string(outcome), reference, string(t.noticeNo),
	)
	if err != nil {
		return fmt.Errorf("set payment outcome: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set payment outcome: %w", err)
	}
	if affected > 0 {
		return nil
	}
	p, err := t.FindPayment(ctx, reference)
	if err != nil {
		return err
	}
	return fmt.Errorf("payment %s belongs to %s: %w", reference, p.NoticeNo, sentinel.ErrInvalidState)
}

func (t *pgTx) RefundExists(ctx context.Context, reference string, reason models.RefundReason) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM refunds WHERE payment_reference = $1 AND reason = $2)`,
		reference, string(reason),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("refund exists: %w", err)
	}
	return exists, nil
}

func (t *pgTx) AppendRefund(ctx context.Context, r *models.RefundRecord) error {
	if err := t.own(r.NoticeNo); err != nil {
		return err
	}
	query := `
		INSERT INTO refunds (` + refundColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (payment_reference, reason) DO NOTHING
	`
	res, err := t.tx.ExecContext(ctx, query,
		uuid.UUID(r.ID), string(r.NoticeNo), r.PaymentReference, r.Amount, string(r.Reason), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append refund: %w", err)
	}
	return expectInserted(res, fmt.Sprintf("refund %s/%s", r.PaymentReference, r.Reason))
}

func (t *pgTx) own(noticeNo id.NoticeNo) error {
	if noticeNo != t.noticeNo {
		return fmt.Errorf("notice %s outside unit of work for %s: %w", noticeNo, t.noticeNo, sentinel.ErrInvalidState)
	}
	return nil
}

func expectInserted(res sql.Result, what string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", what, sentinel.ErrConflict)
	}
	return nil
}
