package postgres

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"noticeops/internal/notice/models"
	id "noticeops/pkg/domain"
)

const noticeColumns = `notice_no, party_id, rule_code, composition_amount, amount_payable, amount_paid,
	suspension_kind, suspension_reason, suspension_date, due_date_of_revival,
	last_processing_stage, next_processing_stage, payment_allowed, sync_status,
	version, last_sequence_no, updated_at`

const ledgerColumns = `notice_no, sr_no, suspension_kind, reason, date_of_suspension,
	due_date_of_revival, date_of_revival, source, actor, remark`

const reductionColumns = `notice_no, sr_no, date_of_reduction, original_amount, amount_reduced,
	amount_payable, reason, expiry_date, actor`

const paymentColumns = `id, notice_no, amount, method, reference, paid_at, outcome, created_at`

const refundColumns = `id, notice_no, payment_reference, amount, reason, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanNotice(row scanner) (*models.Notice, error) {
	var (
		n              models.Notice
		noticeNo       string
		partyID        string
		suspensionDate sql.NullTime
		due            sql.NullTime
	)
	err := row.Scan(
		&noticeNo, &partyID, &n.RuleCode, &n.CompositionAmount, &n.AmountPayable, &n.AmountPaid,
		&n.SuspensionKind, &n.SuspensionReason, &suspensionDate, &due,
		&n.LastProcessingStage, &n.NextProcessingStage, &n.PaymentAllowed, &n.SyncStatus,
		&n.Version, &n.LastSequenceNo, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.NoticeNo = id.NoticeNo(noticeNo)
	n.PartyID = id.PartyID(partyID)
	n.SuspensionDate = nullTime(suspensionDate)
	n.DueDateOfRevival = nullTime(due)
	return &n, nil
}

func scanLedgerEntry(row scanner) (*models.LedgerEntry, error) {
	var (
		e        models.LedgerEntry
		noticeNo string
		due      sql.NullTime
		revived  sql.NullTime
	)
	err := row.Scan(&noticeNo, &e.SequenceNo, &e.Kind, &e.Reason, &e.DateOfSuspension,
		&due, &revived, &e.Source, &e.Actor, &e.Remark)
	if err != nil {
		return nil, err
	}
	e.NoticeNo = id.NoticeNo(noticeNo)
	e.DueDateOfRevival = nullTime(due)
	e.DateOfRevival = nullTime(revived)
	return &e, nil
}

func scanReduction(row scanner) (*models.ReductionRecord, error) {
	var (
		r        models.ReductionRecord
		noticeNo string
	)
	err := row.Scan(&noticeNo, &r.SequenceNo, &r.DateOfReduction, &r.OriginalAmount, &r.AmountReduced,
		&r.AmountPayable, &r.Reason, &r.ExpiryDate, &r.Actor)
	if err != nil {
		return nil, err
	}
	r.NoticeNo = id.NoticeNo(noticeNo)
	return &r, nil
}

func scanPayment(row scanner) (*models.PaymentRecord, error) {
	var (
		p        models.PaymentRecord
		rawID    uuid.UUID
		noticeNo string
		outcome  sql.NullString
	)
	err := row.Scan(&rawID, &noticeNo, &p.Amount, &p.Method, &p.Reference, &p.PaidAt, &outcome, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.ID = id.PaymentID(rawID)
	p.NoticeNo = id.NoticeNo(noticeNo)
	if outcome.Valid {
		o := models.PaymentOutcome(outcome.String)
		p.Outcome = &o
	}
	return &p, nil
}

func scanRefund(row scanner) (*models.RefundRecord, error) {
	var (
		r        models.RefundRecord
		rawID    uuid.UUID
		noticeNo string
	)
	err := row.Scan(&rawID, &noticeNo, &r.PaymentReference, &r.Amount, &r.Reason, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.ID = id.RefundID(rawID)
	r.NoticeNo = id.NoticeNo(noticeNo)
	return &r, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
