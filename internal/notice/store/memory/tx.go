package memory

import (
	"context"
	"fmt"

	"noticeops/internal/notice/models"
	id "noticeops/pkg/domain"
	"noticeops/pkg/platform/sentinel"
)

// memTx stages every write for one notice until Execute commits it.
type memTx struct {
	store    *Store
	noticeNo id.NoticeNo

	notice     *models.Notice
	ledger     []*models.LedgerEntry
	reductions []*models.ReductionRecord
	refunds    []*models.RefundRecord
	outcomes   map[string]models.PaymentOutcome
}

func (t *memTx) SaveNotice(_ context.Context, n *models.Notice) error {
	if n.NoticeNo != t.noticeNo {
		return fmt.Errorf("save notice %s outside unit of work for %s: %w", n.NoticeNo, t.noticeNo, sentinel.ErrInvalidState)
	}
	t.notice = n.Clone()
	return nil
}

func (t *memTx) MaxSequenceNumber(_ context.Context, noticeNo id.NoticeNo) (int, error) {
	if err := t.own(noticeNo); err != nil {
		return 0, err
	}
	maxSeq := 0
	for _, e := range t.ledger {
		maxSeq = max(maxSeq, e.SequenceNo)
	}
	for _, r := range t.reductions {
		maxSeq = max(maxSeq, r.SequenceNo)
	}
	return maxSeq, nil
}

func (t *memTx) LatestLedgerEntry(_ context.Context, noticeNo id.NoticeNo) (*models.LedgerEntry, error) {
	if err := t.own(noticeNo); err != nil {
		return nil, err
	}
	var latest *models.LedgerEntry
	for _, e := range t.ledger {
		if latest == nil || e.SequenceNo > latest.SequenceNo {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	return latest.Clone(), nil
}

func (t *memTx) ActiveLedgerEntries(_ context.Context, noticeNo id.NoticeNo) ([]*models.LedgerEntry, error) {
	if err := t.own(noticeNo); err != nil {
		return nil, err
	}
	var out []*models.LedgerEntry
	for _, e := range t.ledger {
		if e.IsActive() {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (t *memTx) AppendLedgerEntry(_ context.Context, e *models.LedgerEntry) error {
	if err := t.own(e.NoticeNo); err != nil {
		return err
	}
	for _, existing := range t.ledger {
		if existing.SequenceNo == e.SequenceNo {
			return fmt.Errorf("ledger entry %s/%d: %w", e.NoticeNo, e.SequenceNo, sentinel.ErrConflict)
		}
	}
	t.ledger = append(t.ledger, e.Clone())
	return nil
}

func (t *memTx) UpdateLedgerEntry(_ context.Context, e *models.LedgerEntry) error {
	if err := t.own(e.NoticeNo); err != nil {
		return err
	}
	for i, existing := range t.ledger {
		if existing.SequenceNo == e.SequenceNo {
			t.ledger[i] = e.Clone()
			return nil
		}
	}
	return fmt.Errorf("ledger entry %s/%d: %w", e.NoticeNo, e.SequenceNo, sentinel.ErrNotFound)
}

func (t *memTx) AppendReduction(_ context.Context, r *models.ReductionRecord) error {
	if err := t.own(r.NoticeNo); err != nil {
		return err
	}
	for _, existing := range t.reductions {
		if existing.SequenceNo == r.SequenceNo {
			return fmt.Errorf("reduction %s/%d: %w", r.NoticeNo, r.SequenceNo, sentinel.ErrConflict)
		}
	}
	c := *r
	t.reductions = append(t.reductions, &c)
	return nil
}

func (t *memTx) FindPayment(_ context.Context, reference string) (*models.PaymentRecord, error) {
	t.store.mu.RLock()
	p, ok := t.store.payments[reference]
	var out *models.PaymentRecord
	if ok {
		out = clonePayment(p)
	}
	t.store.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", reference, sentinel.ErrNotFound)
	}
	if staged, ok := t.outcomes[reference]; ok {
		out.Outcome = &staged
	}
	return out, nil
}

func (t *memTx) SetPaymentOutcome(ctx context.Context, reference string, outcome models.PaymentOutcome) error {
	p, err := t.FindPayment(ctx, reference)
	if err != nil {
		return err
	}
	if p.NoticeNo != t.noticeNo {
		return fmt.Errorf("payment %s belongs to %s: %w", reference, p.NoticeNo, sentinel.ErrInvalidState)
	}
	t.outcomes[reference] = outcome
	return nil
}

func (t *memTx) RefundExists(_ context.Context, reference string, reason models.RefundReason) (bool, error) {
	for _, r := range t.refunds {
		if r.PaymentReference == reference && r.Reason == reason {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) AppendRefund(ctx context.Context, r *models.RefundRecord) error {
	if err := t.own(r.NoticeNo); err != nil {
		return err
	}
	exists, err := t.RefundExists(ctx, r.PaymentReference, r.Reason)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("refund %s/%s: %w", r.PaymentReference, r.Reason, sentinel.ErrConflict)
	}
	c := *r
	t.refunds = append(t.refunds, &c)
	return nil
}

func (t *memTx) own(noticeNo id.NoticeNo) error {
	if noticeNo != t.noticeNo {
		return fmt.Errorf("notice %s outside unit of work for %s: %w", noticeNo, t.noticeNo, sentinel.ErrInvalidState)
	}
	return nil
}
