// Package domain holds typed identifiers shared across modules.
// Parsing happens once at trust boundaries (HTTP handlers, batch readers);
// everything past the boundary works with the typed values.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "noticeops/pkg/domain-errors"
)

const maxReferenceLength = 20

// NoticeNo identifies an offence notice. Always upper-case alphanumeric.
type NoticeNo string

// PartyID identifies the offender or owner a notice is linked to.
type PartyID string

// PaymentID identifies a persisted payment record.
type PaymentID uuid.UUID

// RefundID identifies a persisted refund record.
type RefundID uuid.UUID

func (n NoticeNo) String() string { return string(n) }
func (n NoticeNo) IsNil() bool    { return n == "" }

func (p PartyID) String() string { return string(p) }
func (p PartyID) IsNil() bool    { return p == "" }

func (id PaymentID) String() string { return uuid.UUID(id).String() }
func (id PaymentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id RefundID) String() string { return uuid.UUID(id).String() }
func (id RefundID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewPaymentID returns a random payment id.
func NewPaymentID() PaymentID { return PaymentID(uuid.New()) }

// NewRefundID returns a random refund id.
func NewRefundID() RefundID { return RefundID(uuid.New()) }

// ParseNoticeNo normalizes and validates a notice number.
func ParseNoticeNo(s string) (NoticeNo, error) {
	v, err := parseReference("notice number", s)
	if err != nil {
		return "", err
	}
	return NoticeNo(v), nil
}

// ParsePartyID normalizes and validates a party id.
func ParsePartyID(s string) (PartyID, error) {
	v, err := parseReference("party id", s)
	if err != nil {
		return "", err
	}
	return PartyID(v), nil
}

// ParsePaymentID parses a payment id from its UUID string form.
func ParsePaymentID(s string) (PaymentID, error) {
	u, err := parseUUID("payment id", s)
	if err != nil {
		return PaymentID{}, err
	}
	return PaymentID(u), nil
}

func parseReference(label, s string) (string, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	if len(v) > maxReferenceLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, label+" is too long")
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return "", dErrors.New(dErrors.CodeInvalidInput, label+" must be alphanumeric")
		}
	}
	return v, nil
}

func parseUUID(label, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}
