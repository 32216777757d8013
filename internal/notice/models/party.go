package models

import (
	"time"

	id "noticeops/pkg/domain"
)

// Validity is the result of an external address verification.
type Validity string

const (
	ValidityValid   Validity = "VALID"
	ValidityInvalid Validity = "INVALID"
	ValidityUnknown Validity = "UNKNOWN"
)

// AddressValidationSnapshot is an external assertion about a party's address.
type AddressValidationSnapshot struct {
	PartyID     id.PartyID `json:"party_id"`
	QueryReason string     `json:"query_reason"`
	Validity    Validity   `json:"validity"`
	CheckedAt   time.Time  `json:"checked_at"`
}

// PartyState tracks where a party is in the looping suspension lifecycle:
// Unchecked → Invalid (suspended) → Valid (released). Invalid may re-enter itself.
type PartyState string

const (
	PartyUnchecked PartyState = "UNCHECKED"
	PartyInvalid   PartyState = "INVALID"
	PartyValid     PartyState = "VALID"
)

// TrackedParty is a party monitored by the looping suspension controller.
type TrackedParty struct {
	PartyID       id.PartyID `json:"party_id"`
	QueryReason   string     `json:"query_reason"`
	State         PartyState `json:"state"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
}

// Transition moves the party to the state implied by a validity result.
// Unknown results leave the state unchanged and report false.
func (p *TrackedParty) Transition(v Validity, at time.Time) (changed bool) {
	var next PartyState
	switch v {
	case ValidityInvalid:
		next = PartyInvalid
	case ValidityValid:
		next = PartyValid
	case ValidityUnknown:
		return false
	default:
		return false
	}
	p.LastCheckedAt = &at
	changed = p.State != next
	p.State = next
	return changed
}

// Notification is a fire-and-forget message for the dispatch subsystem.
type Notification struct {
	Type      string     `json:"type"`
	PartyID   id.PartyID `json:"party_id"`
	NoticeNos []string   `json:"notice_nos"`
	CreatedAt time.Time  `json:"created_at"`
}

// NotificationAddressInvalid is sent when a party newly fails address verification.
const NotificationAddressInvalid = "ADDRESS_INVALID"
