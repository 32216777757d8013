package models

import (
	dErrors "noticeops/pkg/domain-errors"
)

// SuspensionKind is the hold state of a notice.
type SuspensionKind string

const (
	SuspensionNone      SuspensionKind = ""
	SuspensionTemporary SuspensionKind = "TS"
	SuspensionPermanent SuspensionKind = "PS"
)

// IsValid checks if the kind is one of the supported values.
func (k SuspensionKind) IsValid() bool {
	switch k {
	case SuspensionNone, SuspensionTemporary, SuspensionPermanent:
		return true
	}
	return false
}

func (k SuspensionKind) String() string {
	if k == SuspensionNone {
		return "NONE"
	}
	return string(k)
}

// ParseSuspensionKind parses a stored kind. Empty and "NONE" both mean no suspension.
func ParseSuspensionKind(s string) (SuspensionKind, error) {
	if s == "NONE" {
		return SuspensionNone, nil
	}
	k := SuspensionKind(s)
	if !k.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid suspension kind: "+s)
	}
	return k, nil
}

// SuspensionReason explains why a notice is held.
type SuspensionReason string

const (
	ReasonNone             SuspensionReason = ""
	ReasonFullPayment      SuspensionReason = "FP"
	ReasonPartialPayment   SuspensionReason = "PRA"
	ReasonReduction        SuspensionReason = "RED"
	ReasonUnreachableParty SuspensionReason = "HST"
	ReasonAdvisoryNotice   SuspensionReason = "ANS"
	ReasonForeignVehicle   SuspensionReason = "FOR"
	ReasonUnclaimedNotice  SuspensionReason = "UNC"
)

// IsValid checks if the reason is one of the supported values.
func (r SuspensionReason) IsValid() bool {
	switch r {
	case ReasonNone, ReasonFullPayment, ReasonPartialPayment, ReasonReduction,
		ReasonUnreachableParty, ReasonAdvisoryNotice, ReasonForeignVehicle, ReasonUnclaimedNotice:
		return true
	}
	return false
}

func (r SuspensionReason) String() string {
	return string(r)
}

// ParseSuspensionReason validates a reason token.
func ParseSuspensionReason(s string) (SuspensionReason, error) {
	r := SuspensionReason(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid suspension reason: "+s)
	}
	return r, nil
}

// Kind returns the suspension kind a reason is applied with.
func (r SuspensionReason) Kind() SuspensionKind {
	switch r {
	case ReasonFullPayment, ReasonPartialPayment, ReasonAdvisoryNotice, ReasonUnclaimedNotice:
		return SuspensionPermanent
	case ReasonReduction, ReasonUnreachableParty, ReasonForeignVehicle:
		return SuspensionTemporary
	case ReasonNone:
		return SuspensionNone
	}
	return SuspensionNone
}

// ReasonFamily groups reasons that share the "at most one active ledger entry" rule.
type ReasonFamily string

const (
	FamilyPayment ReasonFamily = "payment"
)

// Family returns the ledger family of the reason. Payment reasons share a family;
// every other reason is its own family.
func (r SuspensionReason) Family() ReasonFamily {
	switch r {
	case ReasonFullPayment, ReasonPartialPayment:
		return FamilyPayment
	case ReasonNone, ReasonReduction, ReasonUnreachableParty, ReasonAdvisoryNotice,
		ReasonForeignVehicle, ReasonUnclaimedNotice:
		return ReasonFamily(r)
	}
	return ReasonFamily(r)
}

// IsPayment reports whether the reason records a payment.
func (r SuspensionReason) IsPayment() bool {
	return r.Family() == FamilyPayment
}
