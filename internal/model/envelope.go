// Package model defines data structures for the ACP protocol and the hotel
// PMS domain payloads that travel inside it.
package model

import (
	"encoding/json"
	"time"
)

// ProtocolVersion is the ACP revision this gateway speaks.
// Envelope validation rejects anything else before any other processing.
const ProtocolVersion = "acp.2025.v1"

// IntentType is the declared purpose of a request.
type IntentType string

const (
	IntentDiscover  IntentType = "discover"
	IntentNegotiate IntentType = "negotiate"
	IntentExecute   IntentType = "execute"
)

// Valid reports whether t is one of the three supported intents.
func (t IntentType) Valid() bool {
	switch t {
	case IntentDiscover, IntentNegotiate, IntentExecute:
		return true
	}
	return false
}

// RequestEnvelope is the ACP wire envelope. Immutable once accepted.
//
// request_id is the client-supplied idempotency key: the (agent_id,
// request_id) pair identifies at most one transaction, ever. The signature
// covers the canonical envelope bytes (see CanonicalBytes).
type RequestEnvelope struct {
	ProtocolVersion string          `json:"protocol_version"`
	RequestID       string          `json:"request_id"`
	AgentID         string          `json:"agent_id"`
	AgentSignature  string          `json:"agent_signature"`
	TargetDomain    string          `json:"target_domain"`
	TargetEntityID  string          `json:"target_entity_id"`
	IntentType      IntentType      `json:"intent_type"`
	IntentPayload   json.RawMessage `json:"intent_payload,omitempty"`
	Constraints     *Constraints    `json:"constraints,omitempty"`
	AgentContext    *AgentContext   `json:"agent_context,omitempty"`
}

// CanonicalBytes returns the envelope bytes the signature covers: the JSON
// encoding of the envelope with agent_signature emptied. Field order is the
// struct declaration order, which encoding/json preserves, so both sides
// produce identical bytes without a separate canonicalization pass.
func (e *RequestEnvelope) CanonicalBytes() ([]byte, error) {
	unsigned := *e
	unsigned.AgentSignature = ""
	return json.Marshal(&unsigned)
}

// Constraints bound what the agent is willing to accept.
// BudgetMax is in minor currency units (cents).
type Constraints struct {
	BudgetMax int64  `json:"budget_max,omitempty"`
	Currency  string `json:"currency,omitempty"`
}

// AgentContext carries optional hints from the agent. The reputation hint is
// advisory only; the authenticator always uses the stored score.
type AgentContext struct {
	ReputationHint float64 `json:"reputation_hint,omitempty"`
	ClientName     string  `json:"client_name,omitempty"`
}

// StayTerms describes the dated, typed terms of a hotel stay.
// Dates use ISO 8601 (YYYY-MM-DD) in the wire format.
type StayTerms struct {
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
	RoomType string `json:"room_type,omitempty"`
	Guests   int    `json:"guests,omitempty"`
}

// Nights returns the stay length in nights, or 0 if the dates don't parse.
func (t StayTerms) Nights() int {
	in, err1 := time.Parse("2006-01-02", t.CheckIn)
	out, err2 := time.Parse("2006-01-02", t.CheckOut)
	if err1 != nil || err2 != nil {
		return 0
	}
	n := int(out.Sub(in).Hours() / 24)
	if n < 0 {
		return 0
	}
	return n
}

// Validate checks the terms are well-formed: parseable dates, check-out
// strictly after check-in.
func (t StayTerms) Validate() error {
	in, err := time.Parse("2006-01-02", t.CheckIn)
	if err != nil {
		return NewValidationError("check_in", "must be YYYY-MM-DD")
	}
	out, err := time.Parse("2006-01-02", t.CheckOut)
	if err != nil {
		return NewValidationError("check_out", "must be YYYY-MM-DD")
	}
	if !out.After(in) {
		return NewValidationError("check_out", "must be after check_in")
	}
	if t.Guests < 0 {
		return NewValidationError("guests", "must not be negative")
	}
	return nil
}

// === Intent payloads ===

// DiscoverPayload asks what a property can offer for a stay.
type DiscoverPayload struct {
	Terms *StayTerms `json:"terms"`
}

// NegotiateAction is the agent's move in a negotiation round.
type NegotiateAction string

const (
	ActionOpen    NegotiateAction = "open"    // start a negotiation
	ActionAccept  NegotiateAction = "accept"  // accept the standing counter-offer
	ActionCounter NegotiateAction = "counter" // propose a new price
	ActionAbandon NegotiateAction = "abandon" // walk away
)

// NegotiatePayload drives the multi-round offer protocol. Open starts a new
// transaction; the other actions reference it by transaction_id.
type NegotiatePayload struct {
	Action        NegotiateAction `json:"action"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Terms         *StayTerms      `json:"terms,omitempty"`
	CounterPrice  int64           `json:"counter_price,omitempty"` // minor units, for action=counter
	DryRun        bool            `json:"dry_run,omitempty"`       // accept validates without booking
}

// ExecutePayload books in one shot: availability check, single negotiation
// evaluation, booking. DryRun validates the whole path without mutating
// upstream state.
type ExecutePayload struct {
	Terms  StayTerms `json:"terms"`
	DryRun bool      `json:"dry_run,omitempty"`
}

// === Responses ===

// IntentResponse is the uniform response for /acp/requests.
// Exactly which fields are populated depends on the intent and outcome.
type IntentResponse struct {
	ProtocolVersion string           `json:"protocol_version"`
	RequestID       string           `json:"request_id"`
	Success         bool             `json:"success"`
	Duplicate       bool             `json:"duplicate,omitempty"` // idempotent replay of a stored result
	TransactionID   string           `json:"transaction_id,omitempty"`
	State           TransactionState `json:"state,omitempty"`
	Reason          string           `json:"reason,omitempty"`

	// discover
	Availability []RoomOption `json:"availability,omitempty"`

	// negotiate / execute
	Offer        *Offer  `json:"offer,omitempty"`
	OfferHistory []Offer `json:"offer_history,omitempty"`
	Round        int     `json:"round,omitempty"`

	// execute / accepted negotiation
	Booking *BookingResult `json:"booking,omitempty"`

	// dry-run
	DryRun             bool   `json:"dry_run,omitempty"`
	WouldCreateBooking bool   `json:"would_create_booking,omitempty"`
	Validation         string `json:"validation,omitempty"` // "passed" | "failed"
}

// RoomOption is one bookable room type reported by the PMS for a stay.
// Price is the total for the stay in minor units.
type RoomOption struct {
	RoomType  string `json:"room_type"`
	Price     int64  `json:"price"`
	Currency  string `json:"currency"`
	Available int    `json:"available"` // rooms left for the dates
}

// BookingResult is the outcome of a create-booking call.
// ChargedPrice may differ from the offer only within the adapter's
// documented tolerance.
type BookingResult struct {
	ConfirmationCode   string `json:"confirmation_code,omitempty"`
	ChargedPrice       int64  `json:"charged_price,omitempty"`
	Currency           string `json:"currency,omitempty"`
	DryRun             bool   `json:"dry_run,omitempty"`
	WouldCreateBooking bool   `json:"would_create_booking,omitempty"`
	Validation         string `json:"validation,omitempty"`
}
