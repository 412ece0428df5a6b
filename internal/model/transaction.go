package model

import "time"

// TransactionState is the lifecycle state of a commerce transaction.
// Pending and Negotiating are the only non-terminal states.
type TransactionState string

const (
	StatePending     TransactionState = "pending"
	StateNegotiating TransactionState = "negotiating"
	StateConfirmed   TransactionState = "confirmed"
	StateRejected    TransactionState = "rejected"
	StateFailed      TransactionState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s TransactionState) Terminal() bool {
	switch s {
	case StateConfirmed, StateRejected, StateFailed:
		return true
	}
	return false
}

// OfferOriginator identifies which side proposed an offer.
type OfferOriginator string

const (
	OriginatorAgent  OfferOriginator = "agent"
	OriginatorSystem OfferOriginator = "system"
)

// Offer is a priced, dated, terms-bound proposal exchanged during
// negotiation. Offers form an ordered sequence per transaction; each round's
// counter-offer supersedes but never deletes the prior one.
type Offer struct {
	Price      int64           `json:"price"` // minor units, total for the stay
	Currency   string          `json:"currency"`
	Terms      StayTerms       `json:"terms"`
	Round      int             `json:"round"`
	Originator OfferOriginator `json:"originator"`
	ExpiresAt  time.Time       `json:"expires_at,omitempty"`
}

// Transaction is the unit of commerce the manager owns. Exactly one may
// exist per (agent_id, request_id) pair; that is the idempotency invariant.
type Transaction struct {
	TxID           string           `json:"tx_id"`
	AgentID        string           `json:"agent_id"`
	RequestID      string           `json:"request_id"`
	TargetEntityID string           `json:"target_entity_id"`
	State          TransactionState `json:"state"`
	Round          int              `json:"round"`
	Offers         []Offer          `json:"offers,omitempty"` // full history, append-only
	FinalOffer     *Offer           `json:"final_offer,omitempty"`
	Booking        *BookingResult   `json:"booking,omitempty"`
	Reason         string           `json:"reason,omitempty"` // why terminal, when not Confirmed
	DryRun         bool             `json:"dry_run,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// CurrentOffer returns the standing (latest) offer, or nil before the first
// round completes.
func (t *Transaction) CurrentOffer() *Offer {
	if len(t.Offers) == 0 {
		return nil
	}
	return &t.Offers[len(t.Offers)-1]
}
