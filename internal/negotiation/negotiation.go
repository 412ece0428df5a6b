// Package negotiation implements the gateway's price negotiation engine.
// Transport-agnostic core: selects a base offer from availability and
// evaluates agent counter-offers round by round. The transaction manager
// owns persistence and state transitions; this package only decides
// prices.
package negotiation

import (
	"acp-gateway/internal/model"
)

// Policy bounds how far the system will move from the base price.
type Policy struct {
	// RoundDiscountPct caps the concession per round, as a percentage of
	// the base price.
	RoundDiscountPct int64

	// MaxDiscountPct caps the cumulative discount. Counter-offers at or
	// above the resulting floor are accepted.
	MaxDiscountPct int64

	// MaxRounds is the number of counter rounds before the negotiation
	// is exhausted.
	MaxRounds int
}

// DefaultPolicy returns the standard concession schedule: at most 5% per
// round, 15% cumulative, four rounds.
func DefaultPolicy() Policy {
	return Policy{
		RoundDiscountPct: 5,
		MaxDiscountPct:   15,
		MaxRounds:        4,
	}
}

// Floor returns the lowest price the policy will accept for a base price.
func (p Policy) Floor(base int64) int64 {
	return base - base*p.MaxDiscountPct/100
}

// Outcome classifies one evaluation of an agent counter-offer.
type Outcome string

const (
	// OutcomeAccepted means the counter-offer cleared the floor and is
	// the agreed price.
	OutcomeAccepted Outcome = "accepted"

	// OutcomeCountered means the system responded with a new offer.
	OutcomeCountered Outcome = "countered"

	// OutcomeExhausted means the round limit was hit without agreement.
	OutcomeExhausted Outcome = "exhausted"
)

// Decision is the engine's answer to one counter-offer.
type Decision struct {
	Outcome Outcome

	// Price is the agreed price for accepted outcomes, or the system's
	// new offer for countered ones. Zero when exhausted.
	Price int64
}

// Engine evaluates offers under one policy.
type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// SelectBaseOffer picks the room the negotiation starts from. Preference
// order: rooms matching the requested type, then lowest price. Only
// available rooms qualify. Returns false when nothing is bookable.
func (e *Engine) SelectBaseOffer(options []model.RoomOption, terms *model.StayTerms) (model.RoomOption, bool) {
	var best model.RoomOption
	found := false
	for _, opt := range options {
		if opt.Available <= 0 {
			continue
		}
		if !found {
			best = opt
			found = true
			continue
		}
		if better(opt, best, terms.RoomType) {
			best = opt
		}
	}
	return best, found
}

// better reports whether a beats b under the selection rules.
func better(a, b model.RoomOption, requestedType string) bool {
	if requestedType != "" {
		aMatch := a.RoomType == requestedType
		bMatch := b.RoomType == requestedType
		if aMatch != bMatch {
			return aMatch
		}
	}
	return a.Price < b.Price
}

// AdjustToBudget reworks a base offer whose price exceeds the agent's
// budget. Preference order: discount the selected room to the budget when
// the cumulative floor allows it, fall back to the cheapest bookable room
// inside the budget, and otherwise offer the selected room at the floor,
// the closest price the policy can reach.
func (e *Engine) AdjustToBudget(base model.RoomOption, options []model.RoomOption, budgetMax int64) model.RoomOption {
	if budgetMax <= 0 || base.Price <= budgetMax {
		return base
	}
	floor := e.policy.Floor(base.Price)
	if budgetMax >= floor {
		base.Price = budgetMax
		return base
	}
	if fallback, ok := cheapestWithin(options, budgetMax); ok {
		return fallback
	}
	base.Price = floor
	return base
}

// cheapestWithin finds the lowest-priced bookable room at or under the
// budget.
func cheapestWithin(options []model.RoomOption, budgetMax int64) (model.RoomOption, bool) {
	var best model.RoomOption
	found := false
	for _, opt := range options {
		if opt.Available <= 0 || opt.Price > budgetMax {
			continue
		}
		if !found || opt.Price < best.Price {
			best = opt
			found = true
		}
	}
	return best, found
}

// Evaluate judges an agent counter-offer against the current system
// offer. base is the opening price, current the system's standing offer,
// and round the 1-based round this counter arrives in.
//
// Counters at or above the policy floor are accepted, charged at the
// lower of the counter and the standing offer. Below-floor counters get a
// new system offer at the midpoint, bounded to concede at most the
// per-round step and never to cross the floor. Once the round limit is
// reached a below-floor counter exhausts the negotiation.
func (e *Engine) Evaluate(base, current, counter int64, round int) Decision {
	floor := e.policy.Floor(base)

	if counter >= floor {
		price := counter
		if price > current {
			price = current
		}
		return Decision{Outcome: OutcomeAccepted, Price: price}
	}

	if round >= e.policy.MaxRounds {
		return Decision{Outcome: OutcomeExhausted}
	}

	next := (current + counter) / 2
	step := base * e.policy.RoundDiscountPct / 100
	if next < current-step {
		next = current - step
	}
	if next < floor {
		next = floor
	}
	return Decision{Outcome: OutcomeCountered, Price: next}
}

// MaxRounds exposes the policy's round limit.
func (e *Engine) MaxRounds() int {
	return e.policy.MaxRounds
}
