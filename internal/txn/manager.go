// Package txn owns the transaction lifecycle: idempotent intake,
// negotiation round bookkeeping, booking, and the terminal commit that
// stores the result and moves the agent's reputation in one step.
package txn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"acp-gateway/internal/adapter"
	"acp-gateway/internal/model"
	"acp-gateway/internal/negotiation"
	"acp-gateway/internal/store"
)

// Reputation movement on terminal states. Confirmed bookings build
// standing, failed ones erode it faster. Rejections are neutral.
const (
	reputationConfirmed = 0.02
	reputationFailed    = -0.05
)

// offerTTL is how long a system offer stays acceptable.
const offerTTL = 10 * time.Minute

// Manager drives intents through the transaction state machine.
// All mutating work for one transaction is serialized on a per-key lock,
// and every completed mutating request leaves a stored result behind for
// duplicate replay.
type Manager struct {
	store   *store.Store
	adapter adapter.Adapter
	engine  *negotiation.Engine
	locks   *keyedLocks
	logger  *slog.Logger

	now   func() time.Time
	newID func() string
}

func NewManager(st *store.Store, ad adapter.Adapter, engine *negotiation.Engine, logger *slog.Logger) *Manager {
	return &Manager{
		store:   st,
		adapter: ad,
		engine:  engine,
		locks:   newKeyedLocks(),
		logger:  logger,
		now:     time.Now,
		newID:   func() string { return "tx_" + uuid.NewString() },
	}
}

// Handle dispatches a validated, authorized envelope.
func (m *Manager) Handle(ctx context.Context, env *model.RequestEnvelope) (*model.IntentResponse, error) {
	switch env.IntentType {
	case model.IntentDiscover:
		return m.discover(ctx, env)
	case model.IntentNegotiate:
		return m.negotiate(ctx, env)
	case model.IntentExecute:
		return m.execute(ctx, env)
	default:
		return nil, model.NewValidationError("intent_type", "unknown intent")
	}
}

// GetTransaction fetches one transaction for the query endpoint.
func (m *Manager) GetTransaction(ctx context.Context, txID string) (*model.Transaction, error) {
	tx, err := m.store.GetTransaction(ctx, txID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewNotFoundError(fmt.Sprintf("transaction %s", txID))
		}
		return nil, err
	}
	return tx, nil
}

// === Discover ===

// discover is read-only: no transaction row, no idempotency bookkeeping.
// Re-running it is harmless.
func (m *Manager) discover(ctx context.Context, env *model.RequestEnvelope) (*model.IntentResponse, error) {
	var payload model.DiscoverPayload
	if err := json.Unmarshal(env.IntentPayload, &payload); err != nil {
		return nil, model.NewMalformedEnvelopeError("intent_payload", "invalid discover payload")
	}
	if payload.Terms == nil {
		return nil, model.NewValidationError("terms", "stay terms are required")
	}
	if err := payload.Terms.Validate(); err != nil {
		return nil, err
	}

	options, err := m.adapter.CheckAvailability(ctx, env.TargetEntityID, payload.Terms)
	if err != nil {
		return nil, err
	}

	resp := m.newResponse(env)
	resp.Success = true
	resp.Availability = options
	return resp, nil
}

// === Negotiate ===

func (m *Manager) negotiate(ctx context.Context, env *model.RequestEnvelope) (*model.IntentResponse, error) {
	var payload model.NegotiatePayload
	if err := json.Unmarshal(env.IntentPayload, &payload); err != nil {
		return nil, model.NewMalformedEnvelopeError("intent_payload", "invalid negotiate payload")
	}

	switch payload.Action {
	case model.ActionOpen:
		return m.openNegotiation(ctx, env, &payload)
	case model.ActionAccept, model.ActionCounter, model.ActionAbandon:
		if payload.TransactionID == "" {
			return nil, model.NewValidationError("transaction_id", "required for action "+string(payload.Action))
		}
		return m.continueNegotiation(ctx, env, &payload)
	default:
		return nil, model.NewValidationError("action", "must be open, accept, counter, or abandon")
	}
}

// openNegotiation claims the idempotency key, quotes availability, and
// issues the opening system offer.
func (m *Manager) openNegotiation(ctx context.Context, env *model.RequestEnvelope, payload *model.NegotiatePayload) (*model.IntentResponse, error) {
	if payload.Terms == nil {
		return nil, model.NewValidationError("terms", "required for action open")
	}
	if err := payload.Terms.Validate(); err != nil {
		return nil, err
	}

	release := m.locks.acquire("req|" + env.AgentID + "|" + env.RequestID)
	defer release()

	tx := &model.Transaction{
		TxID:           m.newID(),
		AgentID:        env.AgentID,
		RequestID:      env.RequestID,
		TargetEntityID: env.TargetEntityID,
		State:          model.StatePending,
		DryRun:         payload.DryRun,
	}
	if err := m.store.CreateTransaction(ctx, tx); err != nil {
		if errors.Is(err, model.ErrDuplicateRequest) {
			return m.replay(ctx, env)
		}
		return nil, err
	}
	return m.openQuote(ctx, env, payload, tx)
}

// openQuote prices an opened negotiation and either issues the opening
// system offer or books outright when the quote already satisfies the
// agent's budget. Runs on the fresh path and again when a duplicate
// retry resumes an interrupted transaction.
func (m *Manager) openQuote(ctx context.Context, env *model.RequestEnvelope, payload *model.NegotiatePayload, tx *model.Transaction) (*model.IntentResponse, error) {
	options, err := m.adapter.CheckAvailability(ctx, env.TargetEntityID, payload.Terms)
	if err != nil {
		// Leave the transaction pending; a duplicate retry resumes here.
		return nil, err
	}

	base, found := m.engine.SelectBaseOffer(options, payload.Terms)
	if !found {
		tx.State = model.StateRejected
		tx.Reason = "no availability for the requested stay"
		return m.finalize(ctx, env, tx, 0)
	}

	hasBudget := env.Constraints != nil && env.Constraints.BudgetMax > 0
	adjusted := false
	if hasBudget && base.Price > env.Constraints.BudgetMax {
		// The quote misses the budget. Opening with the raw price would
		// only invite a counter the engine has to concede to anyway, so
		// open with the adjusted offer instead.
		base = m.engine.AdjustToBudget(base, options, env.Constraints.BudgetMax)
		adjusted = true
	}

	opening := model.Offer{
		Price:      base.Price,
		Currency:   base.Currency,
		Terms:      termsFor(payload.Terms, base.RoomType),
		Round:      0,
		Originator: model.OriginatorSystem,
		ExpiresAt:  m.now().Add(offerTTL),
	}
	tx.Offers = []model.Offer{opening}

	// A quote already inside the agent's budget is accepted as-is; rounds
	// only start when the opening price needs to move.
	if hasBudget && !adjusted {
		agreed := opening
		agreed.ExpiresAt = time.Time{}
		tx.FinalOffer = &agreed
		return m.book(ctx, env, tx, payload.DryRun)
	}

	tx.State = model.StateNegotiating
	if err := m.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return m.progress(ctx, env, tx)
}

// continueNegotiation applies an accept, counter, or abandon to an
// existing transaction. Serialized on the transaction, not the request,
// so two rounds can never interleave.
func (m *Manager) continueNegotiation(ctx context.Context, env *model.RequestEnvelope, payload *model.NegotiatePayload) (*model.IntentResponse, error) {
	release := m.locks.acquire("tx|" + payload.TransactionID)
	defer release()

	if stored, err := m.store.GetRequestResult(ctx, env.AgentID, env.RequestID); err == nil {
		return replayResponse(stored)
	}

	tx, err := m.store.GetTransaction(ctx, payload.TransactionID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewNotFoundError(fmt.Sprintf("transaction %s", payload.TransactionID))
		}
		return nil, err
	}
	if tx.AgentID != env.AgentID {
		return nil, model.NewForbiddenError("transaction belongs to another agent")
	}
	if tx.State.Terminal() {
		resp := m.newResponse(env)
		resp.TransactionID = tx.TxID
		resp.State = tx.State
		resp.Reason = fmt.Sprintf("transaction already %s", tx.State)
		resp.Booking = tx.Booking
		resp.Success = tx.State == model.StateConfirmed
		return resp, nil
	}

	standing := latestSystemOffer(tx)
	if standing == nil {
		return nil, model.NewInternalError(fmt.Errorf("negotiating transaction %s has no system offer", tx.TxID))
	}
	if m.now().After(standing.ExpiresAt) {
		tx.State = model.StateRejected
		tx.Reason = "offer expired"
		return m.finalize(ctx, env, tx, 0)
	}

	switch payload.Action {
	case model.ActionAbandon:
		tx.State = model.StateRejected
		tx.Reason = "abandoned by agent"
		return m.finalize(ctx, env, tx, 0)

	case model.ActionAccept:
		if exceedsBudget(env, standing.Price) {
			resp := m.newResponse(env)
			resp.TransactionID = tx.TxID
			resp.State = tx.State
			resp.Round = tx.Round
			resp.Offer = standing
			resp.Reason = "standing offer exceeds budget_max"
			return m.saveProgress(ctx, env, tx, resp)
		}
		agreed := *standing
		tx.FinalOffer = &agreed
		return m.book(ctx, env, tx, payload.DryRun || tx.DryRun)

	case model.ActionCounter:
		if payload.CounterPrice <= 0 {
			return nil, model.NewValidationError("counter_price", "must be positive")
		}
		return m.counter(ctx, env, tx, standing, payload.CounterPrice)
	}
	return nil, model.NewValidationError("action", "unknown action")
}

// counter evaluates one agent counter-offer.
func (m *Manager) counter(ctx context.Context, env *model.RequestEnvelope, tx *model.Transaction, standing *model.Offer, counterPrice int64) (*model.IntentResponse, error) {
	base := tx.Offers[0].Price
	round := tx.Round + 1

	tx.Offers = append(tx.Offers, model.Offer{
		Price:      counterPrice,
		Currency:   standing.Currency,
		Terms:      standing.Terms,
		Round:      round,
		Originator: model.OriginatorAgent,
	})
	tx.Round = round

	decision := m.engine.Evaluate(base, standing.Price, counterPrice, round)
	switch decision.Outcome {
	case negotiation.OutcomeAccepted:
		agreed := *standing
		agreed.Price = decision.Price
		agreed.Round = round
		tx.FinalOffer = &agreed
		return m.book(ctx, env, tx, tx.DryRun)

	case negotiation.OutcomeExhausted:
		tx.State = model.StateRejected
		tx.Reason = "negotiation exhausted: round limit reached without agreement"
		return m.finalize(ctx, env, tx, 0)

	default:
		next := model.Offer{
			Price:      decision.Price,
			Currency:   standing.Currency,
			Terms:      standing.Terms,
			Round:      round,
			Originator: model.OriginatorSystem,
			ExpiresAt:  m.now().Add(offerTTL),
		}
		tx.Offers = append(tx.Offers, next)
		if err := m.store.UpdateTransaction(ctx, tx); err != nil {
			return nil, err
		}
		return m.progress(ctx, env, tx)
	}
}

// === Execute ===

// execute books in one shot at the quoted price: availability, base
// offer, booking. No counter rounds.
func (m *Manager) execute(ctx context.Context, env *model.RequestEnvelope) (*model.IntentResponse, error) {
	var payload model.ExecutePayload
	if err := json.Unmarshal(env.IntentPayload, &payload); err != nil {
		return nil, model.NewMalformedEnvelopeError("intent_payload", "invalid execute payload")
	}
	if err := payload.Terms.Validate(); err != nil {
		return nil, err
	}

	release := m.locks.acquire("req|" + env.AgentID + "|" + env.RequestID)
	defer release()

	tx := &model.Transaction{
		TxID:           m.newID(),
		AgentID:        env.AgentID,
		RequestID:      env.RequestID,
		TargetEntityID: env.TargetEntityID,
		State:          model.StatePending,
		DryRun:         payload.DryRun,
	}
	if err := m.store.CreateTransaction(ctx, tx); err != nil {
		if errors.Is(err, model.ErrDuplicateRequest) {
			return m.replay(ctx, env)
		}
		return nil, err
	}
	return m.executeQuote(ctx, env, &payload, tx)
}

// executeQuote prices and books a one-shot execute. Runs on the fresh
// path and again when a duplicate retry resumes an interrupted
// transaction.
func (m *Manager) executeQuote(ctx context.Context, env *model.RequestEnvelope, payload *model.ExecutePayload, tx *model.Transaction) (*model.IntentResponse, error) {
	options, err := m.adapter.CheckAvailability(ctx, env.TargetEntityID, &payload.Terms)
	if err != nil {
		// Leave the transaction pending; a duplicate retry resumes here.
		return nil, err
	}
	base, found := m.engine.SelectBaseOffer(options, &payload.Terms)
	if !found {
		tx.State = model.StateRejected
		tx.Reason = "no availability for the requested stay"
		return m.finalize(ctx, env, tx, 0)
	}
	if exceedsBudget(env, base.Price) {
		tx.State = model.StateRejected
		tx.Reason = "quoted price exceeds budget_max"
		return m.finalize(ctx, env, tx, 0)
	}

	quoted := model.Offer{
		Price:      base.Price,
		Currency:   base.Currency,
		Terms:      termsFor(&payload.Terms, base.RoomType),
		Round:      0,
		Originator: model.OriginatorSystem,
	}
	tx.Offers = []model.Offer{quoted}
	tx.FinalOffer = &quoted
	return m.book(ctx, env, tx, payload.DryRun)
}

// === Booking and terminal commits ===

// book commits the final offer upstream and finalizes the transaction.
// Transient upstream conditions (open circuit, exhausted rate-limit
// retries, unreachable upstream) leave the transaction non-terminal so a
// retry of the same request can resume it.
func (m *Manager) book(ctx context.Context, env *model.RequestEnvelope, tx *model.Transaction, dryRun bool) (*model.IntentResponse, error) {
	result, err := m.adapter.CreateBooking(ctx, &adapter.CreateBookingRequest{
		EntityID:      tx.TargetEntityID,
		Terms:         tx.FinalOffer.Terms,
		AgreedPrice:   tx.FinalOffer.Price,
		Currency:      tx.FinalOffer.Currency,
		AgentID:       tx.AgentID,
		TransactionID: tx.TxID,
		DryRun:        dryRun,
	})
	if err != nil {
		if transientUpstream(err) {
			if uerr := m.store.UpdateTransaction(ctx, tx); uerr != nil {
				m.logger.Error("saving transaction before transient failure", "tx_id", tx.TxID, "error", uerr)
			}
			return nil, err
		}
		tx.State = model.StateFailed
		tx.Reason = err.Error()
		delta := reputationFailed
		if dryRun {
			delta = 0
		}
		return m.finalize(ctx, env, tx, delta)
	}

	tx.Booking = result
	tx.State = model.StateConfirmed
	delta := reputationConfirmed
	if dryRun {
		delta = 0
	}
	return m.finalize(ctx, env, tx, delta)
}

// finalize commits a terminal state, its stored response, and the
// reputation movement atomically, then returns the response.
func (m *Manager) finalize(ctx context.Context, env *model.RequestEnvelope, tx *model.Transaction, reputationDelta float64) (*model.IntentResponse, error) {
	resp := m.responseFor(env, tx)
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, model.NewInternalError(err)
	}
	if err := m.store.FinalizeTransaction(ctx, tx, env.RequestID, raw, reputationDelta); err != nil {
		return nil, model.NewInternalError(err)
	}
	m.logger.Info("transaction finalized",
		"tx_id", tx.TxID,
		"agent_id", tx.AgentID,
		"state", tx.State,
		"round", tx.Round,
		"dry_run", tx.DryRun)
	return resp, nil
}

// progress stores the response for a non-terminal round and returns it.
func (m *Manager) progress(ctx context.Context, env *model.RequestEnvelope, tx *model.Transaction) (*model.IntentResponse, error) {
	return m.saveProgress(ctx, env, tx, m.responseFor(env, tx))
}

func (m *Manager) saveProgress(ctx context.Context, env *model.RequestEnvelope, tx *model.Transaction, resp *model.IntentResponse) (*model.IntentResponse, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, model.NewInternalError(err)
	}
	if err := m.store.SaveRequestResult(ctx, env.AgentID, env.RequestID, tx.TxID, raw); err != nil {
		return nil, model.NewInternalError(err)
	}
	return resp, nil
}

// replay serves a duplicate request from its stored result, or resumes a
// transaction that never reached a result.
func (m *Manager) replay(ctx context.Context, env *model.RequestEnvelope) (*model.IntentResponse, error) {
	stored, err := m.store.GetRequestResult(ctx, env.AgentID, env.RequestID)
	if err == nil {
		return replayResponse(stored)
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	// The transaction exists but never completed: a crash or transient
	// upstream failure interrupted it. Resume from wherever it stopped.
	tx, err := m.store.GetTransactionByRequest(ctx, env.AgentID, env.RequestID)
	if err != nil {
		return nil, err
	}
	switch {
	case tx.FinalOffer != nil && !tx.State.Terminal():
		return m.book(ctx, env, tx, tx.DryRun)
	case tx.State == model.StatePending:
		return m.resumePending(ctx, env, tx)
	}
	resp := m.responseFor(env, tx)
	resp.Duplicate = true
	return resp, nil
}

// resumePending re-enters an intent that was interrupted before its
// quote was taken, reusing the reserved transaction row. A pending
// transaction must never be echoed back as the final answer.
func (m *Manager) resumePending(ctx context.Context, env *model.RequestEnvelope, tx *model.Transaction) (*model.IntentResponse, error) {
	switch env.IntentType {
	case model.IntentExecute:
		var payload model.ExecutePayload
		if err := json.Unmarshal(env.IntentPayload, &payload); err != nil {
			return nil, model.NewMalformedEnvelopeError("intent_payload", "invalid execute payload")
		}
		return m.executeQuote(ctx, env, &payload, tx)
	case model.IntentNegotiate:
		var payload model.NegotiatePayload
		if err := json.Unmarshal(env.IntentPayload, &payload); err == nil && payload.Action == model.ActionOpen && payload.Terms != nil {
			return m.openQuote(ctx, env, &payload, tx)
		}
	}
	resp := m.responseFor(env, tx)
	resp.Duplicate = true
	return resp, nil
}

// === Helpers ===

func (m *Manager) newResponse(env *model.RequestEnvelope) *model.IntentResponse {
	return &model.IntentResponse{
		ProtocolVersion: model.ProtocolVersion,
		RequestID:       env.RequestID,
	}
}

// responseFor projects a transaction onto the wire response.
func (m *Manager) responseFor(env *model.RequestEnvelope, tx *model.Transaction) *model.IntentResponse {
	resp := m.newResponse(env)
	resp.TransactionID = tx.TxID
	resp.State = tx.State
	resp.Round = tx.Round
	resp.Reason = tx.Reason
	resp.OfferHistory = tx.Offers
	resp.DryRun = tx.DryRun

	switch tx.State {
	case model.StateNegotiating:
		resp.Success = true
		resp.Offer = latestSystemOffer(tx)
	case model.StateConfirmed:
		resp.Success = true
		resp.Offer = tx.FinalOffer
		resp.Booking = tx.Booking
		if tx.Booking != nil && tx.Booking.DryRun {
			resp.WouldCreateBooking = tx.Booking.WouldCreateBooking
			if tx.Booking.WouldCreateBooking {
				resp.Validation = "passed"
			} else {
				resp.Validation = "failed"
			}
		}
	}
	return resp
}

func replayResponse(stored []byte) (*model.IntentResponse, error) {
	var resp model.IntentResponse
	if err := json.Unmarshal(stored, &resp); err != nil {
		return nil, model.NewInternalError(fmt.Errorf("decoding stored result: %w", err))
	}
	resp.Duplicate = true
	return &resp, nil
}

// latestSystemOffer walks the history backwards for the standing offer.
func latestSystemOffer(tx *model.Transaction) *model.Offer {
	for i := len(tx.Offers) - 1; i >= 0; i-- {
		if tx.Offers[i].Originator == model.OriginatorSystem {
			return &tx.Offers[i]
		}
	}
	return nil
}

func exceedsBudget(env *model.RequestEnvelope, price int64) bool {
	return env.Constraints != nil && env.Constraints.BudgetMax > 0 && price > env.Constraints.BudgetMax
}

// termsFor pins the negotiated room type into the stay terms.
func termsFor(terms *model.StayTerms, roomType string) model.StayTerms {
	t := *terms
	t.RoomType = roomType
	return t
}

// transientUpstream reports conditions worth retrying rather than
// recording as a failed transaction.
func transientUpstream(err error) bool {
	return errors.Is(err, model.ErrCircuitOpen) ||
		errors.Is(err, model.ErrRateLimited) ||
		errors.Is(err, model.ErrUpstreamUnavailable)
}
