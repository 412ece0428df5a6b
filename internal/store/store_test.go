package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"acp-gateway/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "acp_test.db"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAgentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	agent := &AgentIdentity{
		AgentID:     "corp_000",
		KeyType:     KeyTypeEd25519,
		KeyMaterial: "aabbcc",
		Reputation:  0.5,
		Status:      AgentActive,
	}
	if err := s.UpsertAgent(ctx, agent); err != nil {
		t.Fatalf("UpsertAgent() error: %v", err)
	}

	got, err := s.GetAgent(ctx, "corp_000")
	if err != nil {
		t.Fatalf("GetAgent() error: %v", err)
	}
	if got.KeyMaterial != "aabbcc" || got.Reputation != 0.5 || !got.Active() {
		t.Errorf("GetAgent() = %+v", got)
	}

	if _, err := s.GetAgent(ctx, "ghost"); !errors.Is(err, model.ErrUnknownAgent) {
		t.Errorf("missing agent: got %v, want ErrUnknownAgent", err)
	}

	// Key rotation preserves reputation.
	if err := s.AdjustReputation(ctx, "corp_000", 0.3); err != nil {
		t.Fatalf("AdjustReputation() error: %v", err)
	}
	agent.KeyMaterial = "ddeeff"
	if err := s.UpsertAgent(ctx, agent); err != nil {
		t.Fatalf("UpsertAgent() rotation error: %v", err)
	}
	got, _ = s.GetAgent(ctx, "corp_000")
	if math.Abs(got.Reputation-0.8) > 1e-9 {
		t.Errorf("reputation after rotation = %v, want 0.8", got.Reputation)
	}
	if got.KeyMaterial != "ddeeff" {
		t.Errorf("key material not rotated: %s", got.KeyMaterial)
	}
}

func TestReputationClamping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.UpsertAgent(ctx, &AgentIdentity{AgentID: "a1", KeyType: KeyTypeHMAC, KeyMaterial: "00", Reputation: 0.9, Status: AgentActive})

	s.AdjustReputation(ctx, "a1", 0.5)
	got, _ := s.GetAgent(ctx, "a1")
	if got.Reputation != 1.0 {
		t.Errorf("reputation = %v, want clamp at 1.0", got.Reputation)
	}

	s.AdjustReputation(ctx, "a1", -2.0)
	got, _ = s.GetAgent(ctx, "a1")
	if got.Reputation != 0.0 {
		t.Errorf("reputation = %v, want clamp at 0.0", got.Reputation)
	}
}

func TestSetAgentStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.UpsertAgent(ctx, &AgentIdentity{AgentID: "a1", KeyType: KeyTypeHMAC, KeyMaterial: "00", Reputation: 0.5, Status: AgentActive})

	if err := s.SetAgentStatus(ctx, "a1", AgentSuspended); err != nil {
		t.Fatalf("SetAgentStatus() error: %v", err)
	}
	got, _ := s.GetAgent(ctx, "a1")
	if got.Active() {
		t.Error("agent should be suspended")
	}

	if err := s.SetAgentStatus(ctx, "ghost", AgentSuspended); !errors.Is(err, model.ErrUnknownAgent) {
		t.Errorf("got %v, want ErrUnknownAgent", err)
	}
}

func TestTransactionIdempotencyIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx := &model.Transaction{
		TxID:           "tx-1",
		AgentID:        "corp_000",
		RequestID:      "req-1",
		TargetEntityID: "prop_1",
		State:          model.StatePending,
	}
	if err := s.CreateTransaction(ctx, tx); err != nil {
		t.Fatalf("CreateTransaction() error: %v", err)
	}

	// Same (agent_id, request_id) pair must be rejected as a duplicate.
	dup := &model.Transaction{
		TxID:           "tx-2",
		AgentID:        "corp_000",
		RequestID:      "req-1",
		TargetEntityID: "prop_1",
		State:          model.StatePending,
	}
	if err := s.CreateTransaction(ctx, dup); !errors.Is(err, model.ErrDuplicateRequest) {
		t.Errorf("duplicate insert: got %v, want ErrDuplicateRequest", err)
	}

	// Same request_id for a DIFFERENT agent is a new transaction.
	other := &model.Transaction{
		TxID:           "tx-3",
		AgentID:        "corp_001",
		RequestID:      "req-1",
		TargetEntityID: "prop_1",
		State:          model.StatePending,
	}
	if err := s.CreateTransaction(ctx, other); err != nil {
		t.Errorf("different agent, same request_id: %v", err)
	}
}

func TestFinalizeTransactionAtomicity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.UpsertAgent(ctx, &AgentIdentity{AgentID: "corp_000", KeyType: KeyTypeHMAC, KeyMaterial: "00", Reputation: 0.5, Status: AgentActive})

	tx := &model.Transaction{
		TxID:           "tx-1",
		AgentID:        "corp_000",
		RequestID:      "req-1",
		TargetEntityID: "prop_1",
		State:          model.StatePending,
	}
	if err := s.CreateTransaction(ctx, tx); err != nil {
		t.Fatalf("CreateTransaction() error: %v", err)
	}

	tx.State = model.StateConfirmed
	tx.Round = 2
	tx.Offers = []model.Offer{
		{Price: 32000, Currency: "AUD", Round: 1, Originator: model.OriginatorSystem},
		{Price: 30000, Currency: "AUD", Round: 2, Originator: model.OriginatorAgent},
	}
	tx.FinalOffer = &tx.Offers[1]
	tx.Booking = &model.BookingResult{ConfirmationCode: "CONF-42", ChargedPrice: 30000, Currency: "AUD"}
	result := []byte(`{"success":true,"state":"confirmed"}`)

	if err := s.FinalizeTransaction(ctx, tx, "req-2", result, 0.02); err != nil {
		t.Fatalf("FinalizeTransaction() error: %v", err)
	}

	// Result is retrievable under the responding request's idempotency key.
	stored, err := s.GetRequestResult(ctx, "corp_000", "req-2")
	if err != nil {
		t.Fatalf("GetRequestResult() error: %v", err)
	}
	if string(stored) != string(result) {
		t.Errorf("stored result = %s, want %s", stored, result)
	}

	// State, offer history, and booking survived the round trip.
	got, err := s.GetTransactionByRequest(ctx, "corp_000", "req-1")
	if err != nil {
		t.Fatalf("GetTransactionByRequest() error: %v", err)
	}
	if got.State != model.StateConfirmed || len(got.Offers) != 2 || got.Booking == nil {
		t.Errorf("transaction = %+v", got)
	}
	if got.Booking.ConfirmationCode != "CONF-42" {
		t.Errorf("confirmation = %s", got.Booking.ConfirmationCode)
	}

	// Reputation moved in the same commit.
	agent, _ := s.GetAgent(ctx, "corp_000")
	if math.Abs(agent.Reputation-0.52) > 1e-9 {
		t.Errorf("reputation = %v, want 0.52", agent.Reputation)
	}
}

func TestRequestResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx := &model.Transaction{TxID: "tx-1", AgentID: "a", RequestID: "r", TargetEntityID: "p", State: model.StatePending}
	s.CreateTransaction(ctx, tx)

	if _, err := s.GetRequestResult(ctx, "a", "r"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetRequestResult() before save error = %v, want ErrNotFound", err)
	}

	if err := s.SaveRequestResult(ctx, "a", "r", "tx-1", []byte(`{"round":1}`)); err != nil {
		t.Fatalf("SaveRequestResult() error: %v", err)
	}
	stored, err := s.GetRequestResult(ctx, "a", "r")
	if err != nil || string(stored) != `{"round":1}` {
		t.Errorf("GetRequestResult() = %s, %v", stored, err)
	}

	if _, err := s.GetRequestResult(ctx, "a", "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestPropertyPauseResume(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &Property{EntityID: "prop_sydney_01", Name: "Sydney Harbour Hotel", IsActive: true}
	if err := s.UpsertProperty(ctx, p); err != nil {
		t.Fatalf("UpsertProperty() error: %v", err)
	}

	if err := s.SetPropertyActive(ctx, "prop_sydney_01", false, "maintenance window"); err != nil {
		t.Fatalf("SetPropertyActive() error: %v", err)
	}
	got, _ := s.GetProperty(ctx, "prop_sydney_01")
	if got.IsActive {
		t.Error("property should be paused")
	}

	if err := s.SetPropertyActive(ctx, "prop_sydney_01", true, ""); err != nil {
		t.Fatalf("resume error: %v", err)
	}
	got, _ = s.GetProperty(ctx, "prop_sydney_01")
	if !got.IsActive {
		t.Error("property should be active again")
	}

	if err := s.SetPropertyActive(ctx, "ghost", false, ""); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestAuthAuditAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &AuthDecisionRecord{
		RequestID:  "req-1",
		AgentID:    "corp_000",
		IntentType: "execute",
		Allowed:    false,
		Reason:     "reputation below floor",
	}
	if err := s.AppendAuthAudit(ctx, rec); err != nil {
		t.Fatalf("AppendAuthAudit() error: %v", err)
	}
	if err := s.AppendAuthAudit(ctx, rec); err != nil {
		t.Fatalf("second append error: %v", err)
	}

	n, err := s.CountAuthAudit(ctx, "req-1")
	if err != nil {
		t.Fatalf("CountAuthAudit() error: %v", err)
	}
	if n != 2 {
		t.Errorf("audit rows = %d, want 2", n)
	}
}
