package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"acp-gateway/internal/model"
	"acp-gateway/internal/store"
)

// Default reputation floors per intent. Discovery is open to any registered
// agent; negotiation and execution require progressively more standing.
const (
	DefaultDiscoverFloor  = 0.0
	DefaultNegotiateFloor = 0.25
	DefaultExecuteFloor   = 0.5
)

// IdentityStore is the slice of the store the authenticator reads agents from.
type IdentityStore interface {
	GetAgent(ctx context.Context, agentID string) (*store.AgentIdentity, error)
}

// AuditLog records every authorization decision, allowed or denied.
type AuditLog interface {
	AppendAuthAudit(ctx context.Context, rec *store.AuthDecisionRecord) error
}

// Floors holds the minimum reputation required for each intent type.
type Floors struct {
	Discover  float64
	Negotiate float64
	Execute   float64
}

// DefaultFloors returns the standard reputation requirements.
func DefaultFloors() Floors {
	return Floors{
		Discover:  DefaultDiscoverFloor,
		Negotiate: DefaultNegotiateFloor,
		Execute:   DefaultExecuteFloor,
	}
}

func (f Floors) forIntent(intent model.IntentType) float64 {
	switch intent {
	case model.IntentDiscover:
		return f.Discover
	case model.IntentNegotiate:
		return f.Negotiate
	case model.IntentExecute:
		return f.Execute
	default:
		return 1.0
	}
}

// Decision is the outcome of authorizing one envelope.
type Decision struct {
	Agent  *store.AgentIdentity
	Reason string
}

// Authenticator authorizes request envelopes against registered agent
// identities: signature verification plus reputation-floor checks.
type Authenticator struct {
	identities IdentityStore
	audit      AuditLog
	floors     Floors
	logger     *slog.Logger
}

// NewAuthenticator builds an Authenticator. The audit log may be nil, in
// which case decisions are only logged.
func NewAuthenticator(identities IdentityStore, audit AuditLog, floors Floors, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		identities: identities,
		audit:      audit,
		floors:     floors,
		logger:     logger,
	}
}

// Authorize verifies the envelope's signature and checks the agent's
// standing against the floor for the requested intent. Every decision is
// appended to the audit log before returning. Denials return an APIError
// wrapping ErrUnknownAgent, ErrUnauthorized, or ErrForbidden.
func (a *Authenticator) Authorize(ctx context.Context, env *model.RequestEnvelope) (*Decision, error) {
	agent, err := a.identities.GetAgent(ctx, env.AgentID)
	if err != nil {
		if errors.Is(err, model.ErrUnknownAgent) {
			a.record(ctx, env, false, "unknown agent")
			return nil, model.NewUnknownAgentError(env.AgentID)
		}
		return nil, fmt.Errorf("looking up agent %s: %w", env.AgentID, err)
	}

	if !agent.Active() {
		a.record(ctx, env, false, "agent suspended")
		return nil, model.NewForbiddenError("agent is suspended")
	}

	if err := a.verifySignature(env, agent); err != nil {
		a.record(ctx, env, false, "signature verification failed")
		a.logger.Warn("envelope signature rejected",
			"agent_id", env.AgentID,
			"request_id", env.RequestID,
			"error", err)
		return nil, model.NewUnauthorizedError("envelope signature verification failed")
	}

	floor := a.floors.forIntent(env.IntentType)
	if agent.Reputation < floor {
		reason := fmt.Sprintf("reputation %.2f below floor %.2f for %s", agent.Reputation, floor, env.IntentType)
		a.record(ctx, env, false, reason)
		return nil, model.NewForbiddenError(reason)
	}

	a.record(ctx, env, true, "")
	return &Decision{Agent: agent}, nil
}

func (a *Authenticator) verifySignature(env *model.RequestEnvelope, agent *store.AgentIdentity) error {
	switch agent.KeyType {
	case store.KeyTypeEd25519:
		return verifyEd25519(env, agent.KeyMaterial, env.AgentSignature)
	case store.KeyTypeHMAC:
		return verifyHMAC(env, agent.KeyMaterial, env.AgentSignature)
	default:
		return fmt.Errorf("unsupported key type %q", agent.KeyType)
	}
}

func (a *Authenticator) record(ctx context.Context, env *model.RequestEnvelope, allowed bool, reason string) {
	if a.audit == nil {
		return
	}
	rec := &store.AuthDecisionRecord{
		RequestID:  env.RequestID,
		AgentID:    env.AgentID,
		IntentType: string(env.IntentType),
		Allowed:    allowed,
		Reason:     reason,
	}
	if err := a.audit.AppendAuthAudit(ctx, rec); err != nil {
		// Audit failures never block the request path.
		a.logger.Error("appending auth audit record", "request_id", env.RequestID, "error", err)
	}
}
