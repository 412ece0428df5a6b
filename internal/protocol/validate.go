package protocol

import (
	"golang.org/x/mod/semver"

	"acp-gateway/internal/model"
)

// SupportedVersions is the set of protocol revisions this gateway accepts.
// Matching is exact: unknown or unsupported versions fail fast before auth,
// trust, or any transaction lookup.
var SupportedVersions = map[string]bool{
	model.ProtocolVersion: true,
}

// Validator checks envelope shape and client version requirements.
type Validator struct {
	// MinClientVersion, when set (e.g. "v1.0.0"), rejects agents whose
	// ACP-Agent client version is older. Unversioned clients pass; the gate
	// exists to sunset known-broken client libraries, not to demand headers.
	MinClientVersion string
}

// ValidateEnvelope checks the structural invariants of an envelope.
// Version is checked first: per the gateway contract, UnsupportedVersion
// wins over every other malformation.
func (v *Validator) ValidateEnvelope(env *model.RequestEnvelope) error {
	if !SupportedVersions[env.ProtocolVersion] {
		return model.NewUnsupportedVersionError(env.ProtocolVersion)
	}
	if env.RequestID == "" {
		return model.NewMalformedEnvelopeError("request_id", "required")
	}
	if env.AgentID == "" {
		return model.NewMalformedEnvelopeError("agent_id", "required")
	}
	if env.AgentSignature == "" {
		return model.NewMalformedEnvelopeError("agent_signature", "required")
	}
	if env.TargetDomain == "" {
		return model.NewMalformedEnvelopeError("target_domain", "required")
	}
	if !env.IntentType.Valid() {
		return model.NewMalformedEnvelopeError("intent_type", "must be discover, negotiate, or execute")
	}
	if env.TargetEntityID == "" {
		return model.NewMalformedEnvelopeError("target_entity_id", "required")
	}
	if env.Constraints != nil && env.Constraints.BudgetMax < 0 {
		return model.NewMalformedEnvelopeError("constraints.budget_max", "must not be negative")
	}
	return nil
}

// CheckClientVersion applies the minimum client version gate to a parsed
// ACP-Agent hello. Versions compare per semver; invalid or absent versions
// are allowed through.
func (v *Validator) CheckClientVersion(hello *AgentHello) error {
	if v.MinClientVersion == "" || hello == nil || hello.ClientVersion == "" {
		return nil
	}
	if !semver.IsValid(hello.ClientVersion) {
		return nil
	}
	if semver.Compare(hello.ClientVersion, v.MinClientVersion) < 0 {
		return model.NewMalformedEnvelopeError("ACP-Agent",
			"client version "+hello.ClientVersion+" is older than required "+v.MinClientVersion)
	}
	return nil
}
