// Package trust verifies agent identity and produces reputation-weighted
// authorization decisions for ACP envelopes.
package trust

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"acp-gateway/internal/model"
)

// SignEd25519 computes the hex-encoded Ed25519 signature over the
// envelope's canonical bytes. Used by the CLI client and tests; the gateway
// itself only verifies.
func SignEd25519(env *model.RequestEnvelope, priv ed25519.PrivateKey) (string, error) {
	msg, err := env.CanonicalBytes()
	if err != nil {
		return "", fmt.Errorf("canonicalizing envelope: %w", err)
	}
	return hex.EncodeToString(ed25519.Sign(priv, msg)), nil
}

// SignHMAC computes the hex-encoded HMAC-SHA256 signature over the
// envelope's canonical bytes, for shared-secret agents.
func SignHMAC(env *model.RequestEnvelope, secret []byte) (string, error) {
	msg, err := env.CanonicalBytes()
	if err != nil {
		return "", fmt.Errorf("canonicalizing envelope: %w", err)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// verifyEd25519 checks a hex signature against the envelope using a
// hex-encoded public key.
func verifyEd25519(env *model.RequestEnvelope, pubHex, sigHex string) error {
	pub, err := hex.DecodeString(pubHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("stored public key is not a valid ed25519 key")
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("signature is not valid hex")
	}
	msg, err := env.CanonicalBytes()
	if err != nil {
		return fmt.Errorf("canonicalizing envelope: %w", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		return fmt.Errorf("ed25519 signature verification failed")
	}
	return nil
}

// verifyHMAC checks a hex signature against the envelope using a
// hex-encoded shared secret. Comparison is constant-time.
func verifyHMAC(env *model.RequestEnvelope, secretHex, sigHex string) error {
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return fmt.Errorf("stored secret is not valid hex")
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("signature is not valid hex")
	}
	msg, err := env.CanonicalBytes()
	if err != nil {
		return fmt.Errorf("canonicalizing envelope: %w", err)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(msg)
	if !hmac.Equal(mac.Sum(nil), sig) {
		return fmt.Errorf("hmac signature verification failed")
	}
	return nil
}
