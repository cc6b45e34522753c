package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyWebhookSignature checks that the raw request body carries a valid
// HMAC-SHA256 signature from the billing provider. It must run before the
// body is parsed as JSON. A missing or mismatching signature yields
// ErrInvalidSignature; a missing secret yields ErrSecretNotConfigured.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string) error {
	secret := strings.TrimSpace(webhookSecret)
	if secret == "" {
		return ErrSecretNotConfigured
	}

	sig := strings.TrimSpace(signatureHeader)
	if sig == "" {
		return ErrInvalidSignature
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), decodedSig) {
		return ErrInvalidSignature
	}
	return nil
}

// SignWebhookPayload computes the hex signature for a payload. Used by
// tests and by local tooling that replays provider events.
func SignWebhookPayload(payload []byte, webhookSecret string) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
