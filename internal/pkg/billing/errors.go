package billing

import "errors"

var (
	// ErrSecretNotConfigured means no webhook secret is present in the
	// environment. This is an operational misconfiguration, never a
	// per-event condition.
	ErrSecretNotConfigured = errors.New("billing webhook secret is not configured")

	// ErrInvalidSignature means the signature header is missing or does not
	// match the request body. Such requests are rejected before any parse.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)
