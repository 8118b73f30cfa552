package webpush

import "errors"

var (
	// ErrDecode reports malformed base64url input.
	ErrDecode = errors.New("invalid base64url encoding")
	// ErrInvalidSignatureEncoding reports a signature that is neither DER nor raw r||s.
	ErrInvalidSignatureEncoding = errors.New("invalid ECDSA signature encoding")
	// ErrInvalidVapidKey reports a VAPID key pair that cannot be used for ES256.
	ErrInvalidVapidKey = errors.New("invalid VAPID key")
	// ErrEncryptionFailed wraps any failure of the aes128gcm pipeline.
	ErrEncryptionFailed = errors.New("push payload encryption failed")
	// ErrInvalidSubscription reports missing or malformed subscription fields.
	ErrInvalidSubscription = errors.New("invalid push subscription")
	// ErrPayloadTooLarge reports a payload that does not fit in a single 4096-byte record.
	ErrPayloadTooLarge = errors.New("push payload exceeds record size")
	// ErrNotConfigured reports that no VAPID key pair is configured.
	ErrNotConfigured = errors.New("push notifications not configured")
)
