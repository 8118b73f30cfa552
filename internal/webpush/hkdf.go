package webpush

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// maxExpandLength is the HKDF-SHA-256 output limit (255 blocks of 32 bytes).
const maxExpandLength = 255 * sha256.Size

// Extract runs HKDF-Extract: HMAC-SHA-256 keyed by salt over ikm.
func Extract(salt, ikm []byte) []byte {
	return hkdf.Extract(sha256.New, ikm, salt)
}

// Expand runs HKDF-Expand over prk and info and returns exactly length bytes.
func Expand(prk, info []byte, length int) ([]byte, error) {
	if length <= 0 || length > maxExpandLength {
		return nil, fmt.Errorf("hkdf: invalid output length %d", length)
	}
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, info), out); err != nil {
		return nil, fmt.Errorf("hkdf: expand: %w", err)
	}
	return out, nil
}
