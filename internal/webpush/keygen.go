package webpush

import (
	"crypto/ecdh"
	"crypto/rand"
	"fmt"
)

// GenerateVapidKeys creates a fresh P-256 key pair in the base64url form the
// VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY settings expect.
func GenerateVapidKeys(subject string) (VapidKeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return VapidKeyPair{}, fmt.Errorf("generate VAPID key: %w", err)
	}

	return VapidKeyPair{
		PublicKey:  ToBase64URL(priv.PublicKey().Bytes()),
		PrivateKey: ToBase64URL(priv.Bytes()),
		Subject:    subject,
	}, nil
}
