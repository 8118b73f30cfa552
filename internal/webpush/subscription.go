package webpush

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

const (
	// p256PointLen is the length of an uncompressed P-256 point: 0x04 || X || Y.
	p256PointLen = 65
	// authSecretLen is the length of the subscriber's authentication secret.
	authSecretLen = 16
)

// Subscription is what a browser's PushManager.subscribe() hands the application.
type Subscription struct {
	Endpoint string `json:"endpoint" firestore:"endpoint"`
	Keys     Keys   `json:"keys" firestore:"keys"`
}

// Keys holds the subscriber's ECDH public key and auth secret, both base64url.
type Keys struct {
	P256dh string `json:"p256dh" firestore:"p256dh"`
	Auth   string `json:"auth" firestore:"auth"`
}

// Validate checks the endpoint and decodes both keys to their required sizes.
func (s Subscription) Validate() error {
	if _, err := Origin(s.Endpoint); err != nil {
		return err
	}
	_, _, err := s.decodeKeys()
	return err
}

func (s Subscription) decodeKeys() (p256dh, auth []byte, err error) {
	if s.Keys.P256dh == "" || s.Keys.Auth == "" {
		return nil, nil, fmt.Errorf("%w: keys.p256dh and keys.auth are required", ErrInvalidSubscription)
	}

	p256dh, err = FromBase64URL(s.Keys.P256dh)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: keys.p256dh: %w", ErrInvalidSubscription, err)
	}
	if len(p256dh) != p256PointLen || p256dh[0] != 0x04 {
		return nil, nil, fmt.Errorf("%w: keys.p256dh must be a 65-byte uncompressed P-256 point", ErrInvalidSubscription)
	}

	auth, err = FromBase64URL(s.Keys.Auth)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: keys.auth: %w", ErrInvalidSubscription, err)
	}
	if len(auth) != authSecretLen {
		return nil, nil, fmt.Errorf("%w: keys.auth must be 16 bytes, got %d", ErrInvalidSubscription, len(auth))
	}

	return p256dh, auth, nil
}

// Origin returns scheme://host of a push endpoint, which is the VAPID audience.
// Endpoints must be https; plain http is accepted for loopback hosts only.
func Origin(endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("%w: endpoint is required", ErrInvalidSubscription)
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: endpoint is not an absolute URL", ErrInvalidSubscription)
	}

	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		if !isLoopback(u.Hostname()) {
			return "", fmt.Errorf("%w: endpoint must use https", ErrInvalidSubscription)
		}
	default:
		return "", fmt.Errorf("%w: unsupported endpoint scheme %q", ErrInvalidSubscription, u.Scheme)
	}

	return strings.ToLower(u.Scheme) + "://" + u.Host, nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
