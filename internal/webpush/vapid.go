package webpush

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/lestrrat-go/jwx/jwk"
)

// vapidTokenLifetime bounds a single dispatch run plus headroom. Push services
// reject tokens that live longer than 24h.
const vapidTokenLifetime = 12 * time.Hour

// VapidKeyPair is the application server identity: base64url public point,
// base64url private scalar, and a mailto: or https: contact subject.
type VapidKeyPair struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// Configured reports whether both halves of the key pair are present.
func (k VapidKeyPair) Configured() bool {
	return k.PublicKey != "" && k.PrivateKey != ""
}

// VapidSigner produces ES256-signed VAPID JWTs for push service audiences.
type VapidSigner struct {
	key       *ecdsa.PrivateKey
	publicKey string
	subject   string
	now       func() time.Time
}

// NewVapidSigner validates the key pair and reconstructs the signing key from
// its JWK form {kty:"EC", crv:"P-256", d, x, y}.
func NewVapidSigner(keys VapidKeyPair) (*VapidSigner, error) {
	if !keys.Configured() {
		return nil, ErrNotConfigured
	}
	if keys.Subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidVapidKey)
	}
	if !strings.HasPrefix(keys.Subject, "mailto:") && !strings.HasPrefix(keys.Subject, "https:") {
		return nil, fmt.Errorf("%w: subject must be a mailto: or https: URI", ErrInvalidVapidKey)
	}

	pub, err := FromBase64URL(keys.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %w", ErrInvalidVapidKey, err)
	}
	if len(pub) != p256PointLen || pub[0] != 0x04 {
		return nil, fmt.Errorf("%w: public key must be a 65-byte uncompressed point", ErrInvalidVapidKey)
	}

	d, err := FromBase64URL(keys.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %w", ErrInvalidVapidKey, err)
	}
	if len(d) != 32 {
		return nil, fmt.Errorf("%w: private key must be 32 bytes, got %d", ErrInvalidVapidKey, len(d))
	}

	// The scalar must actually belong to the advertised public key, otherwise every
	// push service would reject our tokens with a bare 401/403.
	derived, err := ecdh.P256().NewPrivateKey(d)
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", ErrInvalidVapidKey, err)
	}
	if string(derived.PublicKey().Bytes()) != string(pub) {
		return nil, fmt.Errorf("%w: private key does not match public key", ErrInvalidVapidKey)
	}

	key, err := privateKeyFromJWK(pub, d)
	if err != nil {
		return nil, err
	}

	return &VapidSigner{
		key:       key,
		publicKey: ToBase64URL(pub),
		subject:   keys.Subject,
		now:       time.Now,
	}, nil
}

func privateKeyFromJWK(pub, d []byte) (*ecdsa.PrivateKey, error) {
	raw, err := json.Marshal(map[string]string{
		"kty": "EC",
		"crv": "P-256",
		"d":   ToBase64URL(d),
		"x":   ToBase64URL(pub[1:33]),
		"y":   ToBase64URL(pub[33:65]),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVapidKey, err)
	}

	parsed, err := jwk.ParseKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: jwk: %v", ErrInvalidVapidKey, err)
	}

	var key ecdsa.PrivateKey
	if err := parsed.Raw(&key); err != nil {
		return nil, fmt.Errorf("%w: jwk: %v", ErrInvalidVapidKey, err)
	}
	return &key, nil
}

// PublicKey returns the base64url public key clients pass to pushManager.subscribe().
func (s *VapidSigner) PublicKey() string {
	return s.publicKey
}

// Sign returns a compact JWT asserting aud=audience, sub=subject, exp=now+12h.
func (s *VapidSigner) Sign(audience string) (string, error) {
	if audience == "" {
		return "", fmt.Errorf("vapid: audience is required")
	}

	token := jwt.NewWithClaims(signingMethodES256DER, jwt.MapClaims{
		"aud": audience,
		"sub": s.subject,
		"exp": s.now().Add(vapidTokenLifetime).Unix(),
	})
	token.Header = map[string]interface{}{
		"typ": "JWT",
		"alg": signingMethodES256DER.Alg(),
	}

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("vapid: sign token: %w", err)
	}
	return signed, nil
}

// AuthorizationHeader returns the RFC 8292 "vapid t=..., k=..." header value.
func (s *VapidSigner) AuthorizationHeader(audience string) (string, error) {
	token, err := s.Sign(audience)
	if err != nil {
		return "", err
	}
	return "vapid t=" + token + ", k=" + s.publicKey, nil
}

// signingMethodES256DER signs through crypto.Signer, which yields DER, and converts
// the result to the raw r||s form JWS expects. Verification is plain ES256.
var signingMethodES256DER = &derSigningMethod{}

type derSigningMethod struct{}

func (m *derSigningMethod) Alg() string {
	return "ES256"
}

func (m *derSigningMethod) Verify(signingString, signature string, key interface{}) error {
	return jwt.SigningMethodES256.Verify(signingString, signature, key)
}

func (m *derSigningMethod) Sign(signingString string, key interface{}) (string, error) {
	signer, ok := key.(crypto.Signer)
	if !ok {
		return "", jwt.ErrInvalidKeyType
	}

	digest := sha256.Sum256([]byte(signingString))
	der, err := signer.Sign(rand.Reader, digest[:], crypto.SHA256)
	if err != nil {
		return "", err
	}

	sig, err := DerToJose(der)
	if err != nil {
		return "", err
	}
	return ToBase64URL(sig), nil
}
