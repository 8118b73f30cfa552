package webpush

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// testSubscriber plays the browser: it owns the private half of p256dh.
type testSubscriber struct {
	key  *ecdh.PrivateKey
	auth []byte
	sub  Subscription
}

func newTestSubscriber(t *testing.T, endpoint string) *testSubscriber {
	t.Helper()

	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	return &testSubscriber{
		key:  key,
		auth: auth,
		sub: Subscription{
			Endpoint: endpoint,
			Keys: Keys{
				P256dh: ToBase64URL(key.PublicKey().Bytes()),
				Auth:   ToBase64URL(auth),
			},
		},
	}
}

func hmacSHA256(key []byte, parts ...[]byte) []byte {
	mac := hmac.New(sha256.New, key)
	for _, p := range parts {
		mac.Write(p)
	}
	return mac.Sum(nil)
}

// decrypt is an independent aes128gcm decoder written straight from RFC 8291,
// using raw HMAC instead of the package's HKDF helpers.
func (s *testSubscriber) decrypt(t *testing.T, body []byte) []byte {
	t.Helper()

	require.Greater(t, len(body), 21)
	salt := body[:16]
	rs := binary.BigEndian.Uint32(body[16:20])
	require.EqualValues(t, 4096, rs)
	idlen := int(body[20])
	require.Equal(t, 65, idlen)
	keyID := body[21 : 21+idlen]
	ciphertext := body[21+idlen:]

	serverPub, err := ecdh.P256().NewPublicKey(keyID)
	require.NoError(t, err)
	shared, err := s.key.ECDH(serverPub)
	require.NoError(t, err)

	uaPublic := s.key.PublicKey().Bytes()
	prkKey := hmacSHA256(s.auth, shared)
	ikm := hmacSHA256(prkKey, []byte("WebPush: info\x00"), uaPublic, keyID, []byte{0x01})

	prk := hmacSHA256(salt, ikm)
	cek := hmacSHA256(prk, []byte("Content-Encoding: aes128gcm\x00"), []byte{0x01})[:16]
	nonce := hmacSHA256(prk, []byte("Content-Encoding: nonce\x00"), []byte{0x01})[:12]

	block, err := aes.NewCipher(cek)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)

	padded, err := gcm.Open(nil, nonce, ciphertext, nil)
	require.NoError(t, err)

	end := len(padded) - 1
	for end >= 0 && padded[end] == 0x00 {
		end--
	}
	require.GreaterOrEqual(t, end, 0)
	require.Equal(t, byte(0x02), padded[end], "last record must end with the 0x02 delimiter")
	return padded[:end]
}
