package webpush

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// RecordSize is the aes128gcm record size advertised in every message header.
	RecordSize = 4096
	saltLen    = 16
	keyLen     = 16
	nonceLen   = 12
	gcmTagLen  = 16
	// headerLen is salt(16) || rs(4) || idlen(1) || keyid(65).
	headerLen = saltLen + 4 + 1 + p256PointLen

	// paddingDelimiter marks the last record with no further padding.
	paddingDelimiter = 0x02

	// MaxPayloadSize is the largest plaintext that fits in one record.
	MaxPayloadSize = RecordSize - gcmTagLen - 1
)

var (
	webPushInfo    = []byte("WebPush: info\x00")
	cekInfo        = []byte("Content-Encoding: aes128gcm\x00")
	nonceInfo      = []byte("Content-Encoding: nonce\x00")
	recordSizeBits = binary.BigEndian.AppendUint32(nil, RecordSize)
)

// Encryptor encrypts push payloads with the RFC 8291 aes128gcm content encoding.
// A fresh salt and ephemeral ECDH key are drawn for every message.
type Encryptor struct {
	rand io.Reader
}

// NewEncryptor returns an Encryptor backed by crypto/rand.
func NewEncryptor() *Encryptor {
	return &Encryptor{rand: rand.Reader}
}

// Encrypt returns the complete request body for one push message:
// salt || record size || key id length || ephemeral public key || ciphertext+tag.
func (e *Encryptor) Encrypt(sub Subscription, plaintext []byte) ([]byte, error) {
	if len(plaintext) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(plaintext), MaxPayloadSize)
	}

	uaPublic, authSecret, err := sub.decodeKeys()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}

	curve := ecdh.P256()
	uaKey, err := curve.NewPublicKey(uaPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: import subscriber key: %v", ErrEncryptionFailed, err)
	}

	serverKey, err := curve.GenerateKey(e.rand)
	if err != nil {
		return nil, fmt.Errorf("%w: generate ephemeral key: %v", ErrEncryptionFailed, err)
	}
	serverPublic := serverKey.PublicKey().Bytes()

	sharedSecret, err := serverKey.ECDH(uaKey)
	if err != nil {
		return nil, fmt.Errorf("%w: ecdh: %v", ErrEncryptionFailed, err)
	}

	authInfo := ConcatBytes(webPushInfo, uaPublic, serverPublic)
	ikm, err := Expand(Extract(authSecret, sharedSecret), authInfo, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: derive ikm: %v", ErrEncryptionFailed, err)
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(e.rand, salt); err != nil {
		return nil, fmt.Errorf("%w: generate salt: %v", ErrEncryptionFailed, err)
	}

	prk := Extract(salt, ikm)
	cek, err := Expand(prk, cekInfo, keyLen)
	if err != nil {
		return nil, fmt.Errorf("%w: derive content key: %v", ErrEncryptionFailed, err)
	}
	nonce, err := Expand(prk, nonceInfo, nonceLen)
	if err != nil {
		return nil, fmt.Errorf("%w: derive nonce: %v", ErrEncryptionFailed, err)
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, fmt.Errorf("%w: aes: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: gcm: %v", ErrEncryptionFailed, err)
	}

	padded := ConcatBytes(plaintext, []byte{paddingDelimiter})
	ciphertext := gcm.Seal(nil, nonce, padded, nil)

	return ConcatBytes(
		salt,
		recordSizeBits,
		[]byte{byte(len(serverPublic))},
		serverPublic,
		ciphertext,
	), nil
}
