package webpush

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// joseSignatureLen is the size of an ES256 signature in JWS form: r and s, 32 bytes each.
const joseSignatureLen = 64

// ToBase64URL encodes b as unpadded base64url.
func ToBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// FromBase64URL decodes base64url text. Trailing padding is tolerated because
// some browsers and key tools emit it.
func FromBase64URL(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return b, nil
}

// ConcatBytes joins chunks in argument order into a new slice.
func ConcatBytes(chunks ...[]byte) []byte {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]byte, 0, n)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// DerToJose converts an ASN.1 DER ECDSA signature (SEQUENCE { INTEGER r, INTEGER s })
// into the fixed 64-byte r||s layout JWS ES256 requires.
//
// Input that is already 64 bytes is returned unchanged unless it is a complete DER
// structure, since some signers emit raw signatures.
func DerToJose(sig []byte) ([]byte, error) {
	if len(sig) == joseSignatureLen && !isCompleteDER(sig) {
		return sig, nil
	}

	r, s, err := parseDERSignature(sig)
	if err != nil {
		return nil, err
	}

	out := make([]byte, joseSignatureLen)
	copy(out[32-len(r):32], r)
	copy(out[joseSignatureLen-len(s):], s)
	return out, nil
}

func isCompleteDER(sig []byte) bool {
	_, _, err := parseDERSignature(sig)
	return err == nil
}

func parseDERSignature(sig []byte) (r, s []byte, err error) {
	if len(sig) < 8 || sig[0] != 0x30 {
		return nil, nil, fmt.Errorf("%w: missing SEQUENCE tag", ErrInvalidSignatureEncoding)
	}

	offset := 2
	seqLen := int(sig[1])
	if sig[1]&0x80 != 0 {
		// Long-form length. A P-256 signature never needs more than one length byte.
		if sig[1] != 0x81 || len(sig) < 3 {
			return nil, nil, fmt.Errorf("%w: unsupported SEQUENCE length", ErrInvalidSignatureEncoding)
		}
		seqLen = int(sig[2])
		offset = 3
	}
	if offset+seqLen != len(sig) {
		return nil, nil, fmt.Errorf("%w: SEQUENCE length mismatch", ErrInvalidSignatureEncoding)
	}

	r, offset, err = readDERInteger(sig, offset)
	if err != nil {
		return nil, nil, err
	}
	s, offset, err = readDERInteger(sig, offset)
	if err != nil {
		return nil, nil, err
	}
	if offset != len(sig) {
		return nil, nil, fmt.Errorf("%w: trailing bytes", ErrInvalidSignatureEncoding)
	}
	return r, s, nil
}

// readDERInteger returns the INTEGER at offset with its leading zero bytes stripped.
func readDERInteger(b []byte, offset int) ([]byte, int, error) {
	if offset+2 > len(b) || b[offset] != 0x02 {
		return nil, 0, fmt.Errorf("%w: missing INTEGER tag at offset %d", ErrInvalidSignatureEncoding, offset)
	}
	n := int(b[offset+1])
	offset += 2
	if n == 0 || offset+n > len(b) {
		return nil, 0, fmt.Errorf("%w: bad INTEGER length", ErrInvalidSignatureEncoding)
	}

	v := b[offset : offset+n]
	for len(v) > 0 && v[0] == 0x00 {
		v = v[1:]
	}
	if len(v) > 32 {
		return nil, 0, fmt.Errorf("%w: INTEGER wider than 32 bytes", ErrInvalidSignatureEncoding)
	}
	return v, offset + n, nil
}
