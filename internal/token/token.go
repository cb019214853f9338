package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrInvalid is returned when a signature does not match the payload.
var ErrInvalid = errors.New("invalid signature")

// Sign computes the hex HMAC-SHA256 of a webhook payload. Receivers verify
// it against the validation token they registered with their push config.
func Sign(secret []byte, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a hex signature against the payload in constant time.
func Verify(secret []byte, payload []byte, signature string) error {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalid
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), sig) {
		return ErrInvalid
	}
	return nil
}
