package consent

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrBadSignature is deliberately generic.
var ErrBadSignature = errors.New("consent verification failed")

// VerifySignature checks an HMAC-SHA256 signature over body in constant
// time. Accepted forms are "sha256=<hex>" and plain hex.
func VerifySignature(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	actual, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return ErrBadSignature
	}
	if subtle.ConstantTimeCompare(expected, actual) != 1 {
		return ErrBadSignature
	}
	return nil
}

// Sign returns the "sha256=<hex>" signature for body. Consent UIs use it to
// sign their verdicts.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
