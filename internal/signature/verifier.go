package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Header carries the hex HMAC-SHA256 of the raw request body.
const Header = "X-Signature"

var (
	// ErrSignatureInvalid means the header did not match the body.
	ErrSignatureInvalid = errors.New("signature invalid")
	// ErrSignatureMissing means no header was sent and unsigned requests are not allowed.
	ErrSignatureMissing = errors.New("signature missing")
	// ErrNoSecret is returned by NewVerifier when verification is required but no secret is set.
	ErrNoSecret = errors.New("webhook secret is required unless unsigned requests are allowed")
)

// Result tells the caller whether the body was actually authenticated.
type Result int

const (
	Verified Result = iota
	Unverified
)

// Verifier checks gateway signatures over the exact bytes received.
type Verifier struct {
	secret        []byte
	allowUnsigned bool
}

// NewVerifier returns a Verifier. allowUnsigned lets requests without a signature header through
// as Unverified; it exists for gateway test mode and must stay off in production.
func NewVerifier(secret string, allowUnsigned bool) (*Verifier, error) {
	if secret == "" && !allowUnsigned {
		return nil, ErrNoSecret
	}
	return &Verifier{secret: []byte(secret), allowUnsigned: allowUnsigned}, nil
}

// Verify checks header against body. A present header is always checked, even when unsigned
// requests are allowed.
func (v *Verifier) Verify(body []byte, header string) (Result, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		if v.allowUnsigned {
			return Unverified, nil
		}
		return Unverified, ErrSignatureMissing
	}
	if len(v.secret) == 0 {
		return Unverified, ErrSignatureInvalid
	}

	got, err := hex.DecodeString(strings.ToLower(header))
	if err != nil {
		return Unverified, ErrSignatureInvalid
	}
	if !hmac.Equal(got, Sign(v.secret, body)) {
		return Unverified, ErrSignatureInvalid
	}
	return Verified, nil
}

// Sign computes the raw HMAC-SHA256 of body.
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

// SignHex is Sign rendered the way the gateway sends it.
func SignHex(secret string, body []byte) string {
	return hex.EncodeToString(Sign([]byte(secret), body))
}
