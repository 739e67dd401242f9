// Package auth verifies organization request signatures.
//
// A signed request carries
//
//	Authorization: APIKey=<key>,signature=<hex>,timestamp=<unix seconds>
//
// where signature is the lowercase hex SHA-512 of key, secret and timestamp
// concatenated. Field names are case-insensitive.
package auth

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultSignatureWindow is the accepted clock skew between client and server
const DefaultSignatureWindow = 300 * time.Second

var (
	ErrMalformedAuthorization = errors.New("malformed authorization header")
	ErrSignatureExpired       = errors.New("signature timestamp outside the accepted window")
	ErrInvalidSignature       = errors.New("invalid signature")
)

// SignedCredentials is a parsed Authorization header
type SignedCredentials struct {
	APIKey    string
	Signature string
	Timestamp int64
}

// ParseAuthorization parses the comma-separated key=value header
func ParseAuthorization(header string) (SignedCredentials, error) {
	var creds SignedCredentials
	var ts string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return SignedCredentials{}, fmt.Errorf("%w: %q", ErrMalformedAuthorization, strings.TrimSpace(part))
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "apikey":
			creds.APIKey = value
		case "signature":
			creds.Signature = strings.ToLower(value)
		case "timestamp":
			ts = value
		}
	}
	if creds.APIKey == "" || creds.Signature == "" || ts == "" {
		return SignedCredentials{}, fmt.Errorf("%w: apikey, signature and timestamp are required", ErrMalformedAuthorization)
	}
	parsed, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return SignedCredentials{}, fmt.Errorf("%w: timestamp %q", ErrMalformedAuthorization, ts)
	}
	creds.Timestamp = parsed
	return creds, nil
}

// Sign computes the signature for a key, secret and timestamp
func Sign(apiKey, secret string, timestamp int64) string {
	sum := sha512.Sum512([]byte(apiKey + secret + strconv.FormatInt(timestamp, 10)))
	return hex.EncodeToString(sum[:])
}

// SignatureVerifier checks signed credentials against an organization secret
type SignatureVerifier struct {
	window time.Duration
	now    func() time.Time
}

// NewSignatureVerifier creates a verifier. A non-positive window uses the default.
func NewSignatureVerifier(window time.Duration) *SignatureVerifier {
	if window <= 0 {
		window = DefaultSignatureWindow
	}
	return &SignatureVerifier{window: window, now: time.Now}
}

// WithClock replaces the time source, for tests
func (v *SignatureVerifier) WithClock(now func() time.Time) *SignatureVerifier {
	v.now = now
	return v
}

// Verify checks the timestamp window and the signature in constant time
func (v *SignatureVerifier) Verify(creds SignedCredentials, secret string) error {
	skew := v.now().Unix() - creds.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > v.window {
		return ErrSignatureExpired
	}
	expected := Sign(creds.APIKey, secret, creds.Timestamp)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(creds.Signature)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}
