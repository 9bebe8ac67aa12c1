package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance bounds how old a signed delivery may be before it is
// rejected as a possible replay.
const DefaultTolerance = 5 * time.Minute

// SignatureVerifier authenticates a webhook delivery.
type SignatureVerifier interface {
	Verify(payload []byte, header string) error
}

// StripeVerifier implements Stripe's v1 signing scheme: the header carries
// a unix timestamp and one or more HMAC-SHA256 signatures computed over
// "<timestamp>.<payload>".
type StripeVerifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewStripeVerifier creates a verifier for the given endpoint secret.
func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{
		secret:    secret,
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
}

// Verify checks the Stripe-Signature header against the payload. All
// failure modes wrap ErrInvalidSignature; the endpoint fails closed.
func (v *StripeVerifier) Verify(payload []byte, header string) error {
	if header == "" {
		return fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}

	var timestamp int64
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return fmt.Errorf("%w: header missing timestamp or v1 signature", ErrInvalidSignature)
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age > v.tolerance || age < -v.tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := computeSignature(payload, v.secret, timestamp)
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching v1 signature", ErrInvalidSignature)
}

// SignPayload produces a Stripe-Signature header value for a payload. Used
// by tests and local delivery tooling.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, computeSignature(payload, secret, ts))
}

func computeSignature(payload []byte, secret string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
