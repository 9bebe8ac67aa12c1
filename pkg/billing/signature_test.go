package billing

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

func pinnedVerifier(at time.Time) *StripeVerifier {
	v := NewStripeVerifier(testSecret)
	v.now = func() time.Time { return at }
	return v
}

func TestStripeVerifier_ValidSignature(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1","type":"invoice.payment_succeeded"}`)

	header := SignPayload(payload, testSecret, now)
	err := pinnedVerifier(now).Verify(payload, header)
	assert.NoError(t, err)
}

func TestStripeVerifier_TamperedPayload(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1"}`)

	header := SignPayload(payload, testSecret, now)
	err := pinnedVerifier(now).Verify([]byte(`{"id":"evt_2"}`), header)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestStripeVerifier_WrongSecret(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1"}`)

	header := SignPayload(payload, "whsec_other", now)
	err := pinnedVerifier(now).Verify(payload, header)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestStripeVerifier_TimestampTolerance(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1"}`)

	tests := []struct {
		name     string
		signedAt time.Time
		valid    bool
	}{
		{"fresh", now.Add(-time.Minute), true},
		{"at edge", now.Add(-4 * time.Minute), true},
		{"stale", now.Add(-10 * time.Minute), false},
		{"from the future", now.Add(10 * time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := SignPayload(payload, testSecret, tt.signedAt)
			err := pinnedVerifier(now).Verify(payload, header)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidSignature)
			}
		})
	}
}

func TestStripeVerifier_MalformedHeaders(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1"}`)
	v := pinnedVerifier(now)

	headers := []string{
		"",
		"garbage",
		"t=notanumber,v1=abc",
		"t=1741608000",
		fmt.Sprintf("v1=%s", "deadbeef"),
	}
	for _, header := range headers {
		err := v.Verify(payload, header)
		assert.ErrorIs(t, err, ErrInvalidSignature, "header %q", header)
	}
}

func TestStripeVerifier_MultipleSignatures(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1"}`)

	// A rotated-secret header carries an old signature alongside the
	// current one; one match is enough.
	valid := SignPayload(payload, testSecret, now)
	header := valid + ",v1=0000000000000000000000000000000000000000000000000000000000000000"
	err := pinnedVerifier(now).Verify(payload, header)
	assert.NoError(t, err)
}

func TestSignPayload_HeaderShape(t *testing.T) {
	now := time.Unix(1741608000, 0)
	header := SignPayload([]byte("payload"), testSecret, now)
	require.Contains(t, header, "t=1741608000,")
	require.Contains(t, header, "v1=")
}
