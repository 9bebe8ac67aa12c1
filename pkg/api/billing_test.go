package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCheckout struct {
	url       string
	err       error
	gotUserID string
	gotEmail  string
}

func (f *fakeCheckout) CreateCheckoutSession(ctx context.Context, userID, email string) (string, error) {
	f.gotUserID = userID
	f.gotEmail = email
	return f.url, f.err
}

func TestCreateCheckout(t *testing.T) {
	checkout := &fakeCheckout{url: "https://checkout.stripe.com/pay/cs_1"}
	f := newFixture(t, fixtureOptions{checkout: checkout})

	rr := f.do(httptest.NewRequest(http.MethodPost, "/api/billing/checkout", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body checkoutResponse
	decodeJSON(t, rr, &body)
	assert.Equal(t, "https://checkout.stripe.com/pay/cs_1", body.CheckoutURL)
	assert.Equal(t, fixtureUser.ID, checkout.gotUserID)
	assert.Equal(t, fixtureUser.Email, checkout.gotEmail)
}

func TestCreateCheckout_NotConfigured(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	rr := f.do(httptest.NewRequest(http.MethodPost, "/api/billing/checkout", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestCreateCheckout_UpstreamFailure(t *testing.T) {
	checkout := &fakeCheckout{err: errors.New("stripe is down")}
	f := newFixture(t, fixtureOptions{checkout: checkout})

	rr := f.do(httptest.NewRequest(http.MethodPost, "/api/billing/checkout", nil))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}
