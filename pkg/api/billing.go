package api

import (
	"net/http"

	"github.com/platinummonkey/askdata/pkg/httputil"
)

// checkoutResponse carries the hosted payment page URL.
type checkoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}

// handleCreateCheckout starts a Stripe checkout session for the
// authenticated user's upgrade to pro.
func (s *Server) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	if s.checkout == nil {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "billing is not configured")
		return
	}

	url, err := s.checkout.CreateCheckoutSession(r.Context(), user.ID, user.Email)
	if err != nil {
		s.logger.WithError(err).Error("Failed to create checkout session")
		httputil.WriteBadGateway(w, "failed to create checkout session")
		return
	}

	httputil.WriteSuccess(w, checkoutResponse{CheckoutURL: url})
}
