package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/platinummonkey/askdata/pkg/billing"
	"github.com/platinummonkey/askdata/pkg/httputil"
)

// maxWebhookBody bounds how much of a webhook delivery we read. Stripe
// events are small; anything larger is not a Stripe event.
const maxWebhookBody = 1 << 20

// handleStripeWebhook validates and processes one Stripe delivery.
// Signature and parse failures are 400, infrastructure failures are 500,
// and every processed event is acknowledged with 200 so Stripe stops
// retrying business failures we already recorded.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		httputil.WriteBadRequest(w, "missing stripe-signature header")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		httputil.WriteBadRequest(w, "unreadable webhook payload")
		return
	}

	result, err := s.webhooks.Handle(r.Context(), payload, signature)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) || errors.Is(err, billing.ErrMalformedEvent) {
			httputil.WriteError(w, http.StatusBadRequest, err)
			return
		}
		s.logger.WithError(err).Error("Webhook processing failed")
		httputil.WriteInternalError(w, errors.New("webhook processing failed"))
		return
	}

	httputil.WriteSuccess(w, result)
}

func (s *Server) handleWebhookHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "healthy"})
}
