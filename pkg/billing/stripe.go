package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/platinummonkey/askdata/pkg/observability"
)

// DefaultStripeAPIBase is the production Stripe API endpoint.
const DefaultStripeAPIBase = "https://api.stripe.com"

// StripeConfig configures the outbound Stripe client.
type StripeConfig struct {
	APIBase    string // defaults to DefaultStripeAPIBase
	SecretKey  string
	PriceID    string // recurring price for the pro tier
	SuccessURL string
	CancelURL  string
}

// StripeClient creates checkout sessions for subscription upgrades.
type StripeClient struct {
	httpClient *http.Client
	cfg        StripeConfig
	logger     *observability.Logger
}

// NewStripeClient creates a Stripe API client.
func NewStripeClient(cfg StripeConfig, logger *observability.Logger) *StripeClient {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultStripeAPIBase
	}
	return &StripeClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cfg:        cfg,
		logger:     logger,
	}
}

type checkoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCheckoutSession starts a subscription-mode checkout for the user
// and returns the hosted payment page URL. The user ID travels in the
// session metadata so the completion webhook can attribute the upgrade.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, userID, email string) (string, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", c.cfg.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", c.cfg.SuccessURL)
	form.Set("cancel_url", c.cfg.CancelURL)
	form.Set("metadata[user_id]", userID)
	if email != "" {
		form.Set("customer_email", email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.APIBase+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build checkout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("checkout session request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read checkout response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(map[string]interface{}{
			"status":  resp.StatusCode,
			"user_id": userID,
		}).Error("Stripe rejected checkout session")
		return "", fmt.Errorf("stripe returned status %d", resp.StatusCode)
	}

	var session checkoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return "", fmt.Errorf("failed to decode checkout session: %w", err)
	}
	if session.URL == "" {
		return "", fmt.Errorf("checkout session %s has no URL", session.ID)
	}

	c.logger.WithFields(map[string]interface{}{
		"user_id":    userID,
		"session_id": session.ID,
	}).Info("Checkout session created")
	return session.URL, nil
}
