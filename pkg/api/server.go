package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/askdata/pkg/analysis"
	"github.com/platinummonkey/askdata/pkg/auth"
	"github.com/platinummonkey/askdata/pkg/billing"
	"github.com/platinummonkey/askdata/pkg/history"
	"github.com/platinummonkey/askdata/pkg/httputil"
	"github.com/platinummonkey/askdata/pkg/observability"
	"github.com/platinummonkey/askdata/pkg/usage"
)

// CheckoutCreator starts a hosted checkout session for an upgrade.
type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, userID, email string) (string, error)
}

// Deps are the collaborators the HTTP layer dispatches into.
type Deps struct {
	Logger       *observability.Logger
	Metrics      *observability.Metrics
	Auth         auth.Provider
	Orchestrator *analysis.Orchestrator
	Ledger       *usage.Ledger
	History      history.Store
	Webhooks     *billing.Processor

	// Checkout may be nil when Stripe checkout is not configured; the
	// route then reports the feature as unavailable.
	Checkout CheckoutCreator
}

// Server routes HTTP requests to the analysis, usage, history, and billing
// components.
type Server struct {
	router   *mux.Router
	logger   *observability.Logger
	auth     auth.Provider
	orch     *analysis.Orchestrator
	ledger   *usage.Ledger
	history  history.Store
	webhooks *billing.Processor
	checkout CheckoutCreator
}

// NewServer builds the router with its middleware chain and routes.
func NewServer(deps Deps) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   deps.Logger,
		auth:     deps.Auth,
		orch:     deps.Orchestrator,
		ledger:   deps.Ledger,
		history:  deps.History,
		webhooks: deps.Webhooks,
		checkout: deps.Checkout,
	}

	chain := []mux.MiddlewareFunc{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(deps.Logger),
		httputil.RecoveryMiddleware(deps.Logger),
	}
	if deps.Metrics != nil {
		chain = append(chain, observability.HTTPMetricsMiddleware(deps.Metrics))
	}
	s.router.Use(chain...)

	s.router.HandleFunc("/webhook/stripe", s.handleStripeWebhook).Methods(http.MethodPost)
	s.router.HandleFunc("/webhook/health", s.handleWebhookHealth).Methods(http.MethodGet)

	apiRouter := s.router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/analyses", s.requireUser(s.handleCreateAnalysis)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/usage", s.requireUser(s.handleGetUsage)).Methods(http.MethodGet)
	apiRouter.HandleFunc("/history", s.requireUser(s.handleListHistory)).Methods(http.MethodGet)
	apiRouter.HandleFunc("/history/stats", s.requireUser(s.handleHistoryStats)).Methods(http.MethodGet)
	apiRouter.HandleFunc("/history/{id}", s.requireUser(s.handleGetHistoryRecord)).Methods(http.MethodGet)
	apiRouter.HandleFunc("/billing/checkout", s.requireUser(s.handleCreateCheckout)).Methods(http.MethodPost)

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}
