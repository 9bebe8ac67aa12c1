// Package api exposes the HTTP surface of the service.
//
// Two groups of routes share one gorilla/mux router: the Stripe webhook
// endpoints, which authenticate by payload signature, and the /api/*
// endpoints, which authenticate the requesting user through an
// auth.Provider. Quota and upload caps are enforced by the analysis
// orchestrator; handlers only translate outcomes to status codes.
package api
