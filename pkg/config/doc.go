// Package config loads service configuration from ASKDATA_* environment
// variables and validates it before anything starts.
//
// Backend selection (memory vs postgres storage, static vs OIDC auth) is
// always an explicit configuration value; nothing is inferred from the
// shape of credentials.
package config
