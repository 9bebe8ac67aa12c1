package tiers

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/askdata/pkg/observability"
)

// ID identifies a subscription tier.
type ID string

const (
	Free       ID = "free"
	Pro        ID = "pro"
	Enterprise ID = "enterprise"
	Admin      ID = "admin"
)

// FreeDailyLimit is the number of analyses a free user gets per UTC day.
const FreeDailyLimit = 1

// UnlimitedAnalyses marks a tier with no daily cap.
const UnlimitedAnalyses = -1

// ErrUnknownTier is returned when a tier ID is not in the catalog.
var ErrUnknownTier = errors.New("unknown subscription tier")

// Definition holds the entitlements of a single tier.
type Definition struct {
	ID                 ID
	DailyAnalysisLimit int // UnlimitedAnalyses means no cap
	MaxUploadMB        int64
	AdvancedFeatures   bool
	PrioritySupport    bool
	RetentionDays      int
}

// Unlimited reports whether the tier has no daily analysis cap.
func (d Definition) Unlimited() bool {
	return d.DailyAnalysisLimit < 0
}

// MaxUploadBytes returns the upload cap in bytes.
func (d Definition) MaxUploadBytes() int64 {
	return d.MaxUploadMB * 1024 * 1024
}

// Catalog maps tier IDs to their definitions.
type Catalog struct {
	defs map[ID]Definition
}

// NewCatalog builds the standard catalog. A freeDailyLimit of 0 keeps the
// default FreeDailyLimit; negative means unlimited.
func NewCatalog(freeDailyLimit int) *Catalog {
	if freeDailyLimit == 0 {
		freeDailyLimit = FreeDailyLimit
	}
	return &Catalog{
		defs: map[ID]Definition{
			Free: {
				ID:                 Free,
				DailyAnalysisLimit: freeDailyLimit,
				MaxUploadMB:        10,
				RetentionDays:      7,
			},
			Pro: {
				ID:                 Pro,
				DailyAnalysisLimit: UnlimitedAnalyses,
				MaxUploadMB:        100,
				AdvancedFeatures:   true,
				PrioritySupport:    true,
				RetentionDays:      30,
			},
			Enterprise: {
				ID:                 Enterprise,
				DailyAnalysisLimit: UnlimitedAnalyses,
				MaxUploadMB:        500,
				AdvancedFeatures:   true,
				PrioritySupport:    true,
				RetentionDays:      90,
			},
			Admin: {
				ID:                 Admin,
				DailyAnalysisLimit: UnlimitedAnalyses,
				MaxUploadMB:        1000,
				AdvancedFeatures:   true,
				PrioritySupport:    true,
				RetentionDays:      365,
			},
		},
	}
}

// Known reports whether the tier ID exists in the catalog.
func (c *Catalog) Known(id ID) bool {
	_, ok := c.defs[id]
	return ok
}

// LimitsFor returns the definition for a tier, or ErrUnknownTier.
func (c *Catalog) LimitsFor(id ID) (Definition, error) {
	def, ok := c.defs[id]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownTier, id)
	}
	return def, nil
}

// LimitsForOrFree returns the definition for a tier, falling back to free
// limits when the tier is unknown. Request gating uses this so a corrupt
// tier value degrades entitlements instead of failing the request.
func (c *Catalog) LimitsForOrFree(id ID, logger *observability.Logger) Definition {
	def, err := c.LimitsFor(id)
	if err != nil {
		if logger != nil {
			logger.WithField("tier", string(id)).Warn("Unknown tier, falling back to free limits")
		}
		return c.defs[Free]
	}
	return def
}
