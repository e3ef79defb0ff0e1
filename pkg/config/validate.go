package config

import (
	"fmt"
)

// ValidateCore checks the configuration a service cannot run without.
func (c *Config) ValidateCore() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWT.Secret == "" || c.JWT.Secret == "change-this-secret" {
		return fmt.Errorf("JWT_SECRET must be set to a non-default value")
	}
	if c.Executor.Concurrency < 1 {
		return fmt.Errorf("EXECUTOR_CONCURRENCY must be at least 1")
	}
	return c.ValidateFeeTiers()
}

// ValidateFeeTiers verifies the tier table partitions [0, inf) with no gaps
// or overlaps: tiers are ordered, the first starts at 0, each tier's Max
// equals the next tier's Min, and only the last tier is unbounded.
func (c *Config) ValidateFeeTiers() error {
	tiers := c.Fees.Tiers
	if len(tiers) == 0 {
		return fmt.Errorf("fee tier table is empty")
	}
	if !tiers[0].Min.IsZero() {
		return fmt.Errorf("first fee tier must start at 0, starts at %s", tiers[0].Min)
	}
	for i, t := range tiers {
		if t.FlatFee == nil && t.Percentage == nil {
			return fmt.Errorf("fee tier %q has neither flat fee nor percentage", t.Label)
		}
		if t.FlatFee != nil && t.Percentage != nil {
			return fmt.Errorf("fee tier %q has both flat fee and percentage", t.Label)
		}
		last := i == len(tiers)-1
		if last {
			if t.Max != nil {
				return fmt.Errorf("last fee tier %q must be unbounded", t.Label)
			}
			continue
		}
		if t.Max == nil {
			return fmt.Errorf("fee tier %q is unbounded but not last", t.Label)
		}
		if !t.Max.GreaterThan(t.Min) {
			return fmt.Errorf("fee tier %q has max <= min", t.Label)
		}
		if !tiers[i+1].Min.Equal(*t.Max) {
			return fmt.Errorf("gap or overlap between fee tiers %q and %q", t.Label, tiers[i+1].Label)
		}
	}
	return nil
}
