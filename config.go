package bankroll

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Config is the immutable set of policies of a reconciliation run. It is
// passed by value to every stage.
type Config struct {
	// SourcePriority orders sources from most to least authoritative. It breaks
	// ties when sorting trades and decides which record a duplicate cluster
	// keeps. Unlisted sources rank after every listed one, all equally.
	SourcePriority []Source
	// Disabled sources are ignored entirely.
	Disabled []Source

	Method CostBasisMethod
	Mode   OversellMode

	// Tolerance is the maximum distance between the timestamps of two
	// duplicate trades.
	Tolerance time.Duration
	// FeeTolerance is the maximum difference between the fees of two
	// duplicate trades. Fees further apart denote distinct executions.
	FeeTolerance Quantity
	// QuantityTolerance is the maximum difference between a replayed and a
	// reported position before a discrepancy is raised.
	QuantityTolerance Quantity

	// DefaultCurrency applies to records that do not state one.
	DefaultCurrency string
	// Location interprets date-only and zone-less timestamps.
	Location *time.Location

	// SnapshotFallback includes positions known only from snapshots in the
	// portfolio view.
	SnapshotFallback bool
}

// DefaultConfig returns the policies used when nothing is configured: FIFO,
// strict accounting, one second of timestamp tolerance, one cent of fee
// tolerance, USD.
func DefaultConfig() Config {
	return Config{
		Method:            FIFO,
		Mode:              Strict,
		Tolerance:         time.Second,
		FeeTolerance:      Q(0.01),
		QuantityTolerance: Q(0),
		DefaultCurrency:   "USD",
		Location:          time.UTC,
	}
}

// Validate checks the configuration and reports every problem found.
func (c Config) Validate() error {
	var errs []error
	if c.Tolerance < 0 {
		errs = append(errs, fmt.Errorf("tolerance must not be negative, got %v", c.Tolerance))
	}
	if c.FeeTolerance.IsNegative() {
		errs = append(errs, fmt.Errorf("fee tolerance must not be negative, got %v", c.FeeTolerance))
	}
	if c.QuantityTolerance.IsNegative() {
		errs = append(errs, fmt.Errorf("quantity tolerance must not be negative, got %v", c.QuantityTolerance))
	}
	if err := ValidateCurrency(c.DefaultCurrency); err != nil {
		errs = append(errs, fmt.Errorf("default currency: %w", err))
	}
	if c.Method != FIFO && c.Method != AverageCost {
		errs = append(errs, fmt.Errorf("unknown cost basis method %d", c.Method))
	}
	if c.Mode != Strict && c.Mode != Permissive {
		errs = append(errs, fmt.Errorf("unknown oversell mode %d", c.Mode))
	}
	seen := make(map[Source]bool)
	for _, s := range c.SourcePriority {
		if seen[s] {
			errs = append(errs, fmt.Errorf("source %q listed twice in priority", s))
		}
		seen[s] = true
	}
	return errors.Join(errs...)
}

// Enabled reports whether records from s take part in the run.
func (c Config) Enabled(s Source) bool {
	return !slices.Contains(c.Disabled, s)
}

// Rank returns the priority rank of s: 0 is the most authoritative. Unlisted
// sources share the rank after the last listed one.
func (c Config) Rank(s Source) int {
	if i := slices.Index(c.SourcePriority, s); i >= 0 {
		return i
	}
	return len(c.SourcePriority)
}

// location never returns nil.
func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// currency never returns an empty code.
func (c Config) currency() string {
	if c.DefaultCurrency == "" {
		return "USD"
	}
	return c.DefaultCurrency
}
