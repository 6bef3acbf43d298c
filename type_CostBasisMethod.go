package bankroll

import (
	"fmt"
	"strings"
)

// CostBasisMethod defines the lot-matching policy used to attribute cost
// basis to sold quantities. It is fixed for a whole run and reported in the
// portfolio view, since the two methods give different realized gains for the
// same trades.
type CostBasisMethod int

const (
	// FIFO (First-In, First-Out) assumes the first units bought are the first ones sold.
	FIFO CostBasisMethod = iota
	// AverageCost pools all units and removes cost at the pool's average price.
	AverageCost
)

func (m CostBasisMethod) String() string {
	switch m {
	case AverageCost:
		return "average"
	case FIFO:
		return "fifo"
	default:
		return "unknown"
	}
}

// ParseCostBasisMethod parses a string into a CostBasisMethod.
func ParseCostBasisMethod(s string) (CostBasisMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "average", "avg", "average-cost":
		return AverageCost, nil
	case "fifo", "":
		return FIFO, nil
	default:
		return 0, fmt.Errorf("unknown cost basis method: %q", s)
	}
}

// OversellMode defines what happens when a sell exceeds the tracked quantity.
type OversellMode int

const (
	// Strict rejects the sell and aborts the ledger of its group: the trade
	// history has a gap.
	Strict OversellMode = iota
	// Permissive lets the quantity go negative, opening a short position.
	Permissive
)

func (m OversellMode) String() string {
	switch m {
	case Strict:
		return "strict"
	case Permissive:
		return "permissive"
	default:
		return "unknown"
	}
}

// ParseOversellMode parses a string into an OversellMode.
func ParseOversellMode(s string) (OversellMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return Strict, nil
	case "permissive", "short":
		return Permissive, nil
	default:
		return 0, fmt.Errorf("unknown oversell mode: %q", s)
	}
}
