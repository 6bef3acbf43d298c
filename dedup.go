package bankroll

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/sourcegraph/conc/iter"
)

// Merge collapses the trades that describe the same execution more than once,
// keeping the record of the most authoritative source.
//
// Exact re-ingestions (same source and ID, same content) count once. Across
// sources, two trades of the same account and instrument are duplicates when
// their timestamps are within cfg.Tolerance, their signed quantities and
// prices are equal and their fees differ by at most cfg.FeeTolerance. Matching
// is transitive: clusters are the connected components of the match relation.
// When several sources share the best rank of a cluster, identical records
// collapse to the one of the first source by name; records that differ are
// all kept and reported as a conflict.
//
// The result is sorted by account, instrument, then replay order. Merge is
// idempotent: Merge(T ++ T) equals Merge(T).
func Merge(cfg Config, trades []Trade) ([]Trade, Diagnostics) {
	unique, diags := collapseReingested(trades)

	groups := groupTrades(unique)
	type merged struct {
		trades []Trade
		diags  Diagnostics
	}
	results := iter.Map(groups, func(g *[]Trade) merged {
		kept, d := mergeGroup(cfg, *g)
		return merged{kept, d}
	})

	var out []Trade
	for _, r := range results {
		out = append(out, r.trades...)
		diags = append(diags, r.diags...)
	}
	diags.sort()
	return out, diags
}

// collapseReingested drops exact copies of a record. Records sharing a source
// and ID but differing in content are all kept and reported.
func collapseReingested(trades []Trade) ([]Trade, Diagnostics) {
	byRef := make(map[string][]Trade)
	var refs []string
	for _, t := range trades {
		ref := t.Ref()
		seen, ok := byRef[ref]
		if !ok {
			refs = append(refs, ref)
		}
		if slices.ContainsFunc(seen, t.sameContent) {
			continue
		}
		byRef[ref] = append(seen, t)
	}

	var out []Trade
	var diags Diagnostics
	for _, ref := range refs {
		variants := byRef[ref]
		out = append(out, variants...)
		if len(variants) > 1 {
			t := variants[0]
			diags = append(diags, Diagnostic{
				Kind:    ConflictingDuplicate,
				Source:  t.Source,
				Account: t.Account,
				Key:     t.Key(),
				Refs:    []string{ref},
				Err: &ConflictError{
					IDs:    []string{ref},
					Reason: fmt.Sprintf("%d different records share the same id", len(variants)),
				},
			})
		}
	}
	return out, diags
}

// groupTrades partitions trades by account and instrument, groups sorted.
func groupTrades(trades []Trade) [][]Trade {
	index := make(map[group]int)
	var keys []group
	var groups [][]Trade
	for _, t := range trades {
		g := group{t.Account, t.Key()}
		i, ok := index[g]
		if !ok {
			i = len(groups)
			index[g] = i
			keys = append(keys, g)
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], t)
	}
	order := make([]int, len(groups))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int { return keys[a].compare(keys[b]) })
	sorted := make([][]Trade, len(groups))
	for i, k := range order {
		sorted[i] = groups[k]
	}
	return sorted
}

// sortTrades orders a group for replay: timestamp, source priority, position
// within the source, ID.
func sortTrades(cfg Config, trades []Trade) {
	slices.SortStableFunc(trades, func(a, b Trade) int {
		return cmp.Or(
			a.Time.Compare(b.Time),
			cmp.Compare(cfg.Rank(a.Source), cfg.Rank(b.Source)),
			strings.Compare(string(a.Source), string(b.Source)),
			cmp.Compare(a.Seq, b.Seq),
			strings.Compare(a.ID, b.ID),
		)
	})
}

// duplicates reports whether a and b describe the same execution.
func duplicates(cfg Config, a, b Trade) bool {
	if a.Source == b.Source {
		// a source never reports the same execution twice under two ids.
		return false
	}
	if !a.Quantity.Equal(b.Quantity) || !a.Price.Equal(b.Price) {
		return false
	}
	if a.Currency() != b.Currency() {
		return false
	}
	return Q(a.Fees.Decimal()).Within(Q(b.Fees.Decimal()), cfg.FeeTolerance)
}

// mergeGroup merges the trades of one (account, instrument) group.
func mergeGroup(cfg Config, trades []Trade) ([]Trade, Diagnostics) {
	trades = slices.Clone(trades)
	sortTrades(cfg, trades)

	set := newDisjointSet(len(trades))
	for i := range trades {
		for j := i + 1; j < len(trades); j++ {
			if trades[j].Time.Sub(trades[i].Time) > cfg.Tolerance {
				break
			}
			if duplicates(cfg, trades[i], trades[j]) {
				set.union(i, j)
			}
		}
	}

	keep := make([]bool, len(trades))
	var diags Diagnostics
	for _, cluster := range set.sets() {
		best := len(cfg.SourcePriority) + 1
		for _, i := range cluster {
			best = min(best, cfg.Rank(trades[i].Source))
		}
		var top []int
		for _, i := range cluster {
			if cfg.Rank(trades[i].Source) == best {
				top = append(top, i)
			}
		}
		switch {
		case singleSource(trades, top):
			for _, i := range top {
				keep[i] = true
			}
		case agree(trades, top):
			keep[slices.MinFunc(top, func(a, b int) int { return compareOrigin(trades[a], trades[b]) })] = true
		default:
			for _, i := range top {
				keep[i] = true
			}
			diags = append(diags, conflict(trades, cluster, keep))
		}
	}

	var out []Trade
	for i, t := range trades {
		if keep[i] {
			out = append(out, t)
		}
	}
	return out, diags
}

// singleSource reports whether the trades at indexes all come from one source.
func singleSource(trades []Trade, indexes []int) bool {
	for _, i := range indexes[1:] {
		if trades[i].Source != trades[indexes[0]].Source {
			return false
		}
	}
	return true
}

// agree reports whether the trades at indexes come from distinct sources and
// carry exactly the same execution. Any of them can then stand for the others.
func agree(trades []Trade, indexes []int) bool {
	sources := make(map[Source]bool)
	first := trades[indexes[0]]
	for _, i := range indexes {
		t := trades[i]
		if sources[t.Source] || !t.sameContent(first) {
			return false
		}
		sources[t.Source] = true
	}
	return true
}

// compareOrigin orders equivalent trades by source name, then ID.
func compareOrigin(a, b Trade) int {
	return cmp.Or(
		strings.Compare(string(a.Source), string(b.Source)),
		strings.Compare(a.ID, b.ID),
	)
}

// conflict reports a cluster in which several sources of the best rank
// disagree.
func conflict(trades []Trade, cluster []int, keep []bool) Diagnostic {
	var refs []string
	for _, i := range cluster {
		if keep[i] {
			refs = append(refs, trades[i].Ref())
		}
	}
	t := trades[cluster[0]]
	return Diagnostic{
		Kind:    ConflictingDuplicate,
		Account: t.Account,
		Key:     t.Key(),
		Refs:    refs,
		Err: &ConflictError{
			IDs:    refs,
			Reason: "duplicates from sources of equal priority disagree, all retained",
		},
	}
}
