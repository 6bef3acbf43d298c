package bankroll

import (
	"cmp"
	"context"
	"slices"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/iter"
	"github.com/sourcegraph/conc/pool"
)

// Result is the outcome of a reconciliation run: a clean view and the review
// log of everything that went wrong on the way.
type Result struct {
	View        PortfolioView
	Trades      []Trade // merged trades, in replay order per group
	Snapshots   []PositionSnapshot
	Entries     []LedgerEntry
	Diagnostics Diagnostics
	Rejected    []Rejected
}

// Reconciler runs reconciliation passes with a fixed configuration.
type Reconciler struct {
	cfg    Config
	prices PriceSource
	log    zerolog.Logger
}

// NewReconciler validates cfg and returns a reconciler. prices may be nil.
func NewReconciler(cfg Config, prices PriceSource, log zerolog.Logger) (*Reconciler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Reconciler{
		cfg:    cfg,
		prices: prices,
		log:    log.With().Str("component", "reconciler").Logger(),
	}, nil
}

// Config returns the configuration of the reconciler.
func (r *Reconciler) Config() Config { return r.cfg }

// collected is the output of one adapter.
type collected struct {
	index   int
	source  Source
	records []RawRecord
	err     error
}

// Run reconciles the records of every adapter into a portfolio view.
//
// Adapters run concurrently; normalization starts once all of them are done.
// A failing adapter only removes its own contribution. Run returns an error
// only when ctx is cancelled, in which case no partial result is returned.
func (r *Reconciler) Run(ctx context.Context, adapters ...Adapter) (Result, error) {
	var res Result

	// stage 1: collect
	batches := r.collect(ctx, adapters)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	var records []RawRecord
	var origin []int // batch of each record
	for bi, b := range batches {
		if b.err != nil {
			err := &AdapterError{Source: b.source, Err: b.err}
			r.log.Warn().Err(err).Str("source", string(b.source)).Int("discarded", len(b.records)).Msg("adapter failed")
			d := newDiagnostic(err)
			d.Source = b.source
			res.Diagnostics = append(res.Diagnostics, d)
			continue
		}
		r.log.Debug().Str("source", string(b.source)).Int("records", len(b.records)).Msg("adapter done")
		records = append(records, b.records...)
		for range b.records {
			origin = append(origin, bi)
		}
	}

	// stage 2: normalize
	normalizer := NewNormalizer(r.cfg, NewResolver(r.cfg.currency()))
	for _, rec := range records {
		normalizer.Observe(rec)
	}
	type normalized struct {
		entity Entity
		err    error
	}
	results := iter.Map(records, func(rec *RawRecord) normalized {
		e, err := normalizer.Normalize(*rec)
		return normalized{e, err}
	})
	perBatch := make([][]Trade, len(batches))
	for i, n := range results {
		switch e := n.entity.(type) {
		case Trade:
			perBatch[origin[i]] = append(perBatch[origin[i]], e)
		case PositionSnapshot:
			res.Snapshots = append(res.Snapshots, e)
		}
		if n.err != nil {
			rec := records[i]
			res.Rejected = append(res.Rejected, Rejected{Record: rec, Err: n.err})
			d := newDiagnostic(n.err)
			d.Source, d.Account = rec.Source, rec.Account
			res.Diagnostics = append(res.Diagnostics, d)
		}
	}
	for _, trades := range perBatch {
		chronological(trades)
		res.Trades = append(res.Trades, trades...)
	}
	r.log.Debug().Int("trades", len(res.Trades)).Int("snapshots", len(res.Snapshots)).Int("rejected", len(res.Rejected)).Msg("normalized")
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// stage 3: deduplicate
	merged, diags := Merge(r.cfg, res.Trades)
	r.log.Debug().Int("before", len(res.Trades)).Int("after", len(merged)).Msg("merged")
	res.Trades = merged
	res.Diagnostics = append(res.Diagnostics, diags...)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// stage 4: replay and cross-validate
	entries, diags := Replay(r.cfg, res.Trades)
	res.Entries = entries
	res.Diagnostics = append(res.Diagnostics, diags...)
	res.Diagnostics = append(res.Diagnostics, Reconcile(r.cfg, entries, res.Snapshots)...)
	r.log.Debug().Int("ledgers", len(entries)).Msg("replayed")
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// stage 5: aggregate
	res.Diagnostics.sort()
	res.View = Aggregate(r.cfg, entries, res.Snapshots, res.Diagnostics, r.prices)
	for _, d := range res.Diagnostics {
		if d.Kind == AdapterFailure {
			continue // already logged
		}
		r.log.Warn().
			Str("kind", string(d.Kind)).
			Str("source", string(d.Source)).
			Str("account", d.Account.String()).
			Str("key", string(d.Key)).
			Err(d.Err).
			Msg("diagnostic")
	}
	r.log.Info().
		Int("holdings", len(res.View.Holdings)).
		Int("diagnostics", len(res.Diagnostics)).
		Bool("partial", res.View.Meta.Partial).
		Msg("reconciliation done")
	return res, nil
}

// collect drains every enabled adapter concurrently and waits for all of them.
func (r *Reconciler) collect(ctx context.Context, adapters []Adapter) []collected {
	p := pool.NewWithResults[collected]()
	for i, a := range adapters {
		if !r.cfg.Enabled(a.Source()) {
			r.log.Debug().Str("source", string(a.Source())).Msg("source disabled")
			continue
		}
		p.Go(func() collected {
			c := collected{index: i, source: a.Source()}
			for rec, err := range a.Records(ctx) {
				if err != nil {
					c.err = err
					return c
				}
				if rec.Source == "" {
					rec.Source = c.source
				}
				rec.Seq = len(c.records) + 1
				c.records = append(c.records, rec)
			}
			return c
		})
	}
	out := p.Wait()
	slices.SortFunc(out, func(a, b collected) int { return cmp.Compare(a.index, b.index) })
	return out
}

// chronological orients the stream positions of the trades of one adapter.
// Exports listed newest first are detected from their timestamps and their
// positions are negated, so that positions break timestamp ties in the order
// the trades happened.
func chronological(trades []Trade) {
	ordered := slices.SortedFunc(slices.Values(trades), func(a, b Trade) int { return cmp.Compare(a.Seq, b.Seq) })
	var forward, backward int
	for i := 1; i < len(ordered); i++ {
		switch ordered[i].Time.Compare(ordered[i-1].Time) {
		case 1:
			forward++
		case -1:
			backward++
		}
	}
	if backward <= forward {
		return
	}
	for i := range trades {
		trades[i].Seq = -trades[i].Seq
	}
}
