package bankroll

import "time"

// Reconcile cross-checks every position snapshot against the replayed ledger
// of its group. A snapshot whose quantity differs from the replayed quantity
// at the snapshot's date by more than cfg.QuantityTolerance raises a
// ReconciliationDiscrepancy. Snapshots of groups without a ledger are not
// checked: there is nothing to compare them to.
//
// The replayed figures are never altered: they carry the full history.
func Reconcile(cfg Config, entries []LedgerEntry, snapshots []PositionSnapshot) Diagnostics {
	ledgers := make(map[group]LedgerEntry, len(entries))
	for _, e := range entries {
		ledgers[group{e.Account, e.Key()}] = e
	}

	var diags Diagnostics
	for _, s := range snapshots {
		e, ok := ledgers[group{s.Account, s.Key()}]
		if !ok {
			continue
		}
		replayed := e.QuantityAt(s.Time)
		if replayed.Within(s.Quantity, cfg.QuantityTolerance) {
			continue
		}
		err := &DiscrepancyError{Replayed: replayed, Reported: s.Quantity}
		if !s.Time.IsZero() {
			err.AsOf = s.Time.Format(time.DateOnly)
		}
		diags = append(diags, Diagnostic{
			Kind:    ReconciliationDiscrepancy,
			Source:  s.Source,
			Account: s.Account,
			Key:     s.Key(),
			Refs:    []string{s.Ref()},
			Err:     err,
		})
	}
	diags.sort()
	return diags
}
