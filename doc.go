// Package bankroll reconciles brokerage account data coming from several
// heterogeneous sources into one portfolio view.
//
// A run goes through the following stages:
//   - Collection: every Adapter yields RawRecords (trades and position
//     snapshots) with the field vocabulary of its source. Adapters run
//     concurrently; a failing adapter only removes its own contribution.
//   - Normalization: the Normalizer maps native field names onto canonical
//     ones, validates values and resolves instruments to a canonical Key with
//     the Resolver.
//   - Deduplication: Merge collapses trades reported by more than one source,
//     keeping the record of the most authoritative one.
//   - Replay: Replay computes the quantity, cost basis and realized gain of
//     each (account, instrument) ledger with FIFO or average cost lots, and
//     Reconcile cross-checks them against reported positions.
//   - Aggregation: Aggregate folds ledgers into a PortfolioView with a roll-up
//     per instrument across accounts.
//
// Problems never abort a run: they are collected as Diagnostics alongside the
// view. Only cancellation of the context does.
//
// Reference adapters for Flex XML reports, brokerage CSV exports and the live
// API positions document live in the flex, brokercsv and liveapi packages.
package bankroll
