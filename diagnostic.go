package bankroll

import (
	"cmp"
	"errors"
	"slices"
	"strings"
)

// Kind classifies a diagnostic.
type Kind string

const (
	AmbiguousIdentifier       Kind = "AmbiguousIdentifier"
	UnresolvableIdentifier    Kind = "UnresolvableIdentifier"
	MalformedRecord           Kind = "MalformedRecord"
	ConflictingDuplicate      Kind = "ConflictingDuplicate"
	ReconciliationDiscrepancy Kind = "ReconciliationDiscrepancy"
	OverSell                  Kind = "OverSell"
	AdapterFailure            Kind = "AdapterFailure"
	Unknown                   Kind = "Unknown"
)

// KindOf classifies err by the sentinel it wraps.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrAmbiguousIdentifier):
		return AmbiguousIdentifier
	case errors.Is(err, ErrUnresolvableIdentifier):
		return UnresolvableIdentifier
	case errors.Is(err, ErrMalformedRecord):
		return MalformedRecord
	case errors.Is(err, ErrConflictingDuplicate):
		return ConflictingDuplicate
	case errors.Is(err, ErrReconciliationDiscrepancy):
		return ReconciliationDiscrepancy
	case errors.Is(err, ErrOverSell):
		return OverSell
	case errors.Is(err, ErrAdapterFailure):
		return AdapterFailure
	}
	return Unknown
}

// Diagnostic is a non-fatal problem found during a run.
type Diagnostic struct {
	Kind    Kind
	Source  Source  // empty for per-group diagnostics
	Account Account // zero for adapter failures
	Key     Key     // empty when the instrument is unknown
	Refs    []string
	Err     error
}

func newDiagnostic(err error) Diagnostic {
	return Diagnostic{Kind: KindOf(err), Err: err}
}

// Error implements the error interface so a diagnostic can be joined or
// returned by a caller that treats it as fatal.
func (d Diagnostic) Error() string {
	var b strings.Builder
	b.WriteString(string(d.Kind))
	if d.Source != "" {
		b.WriteString(" source=" + string(d.Source))
	}
	if !d.Account.IsZero() {
		b.WriteString(" account=" + d.Account.String())
	}
	if d.Key != "" {
		b.WriteString(" key=" + string(d.Key))
	}
	if d.Err != nil {
		b.WriteString(": " + d.Err.Error())
	}
	return b.String()
}

func (d Diagnostic) Unwrap() error { return d.Err }

// MarshalJSON implements the json.Marshaler interface for Diagnostic.
func (d Diagnostic) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("kind", d.Kind)
	w.Optional("source", d.Source)
	if !d.Account.IsZero() {
		w.Append("account", d.Account.String())
	}
	w.Optional("key", d.Key)
	if len(d.Refs) > 0 {
		w.Append("refs", d.Refs)
	}
	if d.Err != nil {
		w.Append("error", d.Err.Error())
	}
	return w.MarshalJSON()
}

// Diagnostics is the review log of a run.
type Diagnostics []Diagnostic

// Count returns the number of diagnostics of kind k.
func (ds Diagnostics) Count(k Kind) int {
	n := 0
	for _, d := range ds {
		if d.Kind == k {
			n++
		}
	}
	return n
}

// Of returns the diagnostics of kind k.
func (ds Diagnostics) Of(k Kind) Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Kind == k {
			out = append(out, d)
		}
	}
	return out
}

// Err joins every diagnostic into one error, nil when there are none. It lets
// a caller treat the accumulated diagnostics as fatal.
func (ds Diagnostics) Err() error {
	errs := make([]error, len(ds))
	for i, d := range ds {
		errs[i] = d
	}
	return errors.Join(errs...)
}

// sort orders diagnostics deterministically: by kind, account, key, source and
// message.
func (ds Diagnostics) sort() {
	slices.SortStableFunc(ds, func(a, b Diagnostic) int {
		return cmp.Or(
			strings.Compare(string(a.Kind), string(b.Kind)),
			a.Account.Compare(b.Account),
			strings.Compare(string(a.Key), string(b.Key)),
			strings.Compare(string(a.Source), string(b.Source)),
			strings.Compare(a.Error(), b.Error()),
		)
	})
}
