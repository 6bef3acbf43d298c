package bankroll

import (
	"errors"
	"fmt"
)

// Error taxonomy. Typed errors below wrap one of these sentinels so callers
// can classify any diagnostic with errors.Is.
var (
	ErrAmbiguousIdentifier       = errors.New("ambiguous identifier")
	ErrUnresolvableIdentifier    = errors.New("unresolvable identifier")
	ErrMalformedRecord           = errors.New("malformed record")
	ErrConflictingDuplicate      = errors.New("conflicting duplicate")
	ErrReconciliationDiscrepancy = errors.New("reconciliation discrepancy")
	ErrOverSell                  = errors.New("oversell")
	ErrAdapterFailure            = errors.New("adapter failure")
)

// IdentifierError reports an instrument identifier that could not be resolved.
type IdentifierError struct {
	Err    error // ErrAmbiguousIdentifier or ErrUnresolvableIdentifier
	Fields string
	Reason string
}

func (e *IdentifierError) Error() string {
	if e.Fields == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Reason)
	}
	return fmt.Sprintf("%v [%s]: %s", e.Err, e.Fields, e.Reason)
}

func (e *IdentifierError) Unwrap() error { return e.Err }

// MalformedRecordError names the offending field of a rejected record.
type MalformedRecordError struct {
	Field string
	Value any
	Err   error // underlying parse error, may be nil
}

func (e *MalformedRecordError) Error() string {
	msg := fmt.Sprintf("malformed record: field %q", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf(" (%v)", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }
func (e *MalformedRecordError) Unwrap() error        { return e.Err }

func malformed(field string, value any, err error) *MalformedRecordError {
	return &MalformedRecordError{Field: field, Value: value, Err: err}
}

// ConflictError reports records that look like the same activity but cannot
// be collapsed automatically. All of them are retained.
type ConflictError struct {
	IDs    []string // source:id of each conflicting record
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting duplicate %v: %s", e.IDs, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflictingDuplicate }

// DiscrepancyError reports a position snapshot that disagrees with the
// quantity replayed from trades.
type DiscrepancyError struct {
	Replayed Quantity
	Reported Quantity
	AsOf     string
}

func (e *DiscrepancyError) Error() string {
	msg := fmt.Sprintf("reconciliation discrepancy: replayed %s, reported %s", e.Replayed, e.Reported)
	if e.AsOf != "" {
		msg += " as of " + e.AsOf
	}
	return msg
}

func (e *DiscrepancyError) Unwrap() error { return ErrReconciliationDiscrepancy }

// OverSellError reports a sell exceeding the quantity held in strict mode.
type OverSellError struct {
	TradeID  string
	Held     Quantity
	Quantity Quantity
}

func (e *OverSellError) Error() string {
	return fmt.Sprintf("oversell: trade %s sells %s but only %s held", e.TradeID, e.Quantity, e.Held)
}

func (e *OverSellError) Unwrap() error { return ErrOverSell }

// AdapterError reports a source that failed to produce its records.
type AdapterError struct {
	Source Source
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %s failed: %v", e.Source, e.Err)
}

func (e *AdapterError) Is(target error) bool { return target == ErrAdapterFailure }
func (e *AdapterError) Unwrap() error        { return e.Err }
