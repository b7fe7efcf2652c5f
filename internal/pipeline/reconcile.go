package pipeline

import (
	"context"

	"voyagemate/apps/backend/internal/vector"
)

// DiscrepancySample bounds how many failures a discrepancy report lists.
const DiscrepancySample = 10

type Reconciliation struct {
	Expected   int
	Actual     int
	Reconciled bool
	// Err is set when the store count could not be read; the run still completes.
	Err           error
	Sample        []FailureRecord
	TotalFailures int
}

// Reconcile compares the store's document count with the number of valid records.
// It only reports; nothing is retried.
func Reconcile(ctx context.Context, store Store, collection string, scope *vector.Scope, expected int, failures []FailureRecord) Reconciliation {
	rec := Reconciliation{Expected: expected, TotalFailures: len(failures)}

	actual, err := store.Count(ctx, collection, scope)
	if err != nil {
		rec.Err = err
		return rec
	}
	rec.Actual = actual
	rec.Reconciled = actual == expected
	if !rec.Reconciled {
		n := min(len(failures), DiscrepancySample)
		rec.Sample = append([]FailureRecord(nil), failures[:n]...)
	}
	return rec
}
