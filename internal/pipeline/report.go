package pipeline

import (
	"fmt"
	"io"
	"time"
)

type Report struct {
	RunID      string
	Entity     string
	Collection string
	Original   int
	Valid      int
	Invalid    int
	Indexed    int
	Dimension  int
	Elapsed    time.Duration
	// Rejections are validation-stage failures; Failures are embedding and store_write failures.
	Rejections     []FailureRecord
	Failures       []FailureRecord
	Batches        []BatchResult
	Reconciliation Reconciliation
}

// Failed is rejected-at-validation plus embedding-stage plus store-write-stage failures.
func (r *Report) Failed() int {
	return len(r.Rejections) + len(r.Failures)
}

// WriteSummary prints the end-of-run summary. It is written for every run, partial or not.
func (r *Report) WriteSummary(w io.Writer) {
	fmt.Fprintf(w, "=== %s indexing finished (run %s) ===\n", r.Entity, r.RunID)
	fmt.Fprintf(w, "collection:  %s\n", r.Collection)
	fmt.Fprintf(w, "original:    %d\n", r.Original)
	fmt.Fprintf(w, "valid:       %d\n", r.Valid)
	fmt.Fprintf(w, "invalid:     %d\n", r.Invalid)
	fmt.Fprintf(w, "indexed:     %d\n", r.Indexed)
	fmt.Fprintf(w, "failed:      %d\n", r.Failed())
	fmt.Fprintf(w, "dimension:   %d\n", r.Dimension)
	fmt.Fprintf(w, "elapsed:     %s\n", r.Elapsed.Round(time.Millisecond))

	writeSample(w, "rejected records", r.Rejections)

	rec := r.Reconciliation
	switch {
	case rec.Err != nil:
		fmt.Fprintf(w, "reconciliation: count unavailable: %v\n", rec.Err)
	case rec.Reconciled:
		fmt.Fprintf(w, "reconciliation: ok (%d documents)\n", rec.Actual)
	default:
		fmt.Fprintf(w, "reconciliation: MISMATCH expected %d valid, store has %d\n", rec.Expected, rec.Actual)
		if rec.TotalFailures > 0 {
			fmt.Fprintf(w, "failed documents: %d\n", rec.TotalFailures)
			for i, f := range rec.Sample {
				fmt.Fprintf(w, "  %d. id %d [%s] %s\n", i+1, f.ID, f.Stage, f.Reason)
			}
			if rec.TotalFailures > len(rec.Sample) {
				fmt.Fprintf(w, "  ... %d more\n", rec.TotalFailures-len(rec.Sample))
			}
		}
	}
}

func writeSample(w io.Writer, title string, fs []FailureRecord) {
	if len(fs) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	n := min(len(fs), DiscrepancySample)
	for _, f := range fs[:n] {
		fmt.Fprintf(w, "  - id %d: %s\n", f.ID, f.Reason)
	}
	if len(fs) > n {
		fmt.Fprintf(w, "  ... %d more\n", len(fs)-n)
	}
}
