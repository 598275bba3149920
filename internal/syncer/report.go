package syncer

import (
	"fmt"

	"github.com/marvst/properties-scraper/internal/models"
)

// Report is the reconciliation outcome of one sync batch. Partial
// success is a first-class result: per-record rejections accumulate here
// instead of aborting the batch.
type Report struct {
	Inserted  int
	Updated   int
	Unchanged int
	Rejected  int

	// Rejections lists the raw records excluded from synchronization,
	// in input order, with their rejection reasons.
	Rejections []models.Rejection

	// SeenKeys lists every identity key successfully reconciled in this
	// batch. Callers implementing a removal policy can mark stored rows
	// absent from this list; the engine itself never deletes.
	SeenKeys []string

	// Unattempted lists identity keys skipped after a store failure
	// aborted the batch, so a retry can resume safely.
	Unattempted []string
}

// Total returns the number of records accounted for by the report.
func (r *Report) Total() int {
	return r.Inserted + r.Updated + r.Unchanged + r.Rejected
}

// String returns a one-line summary of the report.
func (r *Report) String() string {
	return fmt.Sprintf(
		"Report{Inserted: %d, Updated: %d, Unchanged: %d, Rejected: %d, Unattempted: %d}",
		r.Inserted, r.Updated, r.Unchanged, r.Rejected, len(r.Unattempted),
	)
}
