package syncer

import (
	"context"

	"github.com/marvst/properties-scraper/internal/logger"
	"github.com/marvst/properties-scraper/internal/models"
	"github.com/marvst/properties-scraper/internal/normalizer"
)

// Pipeline composes normalization and synchronization: raw records in,
// reconciliation report out.
type Pipeline struct {
	normalizer *normalizer.Normalizer
	syncer     *Syncer
	logger     *logger.Logger
	workers    int
}

// NewPipeline creates a pipeline around a normalizer and syncer.
func NewPipeline(n *normalizer.Normalizer, s *Syncer, log *logger.Logger) *Pipeline {
	return &Pipeline{
		normalizer: n,
		syncer:     s,
		logger:     log,
		workers:    s.workers,
	}
}

// Run normalizes the raw records concurrently, preserving input order so
// that in-batch deduplication stays deterministic, then syncs the
// surviving canonical records. Rejections never abort the batch; they
// are reported alongside the sync counts.
func (p *Pipeline) Run(ctx context.Context, raws []models.RawRecord) (*Report, error) {
	canonical := make([]*models.CanonicalRecord, len(raws))
	rejections := make([]*models.Rejection, len(raws))

	sem := make(chan struct{}, p.workers)
	done := make(chan int)

	for i := range raws {
		go func(i int) {
			sem <- struct{}{}
			defer func() { <-sem }()

			canonical[i], rejections[i] = p.normalizer.Normalize(raws[i])
			done <- i
		}(i)
	}

	for range raws {
		<-done
	}

	records := make([]models.CanonicalRecord, 0, len(raws))

	var rejected []models.Rejection

	for i := range raws {
		if rejections[i] != nil {
			p.logger.Warn("record rejected",
				"field", rejections[i].Field,
				"reason", string(rejections[i].Reason),
				"error", rejections[i].Err)
			rejected = append(rejected, *rejections[i])

			continue
		}

		records = append(records, *canonical[i])
	}

	report, err := p.syncer.Sync(ctx, records)
	report.Rejected = len(rejected)
	report.Rejections = rejected

	return report, err
}
