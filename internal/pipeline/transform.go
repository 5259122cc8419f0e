package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/heatspot-etl-service/internal/domain"
)

// enrichRecord runs e on rec, converting a panic into an error. On failure the
// record is returned with every region label at its default, so it is still
// counted and emitted.
func enrichRecord(e Enricher, rec domain.DetectionRecord) (out domain.EnrichedRecord, warnings []domain.ClassificationWarning, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = domain.Unenriched(rec)
			warnings = nil
			err = fmt.Errorf("enrich %s: %v", rec.ID, r)
		}
	}()
	out, warnings = e.Enrich(rec)
	return out, warnings, nil
}

// collector keeps every enriched chunk in memory for the output artifacts.
type collector struct {
	records []domain.EnrichedRecord
}

func (c *collector) LoadBatch(_ context.Context, records []domain.EnrichedRecord) error {
	c.records = append(c.records, records...)
	return nil
}
