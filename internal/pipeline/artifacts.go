package pipeline

import (
	"time"

	"github.com/couchcryptid/heatspot-etl-service/internal/domain"
	json "github.com/goccy/go-json"
)

// Artifact names, as consumed by the dashboard.
const (
	ArtifactFull       = "focos-completos.json"
	ArtifactDashboard  = "focos-dashboard.json"
	ArtifactStatistics = "estatisticas.json"
	ArtifactSummary    = "processing-summary.json"
)

// Run status values recorded in the processing summary.
const (
	StatusSuccess     = "success"
	StatusPartial     = "partial"
	StatusNoRecords   = "no_records"
	StatusOutputError = "output_error"
)

// Data origins recorded in the processing summary.
const (
	OriginINPE      = "inpe"
	OriginSynthetic = "synthetic"
)

// ProcessingSummary describes one run for operators and the dashboard footer.
type ProcessingSummary struct {
	RunID               string               `json:"run_id"`
	GeneratedAt         time.Time            `json:"generated_at"`
	Version             string               `json:"version"`
	Status              string               `json:"status"`
	DataOrigin          string               `json:"data_origin"`
	Bounds              domain.Bounds        `json:"bounds"`
	ReferenceCategories []domain.Category    `json:"reference_categories"`
	Artifacts           []string             `json:"artifacts"`
	Statistics          domain.RunStatistics `json:"statistics"`
}

func encode(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

func dashboardView(records []domain.EnrichedRecord) []domain.DashboardRecord {
	out := make([]domain.DashboardRecord, len(records))
	for i := range records {
		out[i] = records[i].Dashboard()
	}
	return out
}
