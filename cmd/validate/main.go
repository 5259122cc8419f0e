// Command validate checks a directory of pipeline artifacts for internal
// consistency: every detection lies inside the bounding box, the statistics
// cover every record, the dashboard file is an exact projection of the full
// file, and the per-region counts add up.
//
// Usage:
//
//	go run ./cmd/validate -dir data/processed
//	go run ./cmd/validate -dir data/processed -gzip
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/couchcryptid/heatspot-etl-service/internal/domain"
	"github.com/couchcryptid/heatspot-etl-service/internal/pipeline"
	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// maxReported caps per-record errors so a systematic fault stays readable.
const maxReported = 20

func main() {
	dir := flag.String("dir", "", "directory containing the pipeline artifacts")
	gz := flag.Bool("gzip", false, "artifacts are gzip-compressed (.json.gz)")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dir, *gz); code != 0 {
		os.Exit(code)
	}
}

type artifacts struct {
	full      []domain.EnrichedRecord
	dashboard []domain.DashboardRecord
	stats     domain.RunStatistics
	summary   pipeline.ProcessingSummary
}

func run(dir string, gz bool) int {
	fmt.Println("=== Heat Spot Artifact Validation ===")
	fmt.Println()

	var a artifacts
	loads := []struct {
		name string
		dst  any
	}{
		{pipeline.ArtifactFull, &a.full},
		{pipeline.ArtifactDashboard, &a.dashboard},
		{pipeline.ArtifactStatistics, &a.stats},
		{pipeline.ArtifactSummary, &a.summary},
	}
	for _, l := range loads {
		if err := loadJSON(dir, l.name, gz, l.dst); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load %s: %v\n", l.name, err)
			return 1
		}
	}

	phases := []*phase{
		validateBounds(a.full, a.summary.Bounds),
		validateCoverage(a.full, a.stats),
		validateProjection(a.full, a.dashboard),
		validateRegionCounts(a.full, a.stats),
		validateSummary(a.summary, a.stats),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d full, %d dashboard, %d in statistics (run %s, origin %s)\n",
		len(a.full), len(a.dashboard), a.stats.Total, a.summary.RunID, a.summary.DataOrigin)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i == maxReported {
				fmt.Printf("  ... %d more\n", len(p.errors)-maxReported)
				break
			}
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadJSON(dir, name string, gz bool, dst any) error {
	path := filepath.Join(dir, name)
	if gz {
		path += ".gz"
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if gz {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("open gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	return json.NewDecoder(r).Decode(dst)
}

// ── Validation phases ──

func validateBounds(full []domain.EnrichedRecord, b domain.Bounds) *phase {
	p := &phase{name: "Boundary invariant"}
	if b == (domain.Bounds{}) {
		b = domain.BrazilBounds
	}
	for i := range full {
		r := &full[i]
		if !b.Contains(r.Latitude, r.Longitude) {
			p.errorf("record %s at (%.6f, %.6f) is outside the bounding box", r.ID, r.Latitude, r.Longitude)
		}
	}
	return p
}

func validateCoverage(full []domain.EnrichedRecord, stats domain.RunStatistics) *phase {
	p := &phase{name: "Statistics coverage"}
	if stats.Total != len(full) {
		p.errorf("statistics total %d, full artifact has %d records", stats.Total, len(full))
	}
	groupings := []struct {
		name   string
		groups []domain.GroupCount
	}{
		{"municipality", stats.ByMunicipality},
		{"state", stats.ByState},
		{"biome", stats.ByBiome},
		{"satellite", stats.BySatellite},
		{"date", stats.ByDate},
		{"day_period", stats.ByDayPeriod},
	}
	for _, g := range groupings {
		if sum := sumCounts(g.groups); sum != stats.Total {
			p.errorf("%s counts sum to %d, total is %d", g.name, sum, stats.Total)
		}
	}
	for cat, c := range stats.Categories {
		if c.Classified+c.Unclassified != stats.Total {
			p.errorf("%s: classified %d + unclassified %d != total %d", cat, c.Classified, c.Unclassified, stats.Total)
		}
		if c.FromFallback > c.Classified {
			p.errorf("%s: fallback %d exceeds classified %d", cat, c.FromFallback, c.Classified)
		}
	}
	return p
}

func validateProjection(full []domain.EnrichedRecord, dashboard []domain.DashboardRecord) *phase {
	p := &phase{name: "Dashboard projection"}
	if len(dashboard) != len(full) {
		p.errorf("dashboard has %d records, full has %d", len(dashboard), len(full))
		return p
	}
	for i := range full {
		want := full[i].Dashboard()
		if !want.Timestamp.Equal(dashboard[i].Timestamp) {
			p.errorf("record %d (%s): timestamp %s != %s", i, want.ID, dashboard[i].Timestamp, want.Timestamp)
			continue
		}
		want.Timestamp = dashboard[i].Timestamp
		if want != dashboard[i] {
			p.errorf("record %d (%s): dashboard fields differ from full record", i, want.ID)
		}
	}
	return p
}

func validateRegionCounts(full []domain.EnrichedRecord, stats domain.RunStatistics) *phase {
	p := &phase{name: "Per-region counts"}
	recount := domain.Summarize(func(yield func(domain.EnrichedRecord) bool) {
		for _, r := range full {
			if !yield(r) {
				return
			}
		}
	})
	compareGroups(p, "biome", recount.ByBiome, stats.ByBiome)
	compareGroups(p, "municipality", recount.ByMunicipality, stats.ByMunicipality)
	compareGroups(p, "state", recount.ByState, stats.ByState)
	compareGroups(p, "satellite", recount.BySatellite, stats.BySatellite)
	return p
}

func validateSummary(summary pipeline.ProcessingSummary, stats domain.RunStatistics) *phase {
	p := &phase{name: "Processing summary"}
	if summary.Status != pipeline.StatusSuccess {
		p.errorf("run status is %q", summary.Status)
	}
	if summary.RunID != stats.RunID {
		p.errorf("summary run %q, statistics run %q", summary.RunID, stats.RunID)
	}
	if summary.Statistics.Total != stats.Total {
		p.errorf("summary total %d, statistics total %d", summary.Statistics.Total, stats.Total)
	}
	return p
}

// ── Helpers ──

func sumCounts(groups []domain.GroupCount) int {
	n := 0
	for _, g := range groups {
		n += g.Count
	}
	return n
}

func compareGroups(p *phase, name string, got, want []domain.GroupCount) {
	counts := make(map[string]int, len(want))
	for _, g := range want {
		counts[g.Key] = g.Count
	}
	for _, g := range got {
		if counts[g.Key] != g.Count {
			p.errorf("%s %q: %d records, statistics say %d", name, g.Key, g.Count, counts[g.Key])
		}
		delete(counts, g.Key)
	}
	for key, n := range counts {
		p.errorf("%s %q: statistics say %d, no records found", name, key, n)
	}
}
