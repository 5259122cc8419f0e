// Package synthetic generates plausible heat-spot detection CSVs for
// development fixtures and for demo runs when no real export is available.
//
// Generated rows carry sensor fields only. Region labels are never invented
// here; they come from running the generated rows through normal enrichment.
package synthetic

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/couchcryptid/heatspot-etl-service/internal/adapter/source"
	"github.com/couchcryptid/heatspot-etl-service/internal/domain"
)

// Hotspot is a center that generated detections scatter around.
type Hotspot struct {
	Name      string
	Latitude  float64
	Longitude float64
	Weight    float64
}

// DefaultHotspots are agricultural-frontier and forest-edge municipalities with
// historically high detection counts.
var DefaultHotspots = []Hotspot{
	{"Manaus", -3.1, -60.0, 0.15},
	{"Belém", -1.4, -48.5, 0.12},
	{"Porto Velho", -8.8, -63.9, 0.08},
	{"Rio Branco", -9.9, -67.8, 0.06},
	{"Balsas", -7.5, -46.0, 0.10},
	{"Timon", -5.1, -42.8, 0.08},
	{"Barreiras", -12.2, -45.0, 0.07},
	{"Petrolina", -9.4, -40.5, 0.05},
	{"Sorriso", -12.5, -55.7, 0.09},
	{"Sinop", -11.9, -55.5, 0.07},
	{"Corumbá", -19.0, -57.7, 0.05},
	{"Brasília", -15.8, -47.9, 0.03},
	{"Ribeirão Preto", -21.2, -47.8, 0.04},
	{"Uberaba", -19.7, -47.9, 0.03},
	{"Ponta Grossa", -25.1, -50.2, 0.02},
}

// Satellites are the platforms named in generated rows.
var Satellites = []string{"NOAA-21", "NPP-375D", "GOES-19", "TERRA_M-T", "METOP-C", "AQUA_M-T", "NOAA-20"}

// Header is the column layout of generated CSVs.
var Header = []string{"lat", "lon", "data_hora_gmt", "satelite", "confianca", "temperatura", "frp"}

const (
	spread = 1.0 // degrees, roughly 100 km
	window = 90 * 24 * time.Hour
)

// Generator produces detection rows from a seeded random source, so the same
// seed and end time always produce the same rows.
type Generator struct {
	rng      *rand.Rand
	hotspots []Hotspot
	total    float64
	bounds   domain.Bounds
	end      time.Time
}

// NewGenerator creates a Generator whose timestamps fall in the 90 days before end.
func NewGenerator(seed uint64, end time.Time) *Generator {
	g := &Generator{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		hotspots: DefaultHotspots,
		bounds:   domain.BrazilBounds,
		end:      end.UTC().Truncate(time.Second),
	}
	for _, h := range g.hotspots {
		g.total += h.Weight
	}
	return g
}

// Row returns one CSV row in Header order.
func (g *Generator) Row() []string {
	h := g.pick()
	lat := clamp(h.Latitude+(g.rng.Float64()-0.5)*spread, g.bounds.South, g.bounds.North)
	lon := clamp(h.Longitude+(g.rng.Float64()-0.5)*spread, g.bounds.West, g.bounds.East)
	ts := g.end.Add(-time.Duration(g.rng.Int64N(int64(window/time.Minute))) * time.Minute)

	return []string{
		strconv.FormatFloat(lat, 'f', 5, 64),
		strconv.FormatFloat(lon, 'f', 5, 64),
		ts.Format("2006-01-02 15:04:05"),
		Satellites[g.rng.IntN(len(Satellites))],
		strconv.Itoa(g.rng.IntN(101)),
		strconv.FormatFloat(300+g.rng.Float64()*150, 'f', 1, 64),
		strconv.FormatFloat(g.rng.Float64()*100, 'f', 2, 64),
	}
}

func (g *Generator) pick() Hotspot {
	target := g.rng.Float64() * g.total
	acc := 0.0
	for _, h := range g.hotspots {
		acc += h.Weight
		if target < acc {
			return h
		}
	}
	return g.hotspots[len(g.hotspots)-1]
}

// WriteCSV writes a header and n generated rows to w.
func (g *Generator) WriteCSV(w io.Writer, n int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for range n {
		if err := cw.Write(g.Row()); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

// Source serves a single generated CSV as a source.Source. The document is
// generated once, on first use.
type Source struct {
	name  string
	seed  uint64
	end   time.Time
	count int
	data  []byte
}

// NewSource creates a Source holding count rows generated from seed.
func NewSource(seed uint64, end time.Time, count int) *Source {
	return &Source{
		name:  fmt.Sprintf("synthetic_%s.csv", end.UTC().Format("2006-01-02")),
		seed:  seed,
		end:   end,
		count: count,
	}
}

func (s *Source) List(ctx context.Context) ([]source.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.generate(); err != nil {
		return nil, err
	}
	return []source.Object{{
		ID:         s.name,
		Name:       s.name,
		Size:       int64(len(s.data)),
		ModifiedAt: s.end,
	}}, nil
}

func (s *Source) Open(ctx context.Context, obj source.Object) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if obj.ID != s.name {
		return nil, fmt.Errorf("synthetic source has no object %q", obj.ID)
	}
	if err := s.generate(); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

func (s *Source) generate() error {
	if s.data != nil {
		return nil
	}
	var buf bytes.Buffer
	if err := NewGenerator(s.seed, s.end).WriteCSV(&buf, s.count); err != nil {
		return err
	}
	s.data = buf.Bytes()
	return nil
}
