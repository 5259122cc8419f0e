package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// Labels used when a region cannot be determined.
const (
	Unidentified = "unidentified"
	NoState      = "N/A"
)

// Sentinel values for optional sensor fields that are missing from the source row.
const (
	DefaultConfidence     = 50
	DefaultTemperature    = 300.0 // Kelvin
	DefaultRadiativePower = 0.0
)

// Bounds is a latitude/longitude bounding box in WGS-84 degrees.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// BrazilBounds covers continental Brazil plus Fernando de Noronha.
var BrazilBounds = Bounds{
	North: 5.264877,   // Roraima
	South: -33.742156, // Rio Grande do Sul
	East:  -28.847894, // Fernando de Noronha
	West:  -73.982817, // Acre
}

// Contains reports whether the coordinate lies inside the box, edges included.
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.South && lat <= b.North && lon >= b.West && lon <= b.East
}

// DetectionRecord is one satellite heat-spot detection after ingestion.
type DetectionRecord struct {
	ID             string    `json:"id"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Timestamp      time.Time `json:"timestamp"`
	Date           string    `json:"date"`
	Satellite      string    `json:"satellite"`
	Confidence     int       `json:"confidence"`
	Temperature    float64   `json:"temperature"`
	RadiativePower float64   `json:"radiative_power"`
	SourceFile     string    `json:"source_file,omitempty"`
}

// Point returns the record position in orb's lon/lat order.
func (r DetectionRecord) Point() orb.Point {
	return orb.Point{r.Longitude, r.Latitude}
}

// Source describes how a region label was obtained.
type Source string

const (
	SourcePolygon  Source = "polygon"
	SourceFallback Source = "fallback"
	SourceNone     Source = "none"
)

// ClassificationSources records the provenance of each region label.
type ClassificationSources struct {
	Municipality     Source `json:"municipality"`
	State            Source `json:"state"`
	Biome            Source `json:"biome"`
	ConservationUnit Source `json:"conservation_unit"`
	IndigenousLand   Source `json:"indigenous_land"`
}

// EnrichedRecord is a DetectionRecord plus the region labels assigned to it.
// The embedded detection fields are never modified by enrichment.
type EnrichedRecord struct {
	DetectionRecord

	Municipality     string                `json:"municipality"`
	MunicipalityCode string                `json:"municipality_code,omitempty"`
	State            string                `json:"state"`
	Biome            string                `json:"biome"`
	ConservationUnit string                `json:"conservation_unit,omitempty"`
	IndigenousLand   string                `json:"indigenous_land,omitempty"`
	DayPeriod        string                `json:"day_period"`
	Sources          ClassificationSources `json:"classification_source"`
}

// Unenriched wraps a detection with every region label at its default.
func Unenriched(rec DetectionRecord) EnrichedRecord {
	return EnrichedRecord{
		DetectionRecord: rec,
		Municipality:    Unidentified,
		State:           NoState,
		Biome:           Unidentified,
		DayPeriod:       deriveDayPeriod(rec.Timestamp),
		Sources: ClassificationSources{
			Municipality:     SourceNone,
			State:            SourceNone,
			Biome:            SourceNone,
			ConservationUnit: SourceNone,
			IndigenousLand:   SourceNone,
		},
	}
}

// DashboardRecord is the projection of EnrichedRecord consumed by the map and chart UI.
type DashboardRecord struct {
	ID               string    `json:"id"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Timestamp        time.Time `json:"timestamp"`
	Date             string    `json:"date"`
	Municipality     string    `json:"municipality"`
	State            string    `json:"state"`
	Biome            string    `json:"biome"`
	ConservationUnit string    `json:"conservation_unit,omitempty"`
	IndigenousLand   string    `json:"indigenous_land,omitempty"`
	Satellite        string    `json:"satellite"`
	Confidence       int       `json:"confidence"`
}

// Dashboard projects the record onto the dashboard field subset.
func (r EnrichedRecord) Dashboard() DashboardRecord {
	return DashboardRecord{
		ID:               r.ID,
		Latitude:         r.Latitude,
		Longitude:        r.Longitude,
		Timestamp:        r.Timestamp,
		Date:             r.Date,
		Municipality:     r.Municipality,
		State:            r.State,
		Biome:            r.Biome,
		ConservationUnit: r.ConservationUnit,
		IndigenousLand:   r.IndigenousLand,
		Satellite:        r.Satellite,
		Confidence:       r.Confidence,
	}
}

// deriveDayPeriod buckets the UTC hour of t into a period of the day.
func deriveDayPeriod(t time.Time) string {
	if t.IsZero() {
		return Unidentified
	}
	switch h := t.UTC().Hour(); {
	case h >= 6 && h < 12:
		return "morning"
	case h >= 12 && h < 18:
		return "afternoon"
	case h >= 18:
		return "night"
	default:
		return "dawn"
	}
}
