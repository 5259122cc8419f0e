package domain

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Category is one class of reference boundary data.
type Category string

const (
	CategoryMunicipality     Category = "municipality"
	CategoryState            Category = "state"
	CategoryBiome            Category = "biome"
	CategoryConservationUnit Category = "conservation_unit"
	CategoryIndigenousLand   Category = "indigenous_land"
)

// Categories lists every region category in enrichment order. State follows
// municipality because it is only consulted when the municipality match lacks one.
var Categories = []Category{
	CategoryMunicipality,
	CategoryState,
	CategoryBiome,
	CategoryConservationUnit,
	CategoryIndigenousLand,
}

// ReferenceFile is the conventional GeoJSON file name for the category.
func (c Category) ReferenceFile() string {
	switch c {
	case CategoryMunicipality:
		return "municipios_brasil.geojson"
	case CategoryState:
		return "estados_brasil.geojson"
	case CategoryBiome:
		return "biomas_brasil.geojson"
	case CategoryConservationUnit:
		return "unidades_conservacao.geojson"
	case CategoryIndigenousLand:
		return "terras_indigenas.geojson"
	default:
		return ""
	}
}

// RegionGeometry is one named boundary within a category.
type RegionGeometry struct {
	Category   Category
	Name       string
	State      string
	Code       string
	Properties map[string]any
	Geometry   orb.Geometry
}

// GeometryFault describes a reference geometry that could not be tested.
type GeometryFault struct {
	Category Category
	Region   string
	Position int
	Reason   string
}

func (f GeometryFault) Error() string {
	return fmt.Sprintf("%s geometry %d (%q): %s", f.Category, f.Position, f.Region, f.Reason)
}

type indexedRegion struct {
	region   RegionGeometry
	position int
	bound    orb.Bound
	fault    *GeometryFault
}

// RegionIndex answers point-in-region queries per category. It is immutable
// after BuildRegionIndex and safe for concurrent use without locking.
type RegionIndex struct {
	regions map[Category][]indexedRegion
}

// BuildRegionIndex indexes the given geometries, preserving their order within
// each category. Geometries that cannot be tested are kept as faults so that
// queries can report them instead of failing.
func BuildRegionIndex(collections map[Category][]RegionGeometry) *RegionIndex {
	idx := &RegionIndex{regions: make(map[Category][]indexedRegion, len(collections))}
	for cat, geoms := range collections {
		entries := make([]indexedRegion, 0, len(geoms))
		for i, g := range geoms {
			g.Category = cat
			entry := indexedRegion{region: g, position: i}
			if reason := validateGeometry(g.Geometry); reason != "" {
				entry.fault = &GeometryFault{Category: cat, Region: g.Name, Position: i, Reason: reason}
			} else {
				entry.bound = g.Geometry.Bound()
			}
			entries = append(entries, entry)
		}
		idx.regions[cat] = entries
	}
	return idx
}

// Len returns the number of geometries loaded for the category.
func (idx *RegionIndex) Len(cat Category) int {
	if idx == nil {
		return 0
	}
	return len(idx.regions[cat])
}

// Has reports whether any geometry is loaded for the category.
func (idx *RegionIndex) Has(cat Category) bool {
	return idx.Len(cat) > 0
}

// Loaded lists the categories that have at least one geometry, in enrichment order.
func (idx *RegionIndex) Loaded() []Category {
	var out []Category
	for _, c := range Categories {
		if idx.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Faults returns every geometry in the index that failed validation.
func (idx *RegionIndex) Faults() []GeometryFault {
	if idx == nil {
		return nil
	}
	var out []GeometryFault
	for _, c := range Categories {
		for _, e := range idx.regions[c] {
			if e.fault != nil {
				out = append(out, *e.fault)
			}
		}
	}
	return out
}

// Classify returns the first geometry in load order that contains p, or false
// when none does. Geometries that fault during the test count as no match and
// are reported in the returned slice. Geometries rejected at build time are
// skipped here; see Faults.
func (idx *RegionIndex) Classify(cat Category, p orb.Point) (RegionGeometry, bool, []GeometryFault) {
	if idx == nil {
		return RegionGeometry{}, false, nil
	}
	var faults []GeometryFault
	for i := range idx.regions[cat] {
		e := &idx.regions[cat][i]
		if e.fault != nil {
			continue
		}
		if !e.bound.Contains(p) {
			continue
		}
		ok, err := contains(e.region.Geometry, p)
		if err != nil {
			faults = append(faults, GeometryFault{Category: cat, Region: e.region.Name, Position: e.position, Reason: err.Error()})
			continue
		}
		if ok {
			return e.region, true, faults
		}
	}
	return RegionGeometry{}, false, faults
}

// contains runs the planar containment test, converting a panic from a
// malformed ring into an error.
func contains(g orb.Geometry, p orb.Point) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("containment test panicked: %v", r)
		}
	}()

	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, p), nil
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, p), nil
	case orb.Bound:
		return geom.Contains(p), nil
	default:
		return false, fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
	}
}

// validateGeometry returns a non-empty reason when g cannot take part in
// containment tests.
func validateGeometry(g orb.Geometry) string {
	switch geom := g.(type) {
	case nil:
		return "missing geometry"
	case orb.Polygon:
		return validatePolygon(geom)
	case orb.MultiPolygon:
		if len(geom) == 0 {
			return "empty multipolygon"
		}
		for _, poly := range geom {
			if reason := validatePolygon(poly); reason != "" {
				return reason
			}
		}
		return ""
	case orb.Bound:
		if geom.Min[0] > geom.Max[0] || geom.Min[1] > geom.Max[1] {
			return "inverted bound"
		}
		return ""
	default:
		return fmt.Sprintf("unsupported geometry type %s", g.GeoJSONType())
	}
}

func validatePolygon(p orb.Polygon) string {
	if len(p) == 0 {
		return "polygon has no rings"
	}
	for _, ring := range p {
		if len(ring) < 4 {
			return fmt.Sprintf("ring has %d points, need at least 4", len(ring))
		}
	}
	return ""
}
