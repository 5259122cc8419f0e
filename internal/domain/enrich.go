package domain

// ClassificationWarning is a non-fatal problem met while enriching one record.
type ClassificationWarning struct {
	RecordID string   `json:"record_id"`
	Category Category `json:"category"`
	Region   string   `json:"region,omitempty"`
	Reason   string   `json:"reason"`
}

// Enricher assigns region labels to detections using a RegionIndex, falling
// back to coordinate heuristics for categories with no reference geometry.
type Enricher struct {
	index    *RegionIndex
	fallback *FallbackClassifier
}

// NewEnricher creates an Enricher. A nil fallback uses the default biome rules.
func NewEnricher(index *RegionIndex, fallback *FallbackClassifier) *Enricher {
	if fallback == nil {
		fallback = NewFallbackClassifier(nil)
	}
	return &Enricher{index: index, fallback: fallback}
}

// Enrich labels a single record. It never fails: a category that cannot be
// classified keeps its default label, and geometry faults come back as warnings.
// The result depends only on the record and the index.
func (e *Enricher) Enrich(rec DetectionRecord) (EnrichedRecord, []ClassificationWarning) {
	out := Unenriched(rec)
	p := rec.Point()
	var warnings []ClassificationWarning

	lookup := func(cat Category) (RegionGeometry, bool) {
		region, ok, faults := e.index.Classify(cat, p)
		for _, f := range faults {
			warnings = append(warnings, ClassificationWarning{
				RecordID: rec.ID,
				Category: f.Category,
				Region:   f.Region,
				Reason:   f.Reason,
			})
		}
		return region, ok
	}

	if m, ok := lookup(CategoryMunicipality); ok {
		out.Municipality = labelOr(m.Name, Unidentified)
		out.MunicipalityCode = m.Code
		out.Sources.Municipality = SourcePolygon
		if m.State != "" {
			out.State = m.State
			out.Sources.State = SourcePolygon
		}
	} else if !e.index.Has(CategoryMunicipality) {
		out.Municipality = e.estimate(CategoryMunicipality, rec, &out.Sources.Municipality, Unidentified)
	}

	if out.Sources.State == SourceNone {
		if s, ok := lookup(CategoryState); ok {
			out.State = labelOr(s.State, labelOr(s.Name, NoState))
			out.Sources.State = SourcePolygon
		} else if !e.index.Has(CategoryState) {
			out.State = e.estimate(CategoryState, rec, &out.Sources.State, NoState)
		}
	}

	if b, ok := lookup(CategoryBiome); ok {
		out.Biome = labelOr(b.Name, Unidentified)
		out.Sources.Biome = SourcePolygon
	} else if !e.index.Has(CategoryBiome) {
		out.Biome = e.estimate(CategoryBiome, rec, &out.Sources.Biome, Unidentified)
	}

	if uc, ok := lookup(CategoryConservationUnit); ok {
		out.ConservationUnit = labelOr(uc.Name, "UC")
		out.Sources.ConservationUnit = SourcePolygon
	}

	if ti, ok := lookup(CategoryIndigenousLand); ok {
		out.IndigenousLand = labelOr(ti.Name, "TI")
		out.Sources.IndigenousLand = SourcePolygon
	}

	return out, warnings
}

func (e *Enricher) estimate(cat Category, rec DetectionRecord, src *Source, def string) string {
	if !e.fallback.Supports(cat) {
		return def
	}
	label, ok := e.fallback.Estimate(cat, rec.Latitude, rec.Longitude)
	if !ok {
		return def
	}
	*src = SourceFallback
	return label
}

func labelOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
