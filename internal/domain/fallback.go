package domain

// BiomeRule maps a coordinate range to a biome label.
type BiomeRule struct {
	Biome string
	Match func(lat, lon float64) bool
}

// DefaultBiomeRules approximate Brazil's biome bands. They are evaluated in
// order and overlap heavily, so the order is part of the rule set.
//
// Labels follow IBGE's biome names, so the southern grasslands are "Pampa".
// Consumers keyed on the older "Pampas" spelling need to map it.
var DefaultBiomeRules = []BiomeRule{
	{Biome: "Amazônia", Match: func(lat, lon float64) bool { return lat > -5 && lon < -55 }},
	{Biome: "Cerrado", Match: func(lat, lon float64) bool { return lat > -20 && lat < -5 && lon > -60 && lon < -40 }},
	{Biome: "Caatinga", Match: func(lat, lon float64) bool { return lat > -15 && lat < -3 && lon > -45 && lon < -35 }},
	{Biome: "Mata Atlântica", Match: func(lat, lon float64) bool { return lon > -50 && lon < -35 }},
	{Biome: "Pantanal", Match: func(lat, lon float64) bool { return lat > -22 && lat < -15 && lon > -60 && lon < -55 }},
	{Biome: "Pampa", Match: func(lat, _ float64) bool { return lat < -28 }},
}

// FallbackClassifier estimates region labels from coordinates alone. Its labels
// are coarse and should be treated as lower confidence than polygon matches.
type FallbackClassifier struct {
	biomeRules []BiomeRule
}

// NewFallbackClassifier creates a classifier over the given biome rules.
// Pass nil to use DefaultBiomeRules.
func NewFallbackClassifier(rules []BiomeRule) *FallbackClassifier {
	if rules == nil {
		rules = DefaultBiomeRules
	}
	return &FallbackClassifier{biomeRules: rules}
}

// Supports reports whether the classifier has a heuristic for the category.
func (f *FallbackClassifier) Supports(cat Category) bool {
	return cat == CategoryBiome
}

// Estimate returns a label for the category at the given coordinate and
// whether a heuristic produced it. Categories without a heuristic return their
// default label and false.
func (f *FallbackClassifier) Estimate(cat Category, lat, lon float64) (string, bool) {
	switch cat {
	case CategoryBiome:
		for _, rule := range f.biomeRules {
			if rule.Match(lat, lon) {
				return rule.Biome, true
			}
		}
		return Unidentified, false
	case CategoryState:
		return NoState, false
	case CategoryMunicipality:
		return Unidentified, false
	default:
		return "", false
	}
}
