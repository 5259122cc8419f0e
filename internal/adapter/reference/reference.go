// Package reference loads region boundary collections (GeoJSON feature
// collections, one per category) into domain geometries.
package reference

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/couchcryptid/heatspot-etl-service/internal/adapter/source"
	"github.com/couchcryptid/heatspot-etl-service/internal/domain"
	"github.com/paulmach/orb/geojson"
)

// nameKeys lists the property names holding a region's display name, per
// category, in priority order.
var nameKeys = map[domain.Category][]string{
	domain.CategoryMunicipality:     {"NM_MUNICIP", "NM_MUN", "nome", "name"},
	domain.CategoryState:            {"SIGLA_UF", "uf", "NM_UF", "nome"},
	domain.CategoryBiome:            {"NM_BIOMA", "Bioma", "nome", "name"},
	domain.CategoryConservationUnit: {"NOME_UC", "NOME_UC1", "nome", "name"},
	domain.CategoryIndigenousLand:   {"TERRA_INDI", "terrai_nom", "nome", "name"},
}

var (
	stateKeys = []string{"SIGLA_UF", "uf", "SIGLA"}
	codeKeys  = []string{"CD_GEOCMU", "CD_MUN", "codigo"}
)

// Decode parses a GeoJSON feature collection into region geometries of the
// given category, preserving feature order. Features without geometry are kept
// so the region index can report them.
func Decode(data []byte, cat domain.Category) ([]domain.RegionGeometry, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s geojson: %w", cat, err)
	}

	out := make([]domain.RegionGeometry, 0, len(fc.Features))
	for _, f := range fc.Features {
		props := f.Properties
		out = append(out, domain.RegionGeometry{
			Category:   cat,
			Name:       lookup(props, nameKeys[cat]),
			State:      lookup(props, stateKeys),
			Code:       lookup(props, codeKeys),
			Properties: map[string]any(f.Properties),
			Geometry:   f.Geometry,
		})
	}
	return out, nil
}

// Load reads every category's reference file from src. A missing or unreadable
// file yields no geometries for that category, so enrichment falls back for it.
// Only a failure to list src is returned as an error.
func Load(ctx context.Context, src source.Source, logger *slog.Logger) (map[domain.Category][]domain.RegionGeometry, error) {
	objs, err := src.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[domain.Category][]domain.RegionGeometry, len(domain.Categories))
	for _, cat := range domain.Categories {
		obj, ok := source.Find(objs, cat.ReferenceFile())
		if !ok {
			logger.Warn("reference file not found", "category", cat, "file", cat.ReferenceFile())
			continue
		}

		geoms, err := loadOne(ctx, src, obj, cat)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Error("reference file unusable", "category", cat, "file", obj.Name, "error", err)
			continue
		}
		logger.Info("reference geometries loaded", "category", cat, "file", obj.Name, "geometries", len(geoms))
		out[cat] = geoms
	}
	return out, nil
}

func loadOne(ctx context.Context, src source.Source, obj source.Object, cat domain.Category) ([]domain.RegionGeometry, error) {
	rc, err := src.Open(ctx, obj)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", obj.Name, err)
	}
	return Decode(data, cat)
}

// lookup returns the first non-empty value among keys. A property named
// exactly like the key wins over ones that differ only in case.
func lookup(props geojson.Properties, keys []string) string {
	for _, k := range keys {
		if s := stringify(props[k]); s != "" {
			return s
		}
		if fk, ok := foldedKey(props, k); ok {
			if s := stringify(props[fk]); s != "" {
				return s
			}
		}
	}
	return ""
}

// foldedKey returns the smallest property name equal to key under case
// folding, so that features carrying several spellings resolve the same way
// on every run.
func foldedKey(props geojson.Properties, key string) (string, bool) {
	var best string
	found := false
	for k := range props {
		if k == key || !strings.EqualFold(k, key) {
			continue
		}
		if !found || k < best {
			best, found = k, true
		}
	}
	return best, found
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
