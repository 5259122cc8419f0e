// Package domain models satellite heat-spot ("foco de calor") detections over
// Brazil and their assignment to administrative and ecological regions.
//
// # Data Source
//
// Detections come from INPE's fire monitoring program as daily CSV exports,
// one row per detection. The upstream fetcher drops the files into a Drive
// folder; reference boundaries (IBGE municipalities and states, IBGE biomes,
// ICMBio conservation units, FUNAI indigenous lands) live in a sibling folder
// as one GeoJSON feature collection per category.
//
// # Column Conventions
//
// Export formats have drifted over the years, so header names are matched
// case-insensitively against a synonym table:
//
//	latitude     lat, latitude, y
//	longitude    lon, lng, longitude, x
//	timestamp    data, date, data_hora, data_hora_gmt, data_pas, datetime
//	satellite    satelite, satellite, sat
//	confidence   confianca, confidence, conf
//	temperature  temperatura, temperature, temp
//	power (FRP)  potencia, power, frp
//
// Timestamps are GMT. Accepted layouts, first match wins:
//
//	2024-08-01T17:30:00Z
//	2024-08-01 17:30:00
//	2024/08/01 17:30:00
//	01/08/2024 17:30:00   (day first)
//	2024-08-01T17:30:00   (no zone)
//	2024-08-01T17:30
//	2024-08-01 17:30
//	01/08/2024 17:30
//	2024-08-01
//	01/08/2024
//
// Failing those, a leading 2024-08-01 or 01/08/2024 date is kept at midnight
// and the rest of the value is ignored.
//
// Missing optional fields take sentinel values: confidence 50, temperature
// 300 K, radiative power 0, satellite "unidentified". A row whose timestamp
// cannot be parsed is stamped with ingestion time and counted in the ingest
// report.
//
// # Bounding Box
//
// Rows outside continental Brazil are dropped:
//
//	north   5.264877   (Roraima)
//	south -33.742156   (Rio Grande do Sul)
//	east  -28.847894   (Fernando de Noronha)
//	west  -73.982817   (Acre)
//
// # Region Assignment
//
// Each category is tested against its polygons in load order and the first
// containing polygon wins. Boundaries within a category are assumed not to
// overlap; where they do, load order decides.
//
// When a category has no polygons loaded, biome falls back to coarse
// coordinate bands (see DefaultBiomeRules) and municipality/state fall back to
// "unidentified"/"N/A". Every label carries its provenance (polygon, fallback,
// none) in EnrichedRecord.Sources.
package domain
