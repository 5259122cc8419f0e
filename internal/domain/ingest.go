package domain

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMissingCoordinateColumns is returned when a header names no latitude or
// no longitude column. The file yields no records.
var ErrMissingCoordinateColumns = errors.New("header has no latitude/longitude column")

type column int

const (
	colLatitude column = iota
	colLongitude
	colTimestamp
	colSatellite
	colConfidence
	colTemperature
	colRadiativePower
	numColumns
)

// columnSynonyms lists accepted header names per logical field, in priority
// order. Matching is case-insensitive.
var columnSynonyms = [numColumns][]string{
	colLatitude:       {"lat", "latitude", "y"},
	colLongitude:      {"lon", "lng", "longitude", "x"},
	colTimestamp:      {"data", "date", "data_hora", "data_hora_gmt", "data_pas", "datetime"},
	colSatellite:      {"satelite", "satellite", "sat"},
	colConfidence:     {"confianca", "confidence", "conf"},
	colTemperature:    {"temperatura", "temperature", "temp"},
	colRadiativePower: {"potencia", "power", "frp"},
}

// timestampLayouts are tried in order; all are interpreted as UTC unless the
// layout carries an offset.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"02/01/2006 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"02/01/2006 15:04",
	"2006-01-02",
	"02/01/2006",
}

// datePrefixLayouts are tried against the leading date of a timestamp that no
// full layout matched. Such timestamps keep their date at midnight UTC.
var datePrefixLayouts = []string{"2006-01-02", "02/01/2006"}

// IngestReport counts what happened to the input lines of one or more files.
type IngestReport struct {
	Files              int `json:"files"`
	HeaderErrors       int `json:"header_errors"`
	Lines              int `json:"lines"`
	Accepted           int `json:"accepted"`
	Malformed          int `json:"malformed"`
	OutOfBounds        int `json:"out_of_bounds"`
	TimestampFallbacks int `json:"timestamp_fallbacks"`
}

// Add accumulates another report into r.
func (r *IngestReport) Add(o IngestReport) {
	r.Files += o.Files
	r.HeaderErrors += o.HeaderErrors
	r.Lines += o.Lines
	r.Accepted += o.Accepted
	r.Malformed += o.Malformed
	r.OutOfBounds += o.OutOfBounds
	r.TimestampFallbacks += o.TimestampFallbacks
}

// Ingestor turns delimited detection text into validated DetectionRecords.
type Ingestor struct {
	bounds    Bounds
	delimiter rune
	logger    *slog.Logger
}

// IngestorOption customizes an Ingestor.
type IngestorOption func(*Ingestor)

// WithBounds overrides the accepted bounding box.
func WithBounds(b Bounds) IngestorOption {
	return func(in *Ingestor) { in.bounds = b }
}

// WithDelimiter overrides the field delimiter (default ',').
func WithDelimiter(d rune) IngestorOption {
	return func(in *Ingestor) { in.delimiter = d }
}

// NewIngestor creates an Ingestor for Brazil with comma-delimited input. A nil
// logger means slog.Default().
func NewIngestor(logger *slog.Logger, opts ...IngestorOption) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	in := &Ingestor{bounds: BrazilBounds, delimiter: ',', logger: logger}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Bounds returns the bounding box records are validated against.
func (in *Ingestor) Bounds() Bounds {
	return in.bounds
}

// Stream is a single-use, lazily parsed sequence of records from one input.
type Stream struct {
	in       *Ingestor
	name     string
	r        io.Reader
	consumed bool
	report   IngestReport
	err      error
}

// Parse prepares a stream over r. name is recorded as each record's SourceFile.
// Nothing is read until Records is iterated.
func (in *Ingestor) Parse(name string, r io.Reader) *Stream {
	return &Stream{in: in, name: name, r: r}
}

// ParseString is Parse over an in-memory document.
func (in *Ingestor) ParseString(name, raw string) *Stream {
	return in.Parse(name, strings.NewReader(raw))
}

// Report returns the line counts observed so far.
func (s *Stream) Report() IngestReport {
	return s.report
}

// Err returns the file-level error that stopped the stream, if any. Bad rows
// are skipped and counted, never reported here.
func (s *Stream) Err() error {
	return s.err
}

// Records yields the valid records in input order. Malformed and out-of-bounds
// rows are skipped. The stream can be iterated once; later calls yield nothing.
func (s *Stream) Records() iter.Seq[DetectionRecord] {
	return func(yield func(DetectionRecord) bool) {
		if s.consumed {
			return
		}
		s.consumed = true
		s.report.Files = 1

		cr := csv.NewReader(s.r)
		cr.Comma = s.in.delimiter
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = true
		cr.TrimLeadingSpace = true
		cr.ReuseRecord = true

		header, err := cr.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.err = fmt.Errorf("read header of %s: %w", s.name, err)
				s.report.HeaderErrors++
			}
			return
		}
		cols := resolveColumns(header)
		if cols[colLatitude] < 0 || cols[colLongitude] < 0 {
			s.err = fmt.Errorf("%s: %w", s.name, ErrMissingCoordinateColumns)
			s.report.HeaderErrors++
			return
		}

		for {
			row, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				var perr *csv.ParseError
				if errors.As(err, &perr) {
					s.report.Lines++
					s.report.Malformed++
					continue
				}
				s.err = fmt.Errorf("read %s: %w", s.name, err)
				return
			}
			if isBlank(row) {
				continue
			}
			s.report.Lines++

			rec, status := s.in.parseRow(cols, row)
			switch status {
			case rowMalformed:
				s.report.Malformed++
				continue
			case rowOutOfBounds:
				s.report.OutOfBounds++
				continue
			case rowTimestampFallback:
				s.report.TimestampFallbacks++
				s.in.logger.Debug("timestamp unparsable, using ingestion time",
					"file", s.name, "line", s.report.Lines+1, "record_id", rec.ID)
			}
			rec.SourceFile = s.name
			s.report.Accepted++
			if !yield(rec) {
				return
			}
		}
	}
}

type rowStatus int

const (
	rowOK rowStatus = iota
	rowMalformed
	rowOutOfBounds
	rowTimestampFallback
)

func (in *Ingestor) parseRow(cols [numColumns]int, row []string) (DetectionRecord, rowStatus) {
	field := func(c column) string {
		i := cols[c]
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.Trim(strings.TrimSpace(row[i]), `"`)
	}

	lat, errLat := parseDecimal(field(colLatitude))
	lon, errLon := parseDecimal(field(colLongitude))
	if errLat != nil || errLon != nil {
		return DetectionRecord{}, rowMalformed
	}
	if !in.bounds.Contains(lat, lon) {
		return DetectionRecord{}, rowOutOfBounds
	}

	status := rowOK
	ts, ok := normalizeTimestamp(field(colTimestamp))
	if !ok {
		ts = clock.Now().UTC().Truncate(time.Second)
		status = rowTimestampFallback
	}

	satellite := field(colSatellite)
	if satellite == "" {
		satellite = Unidentified
	}

	rec := DetectionRecord{
		Latitude:       lat,
		Longitude:      lon,
		Timestamp:      ts,
		Date:           ts.Format("2006-01-02"),
		Satellite:      satellite,
		Confidence:     parseConfidence(field(colConfidence)),
		Temperature:    parseDecimalOr(field(colTemperature), DefaultTemperature),
		RadiativePower: parseDecimalOr(field(colRadiativePower), DefaultRadiativePower),
	}
	rec.ID = generateID(rec.Latitude, rec.Longitude, field(colTimestamp), rec.Satellite)
	return rec, status
}

// resolveColumns maps each logical field to its header index, or -1.
func resolveColumns(header []string) [numColumns]int {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.Trim(strings.TrimSpace(h), "\"\ufeff"))
		if _, seen := pos[key]; !seen {
			pos[key] = i
		}
	}

	var cols [numColumns]int
	for c := range cols {
		cols[c] = -1
		for _, name := range columnSynonyms[c] {
			if i, ok := pos[name]; ok {
				cols[c] = i
				break
			}
		}
	}
	return cols
}

// parseDecimal accepts '.' or, when no '.' is present, ',' as decimal separator.
func parseDecimal(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("empty value")
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

func parseDecimalOr(s string, def float64) float64 {
	v, err := parseDecimal(s)
	if err != nil {
		return def
	}
	return v
}

// parseConfidence rounds to an integer percentage clamped to [0, 100].
func parseConfidence(s string) int {
	v, err := parseDecimal(s)
	if err != nil {
		return DefaultConfidence
	}
	c := int(math.Round(v))
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}

// normalizeTimestamp parses s with the first matching layout, returning UTC.
// When no layout matches the whole string, a leading date is accepted on its
// own.
func normalizeTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if len(s) < len("2006-01-02") {
		return time.Time{}, false
	}
	prefix := s[:len("2006-01-02")]
	for _, layout := range datePrefixLayouts {
		if t, err := time.Parse(layout, prefix); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// generateID produces a deterministic ID from the detection's identifying
// fields, so re-ingesting a row yields the same ID.
func generateID(lat, lon float64, rawTime, satellite string) string {
	input := fmt.Sprintf("%.6f|%.6f|%s|%s", lat, lon, rawTime, satellite)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:8])
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
