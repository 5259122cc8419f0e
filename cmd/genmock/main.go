// Command genmock writes a synthetic detection CSV in the INPE export layout,
// for development fixtures and local demo runs. Output is reproducible for a
// given seed and end date.
//
// Usage:
//
//	go run ./cmd/genmock -out data/raw/focos_mock.csv -count 5000 -seed 42
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/heatspot-etl-service/internal/synthetic"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the generated CSV")
	count := flag.Int("count", 5000, "number of detections to generate")
	seed := flag.Uint64("seed", 42, "random seed")
	endDate := flag.String("end", time.Now().UTC().Format(time.DateOnly), "last day covered by the detections (YYYY-MM-DD)")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *count < 1 {
		return fmt.Errorf("-count must be positive, got %d", *count)
	}
	end, err := time.Parse(time.DateOnly, *endDate)
	if err != nil {
		return fmt.Errorf("parse -end: %w", err)
	}
	end = end.Add(24*time.Hour - time.Second)

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create %s: %w", *out, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := synthetic.NewGenerator(*seed, end).WriteCSV(w, *count); err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", *out, err)
	}

	log.Printf("wrote %d synthetic detections to %s (seed %d, ending %s)", *count, *out, *seed, *endDate)
	return nil
}
