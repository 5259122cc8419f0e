package pipeline

import (
	"errors"
	"fmt"
)

// ErrNoRecords means the run found no valid detection to process.
var ErrNoRecords = errors.New("no detection records found")

// OutputError reports an artifact that could not be written.
type OutputError struct {
	Artifact string
	Err      error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Artifact, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }

// SourceError reports an input source that could not be listed.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("list %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
