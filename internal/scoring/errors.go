package scoring

import "fmt"

// ValidationError reports a missing, zero or negative required numeric
// field. Surfaced to the caller before feature extraction with the
// offending field named.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
