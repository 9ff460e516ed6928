package document

import "fmt"

// ValidationError is raised synchronously by mutators that reject their
// input, e.g. an attempt to mutate a reserved field or set run_id twice.
// It never transits as an Event.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("document: %s: %s", e.Op, e.Reason)
}
