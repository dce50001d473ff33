package warranty

import (
	"errors"
	"fmt"
)

// ErrUnexpectedPageState is returned when the page shows neither a known
// success nor a known failure marker before the deadline. It means the vendor
// flow changed and the run must stop.
var ErrUnexpectedPageState = errors.New("unexpected page state")

// WarrantyNotFoundError is returned when a detail page loaded but its
// warranty dates could not be found.
type WarrantyNotFoundError struct {
	URL     string
	Missing []string
}

func (e *WarrantyNotFoundError) Error() string {
	return fmt.Sprintf("warranty not found on %s: missing %v", e.URL, e.Missing)
}

// IsFatal reports whether err must abort the run rather than being recorded
// on a single computer.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var notFound *WarrantyNotFoundError
	return errors.Is(err, ErrUnexpectedPageState) || errors.As(err, &notFound)
}
