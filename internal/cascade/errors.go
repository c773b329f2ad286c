package cascade

import (
	"errors"
	"fmt"
)

// NotFoundMessage is reported when every strategy came back empty.
const NotFoundMessage = "PDF417 visible in scan area but not decoded by any method."

// ErrNotFound is returned by Outcome.Err when the cascade is exhausted.
var ErrNotFound = errors.New("cascade: no PDF417 symbol decoded")

// BackendError records a failure of one strategy (or of one variant inside
// a sweep). It never escapes the cascade except as attempt diagnostics.
type BackendError struct {
	Strategy string
	Variant  string
	Err      error
}

func (e *BackendError) Error() string {
	if e.Variant != "" {
		return fmt.Sprintf("backend failure in %s on %s: %v", e.Strategy, e.Variant, e.Err)
	}
	return fmt.Sprintf("backend failure in %s: %v", e.Strategy, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
