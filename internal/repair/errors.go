package repair

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when there is no point to seed the engine with
var ErrEmptyInput = errors.New("no points to repair")

// InvalidInputError reports a point that breaks the input contract: finite
// coordinates and strictly ascending timestamps.
type InvalidInputError struct {
	Index     int
	Timestamp int64
	Reason    string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input at point %d (timestamp %d): %s", e.Index, e.Timestamp, e.Reason)
}
