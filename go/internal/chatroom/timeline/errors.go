package timeline

import "errors"

var (
	// ErrInvalidTimestamp is returned when a room's created-at value is missing or unparseable.
	ErrInvalidTimestamp = errors.New("invalid room timestamp")

	// ErrConfigurationInvariant is returned when phase offsets are negative, overlap, leave gaps
	// or add up to a lifetime that does not fit a time.Duration.
	ErrConfigurationInvariant = errors.New("timeline configuration invariant violated")
)
