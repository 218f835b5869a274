package surface

import "errors"

// Error kinds reported by the mapping engine. Callers match them with
// errors.Is; the returned errors wrap these with context.
var (
	// ErrConfiguration reports a surface whose point lists do not match its kind.
	ErrConfiguration = errors.New("surface configuration error")

	// ErrNotFound reports an operation on an unknown surface id.
	ErrNotFound = errors.New("surface not found")

	// ErrFormat reports a malformed surfaces document.
	ErrFormat = errors.New("malformed surfaces document")

	// ErrPrecondition reports an argument outside the accepted domain,
	// such as a non-positive destination size or an out-of-range subdivision
	// count.
	ErrPrecondition = errors.New("precondition violation")
)
