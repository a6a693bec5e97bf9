package ids

import "github.com/oklog/ulid/v2"

// New returns a time-ordered identifier for request correlation. ULIDs
// generated within the same millisecond stay monotonic.
func New() string {
	return ulid.Make().String()
}
