package common

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewULID returns a lexicographically sortable id. Ids created within the
// same millisecond are monotonic.
func NewULID() (string, error) {
	return ulid.Make().String(), nil
}

// MustULID is NewULID for call sites that cannot fail.
func MustULID() string {
	id, _ := NewULID()
	return id
}

// IsValidID reports whether s is a well-formed store id.
func IsValidID(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != ulid.EncodedSize {
		return false
	}
	_, err := ulid.ParseStrict(s)
	return err == nil
}
