// Package idgen produces identifiers for durable task records.
package idgen

import (
	"strconv"

	"github.com/google/uuid"
)

// Func generates a new unique id. It is a seam so tests can use
// deterministic ids.
type Func func() string

// UUID is the production generator.
func UUID() string { return uuid.NewString() }

// Sequence returns a generator yielding "p-1", "p-2", ... for tests.
func Sequence(prefix string) Func {
	n := 0
	return func() string {
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}
