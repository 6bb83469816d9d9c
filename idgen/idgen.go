// Package idgen issues unique session identifiers for accepted connections.
package idgen

import "sync/atomic"

// Generator hands out monotonically increasing uint32 identifiers. It is
// safe for concurrent use; every listener owns one generator so session ids
// are unique within that listener.
type Generator struct {
	last atomic.Uint32
}

// New creates a Generator whose first Next call returns start+1.
//
// Parameters:
//   - start: The value to seed the counter with
//
// Returns:
//   - A new Generator instance
func New(start uint32) *Generator {
	g := &Generator{}
	g.last.Store(start)
	return g
}

// Next returns the next identifier.
//
// Returns:
//   - The next uint32 id, greater than every id returned before it
func (g *Generator) Next() uint32 {
	return g.last.Add(1)
}
