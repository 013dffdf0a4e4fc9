package ghost

import (
	"strings"
)

// Property is a bit set describing a node or cell
type Property uint8

const Interior Property = 0

const (
	Boundary Property = 1 << iota // On the whole-domain boundary
	Shared                        // On a face shared with a neighbor
	Ghost                         // Outside the real extent
	Ignore                        // Owned by another grid
	Refined                       // Cell covered by a finer AMR grid
)

// Has reports whether every bit of f is set in p
func (p Property) Has(f Property) bool {
	return p&f == f && f != 0
}

func (p Property) String() string {
	if p == Interior {
		return "INTERIOR"
	}
	var parts []string
	for _, f := range []struct {
		bit  Property
		name string
	}{
		{Boundary, "BOUNDARY"},
		{Shared, "SHARED"},
		{Ghost, "GHOST"},
		{Ignore, "IGNORE"},
		{Refined, "REFINED"},
	} {
		if p&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// Owner returns the grid that owns a node claimed by the grid id and the
// listed neighbor candidates: the smallest ID wins
func Owner(id int, candidates []int) int {
	owner := id
	for _, c := range candidates {
		if c < owner {
			owner = c
		}
	}
	return owner
}

// Count returns how many entries of props carry every bit of f
func Count(props []Property, f Property) int {
	n := 0
	for _, p := range props {
		if p.Has(f) {
			n++
		}
	}
	return n
}
