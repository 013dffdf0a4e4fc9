package extent

import (
	"fmt"
)

// Overlap classifies how two index ranges meet
type Overlap uint8

const (
	NoOverlap      Overlap = iota
	NodeOverlap            // Ranges share exactly one index
	EdgeOverlap            // Ranges are identical
	PartialOverlap         // Ranges share more than one index
)

func (o Overlap) String() string {
	switch o {
	case NoOverlap:
		return "NO_OVERLAP"
	case NodeOverlap:
		return "NODE_OVERLAP"
	case EdgeOverlap:
		return "EDGE_OVERLAP"
	case PartialOverlap:
		return "PARTIAL_OVERLAP"
	}
	return fmt.Sprintf("Overlap(%d)", o)
}

// Orientation locates a grid relative to a neighbor along one axis
type Orientation int

const (
	SubsetLo   Orientation = -2 // Grid range ends where the neighbor ends
	Lo         Orientation = -1 // Neighbor lies on the low side
	OneToOne   Orientation = 0  // Ranges are identical
	Hi         Orientation = 1  // Neighbor lies on the high side
	SubsetHi   Orientation = 2  // Grid range starts where the neighbor starts
	SubsetBoth Orientation = 3  // Grid range strictly inside the neighbor
	Superset   Orientation = 4  // Neighbor range inside the grid range
	Undefined  Orientation = 5
)

func (o Orientation) String() string {
	switch o {
	case SubsetLo:
		return "SUBSET_LO"
	case Lo:
		return "LO"
	case OneToOne:
		return "ONE_TO_ONE"
	case Hi:
		return "HI"
	case SubsetHi:
		return "SUBSET_HI"
	case SubsetBoth:
		return "SUBSET_BOTH"
	case Superset:
		return "SUPERSET"
	case Undefined:
		return "UNDEFINED"
	}
	return fmt.Sprintf("Orientation(%d)", int(o))
}

// IntervalOverlap classifies the intersection of the inclusive ranges a and
// b and returns the shared range
func IntervalOverlap(a, b [2]int) (Overlap, [2]int) {
	ca := Cardinality(a[0], a[1])
	cb := Cardinality(b[0], b[1])

	if ca != cb {
		return partialOverlap(a, b, ca, cb)
	}

	switch {
	case a == b:
		return EdgeOverlap, a
	case a[1] == b[0]:
		return NodeOverlap, [2]int{a[1], a[1]}
	case a[0] == b[1]:
		return NodeOverlap, [2]int{a[0], a[0]}
	}

	r := [2]int{max(a[0], b[0]), min(a[1], b[1])}
	switch {
	case r[0] > r[1]:
		return NoOverlap, [2]int{}
	case r[0] == r[1]:
		return NodeOverlap, r
	}
	return PartialOverlap, r
}

// partialOverlap handles ranges of different cardinality
func partialOverlap(a, b [2]int, ca, cb int) (Overlap, [2]int) {
	short, long := a, b
	if ca > cb {
		short, long = b, a
	}

	var r [2]int
	switch {
	case InBounds(short[0], long[0], long[1]) && InBounds(short[1], long[0], long[1]):
		r = short
	case InBounds(short[0], long[0], long[1]):
		r = [2]int{short[0], long[1]}
	case InBounds(short[1], long[0], long[1]):
		r = [2]int{long[0], short[1]}
	default:
		return NoOverlap, [2]int{}
	}

	if r[0] == r[1] {
		return NodeOverlap, r
	}
	return PartialOverlap, r
}

// DetermineOrientation gives the orientation of range a with respect to
// range b, where overlap is their shared range
func DetermineOrientation(a, b, overlap [2]int) Orientation {
	if overlap[0] == overlap[1] {
		switch {
		case a[1] == b[0]:
			return Hi
		case a[0] == b[1]:
			return Lo
		}
	}

	if IsSubset(a, b) {
		switch {
		case a == b:
			return OneToOne
		case StrictlyInBounds(a[0], b[0], b[1]) && StrictlyInBounds(a[1], b[0], b[1]):
			return SubsetBoth
		case a[0] == b[0]:
			return SubsetHi
		case a[1] == b[1]:
			return SubsetLo
		}
	}

	if IsSubset(b, a) {
		return Superset
	}

	switch {
	case InBounds(a[0], b[0], b[1]):
		return Lo
	case InBounds(a[1], b[0], b[1]):
		return Hi
	}
	return Undefined
}

// Complementary reports whether o and p are the orientations seen from the
// two sides of the same axis overlap
func Complementary(o, p Orientation) bool {
	switch o {
	case Hi:
		return p == Lo
	case Lo:
		return p == Hi
	case OneToOne:
		return p == OneToOne
	case SubsetLo, SubsetHi, SubsetBoth:
		return p == Superset
	case Superset:
		return p == SubsetLo || p == SubsetHi || p == SubsetBoth
	case Undefined:
		return p == Undefined
	}
	return false
}
