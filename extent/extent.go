package extent

import (
	"fmt"
)

// Extent is an inclusive structured index range
// [imin, imax, jmin, jmax, kmin, kmax]
type Extent [6]int

// Description identifies which axes of an extent are active
type Description uint8

const (
	Empty       Description = iota // Some axis has max < min
	SinglePoint                    // No active axis
	XLine
	YLine
	ZLine
	XYPlane
	YZPlane
	XZPlane
	XYZGrid
)

var descriptionNames = [...]string{
	Empty:       "EMPTY",
	SinglePoint: "SINGLE_POINT",
	XLine:       "X_LINE",
	YLine:       "Y_LINE",
	ZLine:       "Z_LINE",
	XYPlane:     "XY_PLANE",
	YZPlane:     "YZ_PLANE",
	XZPlane:     "XZ_PLANE",
	XYZGrid:     "XYZ_GRID",
}

func (d Description) String() string {
	if int(d) < len(descriptionNames) {
		return descriptionNames[d]
	}
	return fmt.Sprintf("Description(%d)", d)
}

// Axes returns the active axes in ascending order
func (d Description) Axes() []int {
	switch d {
	case XLine:
		return []int{0}
	case YLine:
		return []int{1}
	case ZLine:
		return []int{2}
	case XYPlane:
		return []int{0, 1}
	case YZPlane:
		return []int{1, 2}
	case XZPlane:
		return []int{0, 2}
	case XYZGrid:
		return []int{0, 1, 2}
	}
	return nil
}

// Dimension returns the number of active axes
func (d Description) Dimension() int {
	return len(d.Axes())
}

// New builds an extent from its six bounds
func New(imin, imax, jmin, jmax, kmin, kmax int) Extent {
	return Extent{imin, imax, jmin, jmax, kmin, kmax}
}

// Cardinality returns the number of indices in [lo, hi]
func Cardinality(lo, hi int) int {
	return hi - lo + 1
}

// Methods for Extent

// Min returns the lower bound along axis d
func (e Extent) Min(d int) int { return e[2*d] }

// Max returns the upper bound along axis d
func (e Extent) Max(d int) int { return e[2*d+1] }

// Axis returns the [min, max] range along axis d
func (e Extent) Axis(d int) [2]int {
	return [2]int{e[2*d], e[2*d+1]}
}

// WithAxis returns a copy of e with axis d replaced by r
func (e Extent) WithAxis(d int, r [2]int) Extent {
	e[2*d] = r[0]
	e[2*d+1] = r[1]
	return e
}

// Description derives the data description from the active axes
func (e Extent) Description() Description {
	active := [3]bool{}
	for d := 0; d < 3; d++ {
		if e[2*d+1] < e[2*d] {
			return Empty
		}
		active[d] = e[2*d+1] > e[2*d]
	}

	switch active {
	case [3]bool{false, false, false}:
		return SinglePoint
	case [3]bool{true, false, false}:
		return XLine
	case [3]bool{false, true, false}:
		return YLine
	case [3]bool{false, false, true}:
		return ZLine
	case [3]bool{true, true, false}:
		return XYPlane
	case [3]bool{false, true, true}:
		return YZPlane
	case [3]bool{true, false, true}:
		return XZPlane
	}
	return XYZGrid
}

// Dimension returns the number of active axes of e
func (e Extent) Dimension() int {
	return e.Description().Dimension()
}

// IsEmpty reports whether some axis has max < min
func (e Extent) IsEmpty() bool {
	return e[1] < e[0] || e[3] < e[2] || e[5] < e[4]
}

// Dims returns the number of nodes along each axis
func (e Extent) Dims() [3]int {
	return [3]int{
		Cardinality(e[0], e[1]),
		Cardinality(e[2], e[3]),
		Cardinality(e[4], e[5]),
	}
}

// NumberOfNodes returns the number of nodes covered by e
func (e Extent) NumberOfNodes() int {
	if e.IsEmpty() {
		return 0
	}
	n := e.Dims()
	return n[0] * n[1] * n[2]
}

// CellExtent converts a node extent to the extent of its cells. Degenerate
// axes keep their single index.
func (e Extent) CellExtent() Extent {
	c := e
	for d := 0; d < 3; d++ {
		if e[2*d+1] > e[2*d] {
			c[2*d+1] = e[2*d+1] - 1
		}
	}
	return c
}

// NumberOfCells returns the number of cells covered by e
func (e Extent) NumberOfCells() int {
	if e.IsEmpty() {
		return 0
	}
	return e.CellExtent().NumberOfNodes()
}

// Contains reports whether (i,j,k) lies in e
func (e Extent) Contains(i, j, k int) bool {
	return i >= e[0] && i <= e[1] &&
		j >= e[2] && j <= e[3] &&
		k >= e[4] && k <= e[5]
}

// ContainsExtent reports whether o is a subset of e
func (e Extent) ContainsExtent(o Extent) bool {
	if o.IsEmpty() {
		return true
	}
	for d := 0; d < 3; d++ {
		if !IsSubset(o.Axis(d), e.Axis(d)) {
			return false
		}
	}
	return true
}

// Interior reports whether (i,j,k) lies strictly inside e along every axis
// active in desc
func (e Extent) Interior(desc Description, i, j, k int) bool {
	if !e.Contains(i, j, k) {
		return false
	}
	ijk := [3]int{i, j, k}
	for _, d := range desc.Axes() {
		if ijk[d] <= e[2*d] || ijk[d] >= e[2*d+1] {
			return false
		}
	}
	return true
}

// OnBoundary reports whether (i,j,k) lies in e on a face bounding one of the
// axes active in desc
func (e Extent) OnBoundary(desc Description, i, j, k int) bool {
	if !e.Contains(i, j, k) {
		return false
	}
	ijk := [3]int{i, j, k}
	for _, d := range desc.Axes() {
		if ijk[d] == e[2*d] || ijk[d] == e[2*d+1] {
			return true
		}
	}
	return false
}

// Intersect returns the common region of e and o, and false when they are
// disjoint
func (e Extent) Intersect(o Extent) (Extent, bool) {
	r := e.Clamp(o)
	return r, !r.IsEmpty()
}

// Clamp restricts every bound of e to the bounds of b
func (e Extent) Clamp(b Extent) Extent {
	for d := 0; d < 3; d++ {
		e[2*d] = max(e[2*d], b[2*d])
		e[2*d+1] = min(e[2*d+1], b[2*d+1])
	}
	return e
}

// Grow expands e by n on both sides of the axes active in desc
func (e Extent) Grow(n int, desc Description) Extent {
	for _, d := range desc.Axes() {
		e[2*d] -= n
		e[2*d+1] += n
	}
	return e
}

// NodeIndex returns the i-fastest flat index of (i,j,k) within e
func (e Extent) NodeIndex(i, j, k int) int {
	n := e.Dims()
	return (i - e[0]) + (j-e[2])*n[0] + (k-e[4])*n[0]*n[1]
}

// ForEach visits every index of e in i-fastest order
func (e Extent) ForEach(fn func(i, j, k int)) {
	if e.IsEmpty() {
		return
	}
	for k := e[4]; k <= e[5]; k++ {
		for j := e[2]; j <= e[3]; j++ {
			for i := e[0]; i <= e[1]; i++ {
				fn(i, j, k)
			}
		}
	}
}

func (e Extent) String() string {
	return fmt.Sprintf("[%d %d %d %d %d %d]", e[0], e[1], e[2], e[3], e[4], e[5])
}

// IsSubset reports whether range a lies within range b
func IsSubset(a, b [2]int) bool {
	return InBounds(a[0], b[0], b[1]) && InBounds(a[1], b[0], b[1])
}

// InBounds reports whether lo <= v <= hi
func InBounds(v, lo, hi int) bool {
	return v >= lo && v <= hi
}

// StrictlyInBounds reports whether lo < v < hi
func StrictlyInBounds(v, lo, hi int) bool {
	return v > lo && v < hi
}
