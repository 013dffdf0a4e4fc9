package amr

import (
	"fmt"
	"strings"

	"github.com/notargets/GhostGrid/extent"
)

// BlockFaces records which faces of a grid touch other grids rather than the
// domain boundary
type BlockFaces uint8

const (
	Left   BlockFaces = 1 << iota // -i
	Right                         // +i
	Bottom                        // -j
	Top                           // +j
	Back                          // -k
	Front                         // +k
)

// Face returns the face bounding axis d on the low or high side
func Face(d int, high bool) BlockFaces {
	f := BlockFaces(1) << (2 * d)
	if high {
		f <<= 1
	}
	return f
}

// Has reports whether face is connected
func (f BlockFaces) Has(face BlockFaces) bool {
	return f&face != 0
}

func (f BlockFaces) String() string {
	names := []string{"LEFT", "RIGHT", "BOTTOM", "TOP", "BACK", "FRONT"}
	var parts []string
	for n, name := range names {
		if f&(1<<n) != 0 {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// RatioBetween returns the cumulative refinement factor between two levels.
// A constant ratio R gives |from-to|*R; per-level ratios are multiplied.
func (c *Connectivity) RatioBetween(from, to int) int {
	if from == to {
		return 1
	}
	if c.ratio > 0 {
		return abs(from-to) * c.ratio
	}
	lo, hi := min(from, to), max(from, to)
	r := 1
	for l := lo; l < hi; l++ {
		lr, ok := c.levelRatios[l]
		if !ok {
			panic(fmt.Sprintf("no refinement ratio registered for level %d", l))
		}
		r *= lr
	}
	return r
}

// Scale maps ext from one level to another along the active axes, refining
// when to is finer and coarsening otherwise
func (c *Connectivity) Scale(ext extent.Extent, from, to int) extent.Extent {
	if from == to {
		return ext
	}
	r := c.RatioBetween(from, to)
	for _, d := range c.desc.Axes() {
		if to > from {
			ext[2*d] *= r
			ext[2*d+1] *= r
		} else {
			ext[2*d] /= r
			ext[2*d+1] /= r
		}
	}
	return ext
}

// RefineExtent maps ext from a coarser level to a finer one
func (c *Connectivity) RefineExtent(ext extent.Extent, from, to int) extent.Extent {
	if to < from {
		panic(fmt.Sprintf("refine from level %d to coarser level %d", from, to))
	}
	return c.Scale(ext, from, to)
}

// CoarsenExtent maps ext from a finer level to a coarser one
func (c *Connectivity) CoarsenExtent(ext extent.Extent, from, to int) extent.Extent {
	if to > from {
		panic(fmt.Sprintf("coarsen from level %d to finer level %d", from, to))
	}
	return c.Scale(ext, from, to)
}

// CellRefinedExtent returns the cells at level to that cover cell (i,j,k) at
// the coarser level from
func (c *Connectivity) CellRefinedExtent(i, j, k, from, to int) extent.Extent {
	ext := extent.New(i, i, j, j, k, k)
	r := c.RatioBetween(from, to)
	for _, d := range c.desc.Axes() {
		ext[2*d] *= r
		ext[2*d+1] = ext[2*d] + r - 1
	}
	return ext
}

// WholeExtentAtLevel returns the level-0 whole extent refined to level
func (c *Connectivity) WholeExtentAtLevel(level int) extent.Extent {
	return c.Scale(c.whole, 0, level)
}

// computeWholeExtent takes the bounding box of the level-0 grids
func (c *Connectivity) computeWholeExtent() error {
	first := true
	for _, g := range c.grids {
		if g.Level != 0 {
			continue
		}
		if first {
			c.whole = g.Extent
			first = false
			continue
		}
		for d := 0; d < 3; d++ {
			c.whole[2*d] = min(c.whole[2*d], g.Extent.Min(d))
			c.whole[2*d+1] = max(c.whole[2*d+1], g.Extent.Max(d))
		}
	}
	if first {
		return ErrNoRootLevel
	}
	c.desc = c.whole.Description()
	return nil
}

// setBlockTopology marks the faces of grid id that lie inside the domain
func (c *Connectivity) setBlockTopology(id int) {
	g := c.grids[id]
	coarse := c.Scale(g.Extent, g.Level, 0)
	var f BlockFaces
	for _, d := range c.desc.Axes() {
		if coarse.Min(d) > c.whole.Min(d) {
			f |= Face(d, false)
		}
		if coarse.Max(d) < c.whole.Max(d) {
			f |= Face(d, true)
		}
	}
	c.faces[id] = f
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
