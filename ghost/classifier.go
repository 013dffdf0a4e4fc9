package ghost

import (
	"github.com/notargets/GhostGrid/extent"
)

// Region is the part of a grid shared with one neighbor
type Region struct {
	ID      int
	Overlap extent.Extent
}

// Classifier assigns node and cell properties for one grid
type Classifier struct {
	GridID    int
	Real      extent.Extent // Nodes the grid owns data for
	Whole     extent.Extent
	Neighbors []Region

	desc extent.Description
}

// NewClassifier builds a classifier whose active axes come from whole
func NewClassifier(id int, real, whole extent.Extent, neighbors []Region) *Classifier {
	return &Classifier{
		GridID:    id,
		Real:      real,
		Whole:     whole,
		Neighbors: neighbors,
		desc:      whole.Description(),
	}
}

// Node classifies node (i,j,k)
func (c *Classifier) Node(i, j, k int) Property {
	if !c.Real.Contains(i, j, k) {
		return Ghost | Ignore
	}
	if c.Real.Interior(c.desc, i, j, k) {
		return Interior
	}

	var p Property
	if c.Whole.OnBoundary(c.desc, i, j, k) {
		p |= Boundary
	}

	var claimants []int
	for _, nb := range c.Neighbors {
		if nb.Overlap.Contains(i, j, k) {
			claimants = append(claimants, nb.ID)
		}
	}
	if len(claimants) > 0 {
		p |= Shared
		if Owner(c.GridID, claimants) != c.GridID {
			p |= Ignore
		}
	}
	return p
}

// Nodes classifies every node of ext in i-fastest order
func (c *Classifier) Nodes(ext extent.Extent) []Property {
	props := make([]Property, 0, ext.NumberOfNodes())
	ext.ForEach(func(i, j, k int) {
		props = append(props, c.Node(i, j, k))
	})
	return props
}

// Cells marks a cell of ext as Ghost when any of its nodes is a ghost node.
// nodes must be the result of Nodes(ext).
func Cells(ext extent.Extent, nodes []Property) []Property {
	cells := ext.CellExtent()
	var step [3]int
	for d := 0; d < 3; d++ {
		if ext.Max(d) > ext.Min(d) {
			step[d] = 1
		}
	}

	props := make([]Property, 0, cells.NumberOfNodes())
	cells.ForEach(func(i, j, k int) {
		var p Property
		for dk := 0; dk <= step[2]; dk++ {
			for dj := 0; dj <= step[1]; dj++ {
				for di := 0; di <= step[0]; di++ {
					if nodes[ext.NodeIndex(i+di, j+dj, k+dk)].Has(Ghost) {
						p = Ghost
					}
				}
			}
		}
		props = append(props, p)
	})
	return props
}
