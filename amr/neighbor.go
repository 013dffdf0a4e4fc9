package amr

import (
	"fmt"

	"github.com/notargets/GhostGrid/connectivity"
	"github.com/notargets/GhostGrid/extent"
)

// Relationship describes how an AMR neighbor relates to a grid
type Relationship int

const (
	Parent Relationship = iota
	PartiallyOverlappingParent
	Child
	PartiallyOverlappingChild
	SameLevelSibling
	CoarseToFineSibling
	FineToCoarseSibling
	Undefined     // Volumetric overlap across more than one level
	Indeterminate // Contact that fits none of the above
)

func (r Relationship) String() string {
	switch r {
	case Parent:
		return "PARENT"
	case PartiallyOverlappingParent:
		return "PARTIALLY_OVERLAPPING_PARENT"
	case Child:
		return "CHILD"
	case PartiallyOverlappingChild:
		return "PARTIALLY_OVERLAPPING_CHILD"
	case SameLevelSibling:
		return "SAME_LEVEL_SIBLING"
	case CoarseToFineSibling:
		return "COARSE_TO_FINE_SIBLING"
	case FineToCoarseSibling:
		return "FINE_TO_COARSE_SIBLING"
	case Undefined:
		return "UNDEFINED"
	case Indeterminate:
		return "INDETERMINATE"
	}
	return fmt.Sprintf("Relationship(%d)", int(r))
}

// Neighbor is the AMR form of a neighbor record. OverlapExtent and RcvExtent
// are expressed at the neighbor's level, GridOverlapExtent and SendExtent at
// the grid's level.
type Neighbor struct {
	connectivity.Neighbor

	GridLevel         int
	NeighborLevel     int
	GridOverlapExtent extent.Extent
	Relationship      Relationship
}

// NewNeighbor builds a record with send/receive extents at the overlaps
func NewNeighbor(gridLevel, id, neiLevel int, gridOverlap, neiOverlap extent.Extent,
	orient [3]extent.Orientation, rel Relationship) Neighbor {
	nb := Neighbor{
		Neighbor:          connectivity.NewNeighbor(id, neiOverlap, orient),
		GridLevel:         gridLevel,
		NeighborLevel:     neiLevel,
		GridOverlapExtent: gridOverlap,
		Relationship:      rel,
	}
	nb.SendExtent = gridOverlap
	return nb
}

// ComputeSendAndReceiveExtent grows send by sendN layers at the grid's level
// and receive by rcvN layers at the neighbor's level, then clamps each to
// the owning grid's extent
func (n *Neighbor) ComputeSendAndReceiveExtent(gridReal, neiReal extent.Extent, sendN, rcvN int) {
	send, rcv := connectivity.GrowByOrientation(n.GridOverlapExtent, n.OverlapExtent, n.Orientation, sendN, rcvN)
	n.SendExtent = send.Clamp(gridReal)
	n.RcvExtent = rcv.Clamp(neiReal)
}

// ReceiveExtentOnGrid expresses the receive region at the grid's own level,
// clamped to its ghosted extent
func (n *Neighbor) ReceiveExtentOnGrid(layers int, ghosted extent.Extent) extent.Extent {
	_, rcv := connectivity.GrowByOrientation(n.GridOverlapExtent, n.GridOverlapExtent, n.Orientation, 0, layers)
	return rcv.Clamp(ghosted)
}

// IsCoarser reports whether the neighbor is at a coarser level
func (n *Neighbor) IsCoarser() bool { return n.NeighborLevel < n.GridLevel }

// IsFiner reports whether the neighbor is at a finer level
func (n *Neighbor) IsFiner() bool { return n.NeighborLevel > n.GridLevel }

func (n Neighbor) String() string {
	return fmt.Sprintf("%v levels=%d/%d gridOverlap=%v rel=%v",
		n.Neighbor, n.GridLevel, n.NeighborLevel, n.GridOverlapExtent, n.Relationship)
}
