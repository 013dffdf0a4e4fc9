package connectivity

import (
	"fmt"

	"github.com/notargets/GhostGrid/extent"
)

// Neighbor is the directed record a grid keeps for one adjacent grid
type Neighbor struct {
	NeighborID    int
	OverlapExtent extent.Extent
	Orientation   [3]extent.Orientation
	SendExtent    extent.Extent // Grid nodes the neighbor needs
	RcvExtent     extent.Extent // Neighbor nodes this grid needs
}

// NewNeighbor builds a record with send/receive extents at the overlap
func NewNeighbor(id int, overlap extent.Extent, orient [3]extent.Orientation) Neighbor {
	return Neighbor{
		NeighborID:    id,
		OverlapExtent: overlap,
		Orientation:   orient,
		SendExtent:    overlap,
		RcvExtent:     overlap,
	}
}

// ComputeSendAndReceiveExtent grows the overlap by n layers on the sides the
// orientation points to, then clamps send to the grid's real extent and
// receive to the neighbor's real extent inside the whole extent
func (n *Neighbor) ComputeSendAndReceiveExtent(gridReal, neiReal, whole extent.Extent, layers int) {
	send, rcv := GrowByOrientation(n.OverlapExtent, n.OverlapExtent, n.Orientation, layers, layers)
	n.SendExtent = send.Clamp(gridReal)
	n.RcvExtent = rcv.Clamp(neiReal).Clamp(whole)
}

// GrowByOrientation grows send by sendN and rcv by rcvN per axis orientation
func GrowByOrientation(send, rcv extent.Extent, orient [3]extent.Orientation, sendN, rcvN int) (extent.Extent, extent.Extent) {
	for d := 0; d < 3; d++ {
		lo, hi := 2*d, 2*d+1
		switch orient[d] {
		case extent.Superset, extent.SubsetBoth:
			send[lo] -= sendN
			send[hi] += sendN
			rcv[lo] -= rcvN
			rcv[hi] += rcvN
		case extent.SubsetHi, extent.Hi:
			send[lo] -= sendN
			rcv[hi] += rcvN
		case extent.SubsetLo, extent.Lo:
			send[hi] += sendN
			rcv[lo] -= rcvN
		}
	}
	return send, rcv
}

func (n Neighbor) String() string {
	return fmt.Sprintf("nei=%d overlap=%v orient=[%v %v %v] send=%v rcv=%v",
		n.NeighborID, n.OverlapExtent,
		n.Orientation[0], n.Orientation[1], n.Orientation[2],
		n.SendExtent, n.RcvExtent)
}
