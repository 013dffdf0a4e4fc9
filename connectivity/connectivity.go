package connectivity

import (
	"github.com/notargets/GhostGrid/extent"
)

// GridConnectivity is the shared surface of the serial structured, AMR and
// distributed connectivities
type GridConnectivity interface {
	SetNumberOfGrids(n int)
	NumberOfGrids() int
	ComputeNeighbors() error
	CreateGhostLayers(n int) error
	NumberOfNeighbors(id int) int
	Neighbors(id int) []NeighborInfo
	GridExtent(id int) extent.Extent
	GhostedExtent(id int) extent.Extent
}

// NeighborInfo is the public view of one neighbor record
type NeighborInfo struct {
	ID      int
	Overlap extent.Extent
}

// Halo is a serial connectivity that can also hold grids owned by other
// ranks and exchange patches of ghost data with them
type Halo interface {
	GridConnectivity

	// RegisterRemote records the extent of a grid whose data lives elsewhere
	RegisterRemote(id, level int, ext extent.Extent)
	IsLocal(id int) bool
	GridLevel(id int) int

	// SendPatch restricts the local grid's data to what neighbor needs
	SendPatch(id, neighbor int) (Patch, error)

	// ReceivePatch fills the ghost layer of a local grid from a neighbor patch
	ReceivePatch(id, neighbor int, p Patch) error
}
