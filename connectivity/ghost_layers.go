package connectivity

import (
	"errors"
	"fmt"

	"github.com/notargets/GhostGrid/extent"
	"github.com/notargets/GhostGrid/field"
	"github.com/notargets/GhostGrid/ghost"
	"github.com/notargets/GhostGrid/utils"
	"gonum.org/v1/gonum/mat"
)

// CreateGhostLayers adds n ghost layers to every local grid and fills them
// from local neighbors. Layers accumulate across calls.
func (s *Structured) CreateGhostLayers(n int) error {
	s.checkComputed()
	if n < 0 {
		panic(fmt.Sprintf("ghost layer count must be non-negative, got %d", n))
	}
	if n == 0 {
		s.logger.Warn("zero ghost layers requested, nothing to do")
		return nil
	}
	s.numLayers += n

	for i, g := range s.grids {
		for k := range s.neighbors[i] {
			nb := &s.neighbors[i][k]
			nb.ComputeSendAndReceiveExtent(g.RealExtent, s.grids[nb.NeighborID].RealExtent, s.whole, s.numLayers)
		}
	}

	var errs []error
	for _, g := range s.grids {
		if g.Remote {
			continue
		}
		layer := s.newGhostLayer(g)
		for _, nb := range s.neighbors[g.ID] {
			donor := s.grids[nb.NeighborID]
			if donor.Remote {
				continue
			}
			if err := s.fill(g, layer, nb, donor.Patch()); err != nil {
				errs = append(errs, err)
			}
		}
		g.Ghosted = layer
	}

	s.logger.Debug("created ghost layers", "layers", s.numLayers)
	return errors.Join(errs...)
}

// newGhostLayer allocates the ghosted copy of g and fills it with the
// registered data
func (s *Structured) newGhostLayer(g *Grid) *GhostLayer {
	ext := g.Extent.Grow(s.numLayers, s.desc).Clamp(s.whole)
	if s.desc.Dimension() == 0 {
		ext = g.Extent
	}
	nNodes := ext.NumberOfNodes()

	layer := &GhostLayer{
		Extent:   ext,
		NodeData: g.NodeData.NewLike(nNodes),
		CellData: g.CellData.NewLike(ext.NumberOfCells()),
	}
	layer.NodeProperties, layer.CellProperties = s.classify(g, ext)
	if g.Points != nil {
		layer.Points = mat.NewDense(nNodes, 3, nil)
	}
	CopyRegistered(g, layer)
	return layer
}

// CopyRegistered places the registered data of g into layer, which must
// have been allocated with NewLike from g's arrays and cover g.Extent
func CopyRegistered(g *Grid, layer *GhostLayer) {
	nodes := utils.NewExtentConnector(g.Extent, layer.Extent, g.Extent, nil)
	// Schemas are identical by construction
	_ = field.Transfer(layer.NodeData, g.NodeData, nodes.PlaceIndices, nodes.PickIndices)
	copyPoints(layer.Points, g.Points, nodes)

	cells := utils.NewExtentConnector(g.Extent.CellExtent(), layer.Extent.CellExtent(), g.Extent.CellExtent(), nil)
	_ = field.Transfer(layer.CellData, g.CellData, cells.PlaceIndices, cells.PickIndices)
}

func copyPoints(dst, src *mat.Dense, ec *utils.ExtentConnector) {
	if dst == nil || src == nil {
		return
	}
	for n := range ec.PickIndices {
		dst.SetRow(ec.PlaceIndices[n], src.RawRowView(ec.PickIndices[n]))
	}
}

// fill copies the donor patch into the ghost region of g that nb receives
func (s *Structured) fill(g *Grid, layer *GhostLayer, nb Neighbor, p Patch) error {
	owned := g.RealExtent
	nodes := utils.NewExtentConnector(p.Extent, layer.Extent, nb.RcvExtent,
		func(i, j, k int) bool { return !owned.Contains(i, j, k) })

	ownedCells := owned.CellExtent()
	cells := utils.NewExtentConnector(p.CellExtent, layer.Extent.CellExtent(), nb.RcvExtent.CellExtent(),
		func(i, j, k int) bool { return !ownedCells.Contains(i, j, k) })

	var errs []error
	if err := field.Transfer(layer.NodeData, p.NodeData, nodes.PlaceIndices, nodes.PickIndices); err != nil {
		errs = append(errs, fmt.Errorf("node data: %w", err))
	}
	copyPoints(layer.Points, p.Points, nodes)
	if err := field.Transfer(layer.CellData, p.CellData, cells.PlaceIndices, cells.PickIndices); err != nil {
		errs = append(errs, fmt.Errorf("cell data: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("ghost transfer failed", "grid", g.ID, "neighbor", nb.NeighborID, "err", err)
		return fmt.Errorf("grid %d from neighbor %d: %w", g.ID, nb.NeighborID, err)
	}
	return nil
}

// SendPatch restricts local grid id's registered data to the send extent of
// its record for neighbor
func (s *Structured) SendPatch(id, neighbor int) (Patch, error) {
	g := s.grid(id)
	if g.Remote {
		return Patch{}, fmt.Errorf("grid %d is not local", id)
	}
	nb, err := s.record(id, neighbor)
	if err != nil {
		return Patch{}, err
	}
	return g.Restrict(nb.SendExtent), nil
}

// ReceivePatch fills the ghost layer of local grid id from a patch sent by
// neighbor
func (s *Structured) ReceivePatch(id, neighbor int, p Patch) error {
	g := s.grid(id)
	if g.Remote || g.Ghosted == nil {
		return fmt.Errorf("grid %d has no ghost layer to receive into", id)
	}
	nb, err := s.record(id, neighbor)
	if err != nil {
		return err
	}
	p, shapeErr := p.Checked()
	if shapeErr != nil {
		s.logger.Warn("malformed ghost patch", "grid", id, "neighbor", neighbor, "err", shapeErr)
		shapeErr = fmt.Errorf("grid %d from neighbor %d: %w", id, neighbor, shapeErr)
	}
	return errors.Join(shapeErr, s.fill(g, g.Ghosted, *nb, p))
}

func (s *Structured) record(id, neighbor int) (*Neighbor, error) {
	s.checkComputed()
	for k := range s.neighbors[id] {
		if s.neighbors[id][k].NeighborID == neighbor {
			return &s.neighbors[id][k], nil
		}
	}
	return nil, fmt.Errorf("grid %d has no neighbor %d", id, neighbor)
}

func (s *Structured) ghostedExtentOf(g *Grid) extent.Extent {
	if g.Ghosted == nil {
		return g.Extent
	}
	return g.Ghosted.Extent
}

// GhostedExtent returns the extent of grid id including ghost layers, or the
// registered extent before CreateGhostLayers
func (s *Structured) GhostedExtent(id int) extent.Extent {
	return s.ghostedExtentOf(s.grid(id))
}

// GhostLayer returns the ghost-augmented copy of grid id, nil before
// CreateGhostLayers
func (s *Structured) GhostLayer(id int) *GhostLayer {
	return s.grid(id).Ghosted
}

// GhostedNodeData returns the ghost-augmented node fields of grid id
func (s *Structured) GhostedNodeData(id int) *field.Data {
	if l := s.grid(id).Ghosted; l != nil {
		return l.NodeData
	}
	return nil
}

// GhostedCellData returns the ghost-augmented cell fields of grid id
func (s *Structured) GhostedCellData(id int) *field.Data {
	if l := s.grid(id).Ghosted; l != nil {
		return l.CellData
	}
	return nil
}

// GhostedNodeGhosts returns the node properties over the ghosted extent
func (s *Structured) GhostedNodeGhosts(id int) []ghost.Property {
	if l := s.grid(id).Ghosted; l != nil {
		return l.NodeProperties
	}
	return nil
}

// GhostedCellGhosts returns the cell properties over the ghosted extent
func (s *Structured) GhostedCellGhosts(id int) []ghost.Property {
	if l := s.grid(id).Ghosted; l != nil {
		return l.CellProperties
	}
	return nil
}

// GhostedPoints returns the ghost-augmented node coordinates of grid id
func (s *Structured) GhostedPoints(id int) *mat.Dense {
	if l := s.grid(id).Ghosted; l != nil {
		return l.Points
	}
	return nil
}
