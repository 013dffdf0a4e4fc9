package amr

import (
	"errors"
	"fmt"

	"github.com/notargets/GhostGrid/connectivity"
	"github.com/notargets/GhostGrid/extent"
	"github.com/notargets/GhostGrid/field"
	"github.com/notargets/GhostGrid/ghost"
	"gonum.org/v1/gonum/mat"
)

// CreateGhostLayers grows every local grid by n layers on its connected
// faces and fills the new cells from local neighbors. Each ghost cell keeps
// the value of the finest donor that reaches it.
func (c *Connectivity) CreateGhostLayers(n int) error {
	c.checkComputed()
	if n < 0 {
		panic(fmt.Sprintf("ghost layer count must be non-negative, got %d", n))
	}
	if n == 0 {
		c.logger.Warn("zero ghost layers requested, nothing to do")
		return nil
	}
	c.numLayers += n

	var errs []error
	if c.nodeCentered {
		c.logger.Warn("node-centered data is not transferred on AMR grids")
		errs = append(errs, ErrNodeCenteredAMR)
	}

	for i, g := range c.grids {
		for k := range c.neighbors[i] {
			nb := &c.neighbors[i][k]
			sendN, rcvN := c.layerCounts(nb)
			nb.ComputeSendAndReceiveExtent(g.Extent, c.grids[nb.NeighborID].Extent, sendN, rcvN)
		}
	}

	for _, g := range c.grids {
		if g.Remote {
			continue
		}
		g.Ghosted = c.newGhostLayer(g)
		c.donors[g.ID] = make([]int, g.Ghosted.Extent.NumberOfCells())
		for t := range c.donors[g.ID] {
			c.donors[g.ID][t] = -1
		}
		if !c.cellCentered {
			continue
		}
		for _, nb := range c.neighbors[g.ID] {
			donor := c.grids[nb.NeighborID]
			if donor.Remote {
				continue
			}
			if err := c.fill(g, nb, donor.Patch()); err != nil {
				errs = append(errs, err)
			}
		}
	}

	c.logger.Debug("created AMR ghost layers", "layers", c.numLayers)
	return errors.Join(errs...)
}

// layerCounts scales the layer count to the finer side of the pair
func (c *Connectivity) layerCounts(nb *Neighbor) (sendN, rcvN int) {
	n := c.numLayers
	r := c.RatioBetween(nb.GridLevel, nb.NeighborLevel)
	switch {
	case nb.IsCoarser():
		return n * r, n
	case nb.IsFiner():
		return n, n * r
	}
	return n, n
}

// ghostedExtent grows g on the faces that touch other grids
func (c *Connectivity) ghostedExtent(g *connectivity.Grid) extent.Extent {
	ext := g.Extent
	f := c.faces[g.ID]
	for _, d := range c.desc.Axes() {
		if f.Has(Face(d, false)) {
			ext[2*d] -= c.numLayers
		}
		if f.Has(Face(d, true)) {
			ext[2*d+1] += c.numLayers
		}
	}
	return ext
}

// newGhostLayer allocates the ghosted copy of g, places the registered data
// and marks everything outside it as ghost
func (c *Connectivity) newGhostLayer(g *connectivity.Grid) *connectivity.GhostLayer {
	ext := c.ghostedExtent(g)
	cells := ext.CellExtent()
	nNodes := ext.NumberOfNodes()

	layer := &connectivity.GhostLayer{
		Extent:         ext,
		NodeData:       g.NodeData.NewLike(nNodes),
		CellData:       g.CellData.NewLike(cells.NumberOfNodes()),
		NodeProperties: make([]ghost.Property, nNodes),
		CellProperties: make([]ghost.Property, cells.NumberOfNodes()),
	}

	regCells := g.Extent.CellExtent()
	ext.ForEach(func(i, j, k int) {
		p := ghost.Ghost | ghost.Ignore
		if g.Extent.Contains(i, j, k) {
			p = g.NodeProperties[g.Extent.NodeIndex(i, j, k)]
		}
		layer.NodeProperties[ext.NodeIndex(i, j, k)] = p
	})
	cells.ForEach(func(i, j, k int) {
		p := ghost.Ghost
		if regCells.Contains(i, j, k) {
			p = g.CellProperties[regCells.NodeIndex(i, j, k)]
		}
		layer.CellProperties[cells.NodeIndex(i, j, k)] = p
	})

	if g.Points != nil {
		layer.Points = mat.NewDense(nNodes, 3, nil)
	}
	connectivity.CopyRegistered(g, layer)
	return layer
}

// fill writes the cells of patch p into the ghost cells of g that nb reaches
func (c *Connectivity) fill(g *connectivity.Grid, nb Neighbor, p connectivity.Patch) error {
	if nb.Relationship == Child {
		return nil
	}
	layer := g.Ghosted
	pairs, err := field.Match(layer.CellData, p.CellData)
	if err != nil {
		c.logger.Warn("AMR ghost transfer failed", "grid", g.ID, "neighbor", nb.NeighborID, "err", err)
		err = fmt.Errorf("grid %d from neighbor %d: cell data: %w", g.ID, nb.NeighborID, err)
	}

	w := cellWriter{
		cells:  layer.Extent.CellExtent(),
		owned:  g.Extent.CellExtent(),
		donors: c.donors[g.ID],
		level:  nb.NeighborLevel,
		pairs:  pairs,
	}
	rcvCells := nb.RcvExtent.CellExtent()

	switch {
	case nb.IsCoarser():
		src, ok := rcvCells.Intersect(p.CellExtent)
		if !ok {
			break
		}
		src.ForEach(func(i, j, k int) {
			s := p.CellExtent.NodeIndex(i, j, k)
			c.CellRefinedExtent(i, j, k, nb.NeighborLevel, nb.GridLevel).ForEach(func(fi, fj, fk int) {
				w.copy(fi, fj, fk, s)
			})
		})

	case nb.IsFiner():
		dst := nb.ReceiveExtentOnGrid(c.numLayers, layer.Extent).CellExtent()
		dst.ForEach(func(i, j, k int) {
			if !w.writable(i, j, k) {
				return
			}
			var srcs []int
			fine, ok := c.CellRefinedExtent(i, j, k, nb.GridLevel, nb.NeighborLevel).Intersect(p.CellExtent)
			if ok {
				fine, ok = fine.Intersect(rcvCells)
			}
			if ok {
				fine.ForEach(func(fi, fj, fk int) {
					srcs = append(srcs, p.CellExtent.NodeIndex(fi, fj, fk))
				})
			}
			if len(srcs) == 0 {
				c.logger.Warn("no fine cells under ghost cell", "grid", g.ID, "neighbor", nb.NeighborID,
					"cell", [3]int{i, j, k})
				return
			}
			w.average(i, j, k, srcs)
		})

	default:
		src, ok := rcvCells.Intersect(p.CellExtent)
		if !ok {
			break
		}
		src.ForEach(func(i, j, k int) {
			w.copy(i, j, k, p.CellExtent.NodeIndex(i, j, k))
		})
	}
	return err
}

// cellWriter places donor tuples into ghost cells, honoring donor levels
type cellWriter struct {
	cells  extent.Extent // Ghosted cell layout
	owned  extent.Extent // Registered cells, never overwritten
	donors []int
	level  int
	pairs  []field.Pair
}

func (w *cellWriter) writable(i, j, k int) bool {
	if !w.cells.Contains(i, j, k) || w.owned.Contains(i, j, k) {
		return false
	}
	return w.donors[w.cells.NodeIndex(i, j, k)] < w.level
}

func (w *cellWriter) copy(i, j, k, s int) {
	if !w.writable(i, j, k) {
		return
	}
	t := w.cells.NodeIndex(i, j, k)
	for _, p := range w.pairs {
		p.Dst.CopyTuple(t, p.Src, s)
	}
	w.donors[t] = w.level
}

func (w *cellWriter) average(i, j, k int, srcs []int) {
	t := w.cells.NodeIndex(i, j, k)
	for _, p := range w.pairs {
		p.Dst.AverageTuples(t, p.Src, srcs)
	}
	w.donors[t] = w.level
}

// SendPatch restricts local grid id's registered data to the send extent of
// its record for neighbor
func (c *Connectivity) SendPatch(id, neighbor int) (connectivity.Patch, error) {
	g := c.grid(id)
	if g.Remote {
		return connectivity.Patch{}, fmt.Errorf("grid %d is not local", id)
	}
	nb, err := c.record(id, neighbor)
	if err != nil {
		return connectivity.Patch{}, err
	}
	return g.Restrict(nb.SendExtent), nil
}

// ReceivePatch fills the ghost cells of local grid id from a patch sent by
// neighbor
func (c *Connectivity) ReceivePatch(id, neighbor int, p connectivity.Patch) error {
	g := c.grid(id)
	if g.Remote || g.Ghosted == nil {
		return fmt.Errorf("grid %d has no ghost layer to receive into", id)
	}
	nb, err := c.record(id, neighbor)
	if err != nil {
		return err
	}
	if !c.cellCentered {
		return nil
	}
	p, shapeErr := p.Checked()
	if shapeErr != nil {
		c.logger.Warn("malformed ghost patch", "grid", id, "neighbor", neighbor, "err", shapeErr)
		shapeErr = fmt.Errorf("grid %d from neighbor %d: %w", id, neighbor, shapeErr)
	}
	return errors.Join(shapeErr, c.fill(g, *nb, p))
}

func (c *Connectivity) record(id, neighbor int) (*Neighbor, error) {
	c.checkComputed()
	for k := range c.neighbors[id] {
		if c.neighbors[id][k].NeighborID == neighbor {
			return &c.neighbors[id][k], nil
		}
	}
	return nil, fmt.Errorf("grid %d has no neighbor %d", id, neighbor)
}
