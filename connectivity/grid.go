package connectivity

import (
	"errors"
	"fmt"

	"github.com/notargets/GhostGrid/extent"
	"github.com/notargets/GhostGrid/field"
	"github.com/notargets/GhostGrid/ghost"
	"gonum.org/v1/gonum/mat"
)

// Grid is one registered partition of the structured domain
type Grid struct {
	ID     int
	Level  int  // AMR level, zero for single-level domains
	Remote bool // Placeholder for a grid owned by another rank

	Extent     extent.Extent
	RealExtent extent.Extent // Extent minus ghost layers already in the data

	// Registered data, copied in at registration
	NodeGhosts []ghost.Property
	CellGhosts []ghost.Property
	NodeData   *field.Data
	CellData   *field.Data
	Points     *mat.Dense // NumberOfNodes x 3

	// Derived by ComputeNeighbors over Extent
	NodeProperties []ghost.Property
	CellProperties []ghost.Property

	// Built by CreateGhostLayers
	Ghosted *GhostLayer
}

// GhostLayer holds the ghost-augmented copy of a grid
type GhostLayer struct {
	Extent         extent.Extent
	NodeProperties []ghost.Property
	CellProperties []ghost.Property
	NodeData       *field.Data
	CellData       *field.Data
	Points         *mat.Dense
}

// GridOption supplies optional registration data
type GridOption func(*Grid)

// WithNodeGhosts registers per-node ghost flags
func WithNodeGhosts(p []ghost.Property) GridOption {
	return func(g *Grid) { g.NodeGhosts = append([]ghost.Property(nil), p...) }
}

// WithCellGhosts registers per-cell ghost flags
func WithCellGhosts(p []ghost.Property) GridOption {
	return func(g *Grid) { g.CellGhosts = append([]ghost.Property(nil), p...) }
}

// WithNodeData registers node-centered fields
func WithNodeData(fd *field.Data) GridOption {
	return func(g *Grid) { g.NodeData = fd.Clone() }
}

// WithCellData registers cell-centered fields
func WithCellData(fd *field.Data) GridOption {
	return func(g *Grid) { g.CellData = fd.Clone() }
}

// WithPoints registers node coordinates, one row per node
func WithPoints(p *mat.Dense) GridOption {
	return func(g *Grid) { g.Points = mat.DenseCopyOf(p) }
}

// NewGrid builds and validates a grid registration
func NewGrid(id, level int, ext extent.Extent, opts ...GridOption) (*Grid, error) {
	g := &Grid{
		ID:         id,
		Level:      level,
		Extent:     ext,
		RealExtent: ext,
		NodeData:   field.NewData(),
		CellData:   field.NewData(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if err := g.validate(); err != nil {
		return nil, fmt.Errorf("invalid grid %d: %w", id, err)
	}
	return g, nil
}

func (g *Grid) validate() error {
	if g.Extent.IsEmpty() {
		return fmt.Errorf("empty extent %v", g.Extent)
	}
	nNodes := g.Extent.NumberOfNodes()
	nCells := g.Extent.NumberOfCells()

	var errs []error
	if g.NodeGhosts != nil && len(g.NodeGhosts) != nNodes {
		errs = append(errs, fmt.Errorf("%d node ghost flags for %d nodes", len(g.NodeGhosts), nNodes))
	}
	if g.CellGhosts != nil && len(g.CellGhosts) != nCells {
		errs = append(errs, fmt.Errorf("%d cell ghost flags for %d cells", len(g.CellGhosts), nCells))
	}
	if err := g.NodeData.Validate(nNodes); err != nil {
		errs = append(errs, fmt.Errorf("node data: %w", err))
	}
	if err := g.CellData.Validate(nCells); err != nil {
		errs = append(errs, fmt.Errorf("cell data: %w", err))
	}
	if g.Points != nil {
		if r, c := g.Points.Dims(); r != nNodes || c != 3 {
			errs = append(errs, fmt.Errorf("points are %dx%d, expected %dx3", r, c, nNodes))
		}
	}
	return errors.Join(errs...)
}

// Patch returns the grid's registered data as a patch
func (g *Grid) Patch() Patch {
	return Patch{
		Extent:     g.Extent,
		CellExtent: g.Extent.CellExtent(),
		NodeData:   g.NodeData,
		CellData:   g.CellData,
		Points:     g.Points,
	}
}

// Restrict copies the registered data inside send into a new patch
func (g *Grid) Restrict(send extent.Extent) Patch {
	send = send.Clamp(g.Extent)
	p := Patch{
		Extent:     send,
		CellExtent: PatchCellExtent(send, g.Extent),
	}

	var nodePick []int
	send.ForEach(func(i, j, k int) {
		nodePick = append(nodePick, g.Extent.NodeIndex(i, j, k))
	})
	p.NodeData = g.NodeData.Gather(nodePick)
	if g.Points != nil && len(nodePick) > 0 {
		p.Points = mat.NewDense(len(nodePick), 3, nil)
		for r, idx := range nodePick {
			p.Points.SetRow(r, g.Points.RawRowView(idx))
		}
	}

	cells := g.Extent.CellExtent()
	var cellPick []int
	p.CellExtent.ForEach(func(i, j, k int) {
		cellPick = append(cellPick, cells.NodeIndex(i, j, k))
	})
	p.CellData = g.CellData.Gather(cellPick)
	return p
}

// Patch is a block of donor data laid out over Extent (nodes) and
// CellExtent (cells) in i-fastest order
type Patch struct {
	Extent     extent.Extent
	CellExtent extent.Extent
	NodeData   *field.Data
	CellData   *field.Data
	Points     *mat.Dense
}

// PatchCellExtent gives the cells a patch over send carries when cut from a
// grid registered over owner
func PatchCellExtent(send, owner extent.Extent) extent.Extent {
	return send.CellExtent().Clamp(owner.CellExtent())
}

// Checked returns p without the arrays whose tuple counts disagree with its
// extents, and without Points unless they hold one row of three coordinates
// per node. Every dropped part is reported as a schema mismatch.
func (p Patch) Checked() (Patch, error) {
	var errs []error
	keep := func(kind string, fd *field.Data, n int) *field.Data {
		out := field.NewData()
		for _, a := range fd.Arrays() {
			if a.NumberOfTuples() != n {
				errs = append(errs, fmt.Errorf("%w: %s array %q has %d tuples, patch covers %d",
					field.ErrSchemaMismatch, kind, a.Name, a.NumberOfTuples(), n))
				continue
			}
			out.Add(a)
		}
		return out
	}
	nNodes := p.Extent.NumberOfNodes()
	p.NodeData = keep("node", p.NodeData, nNodes)
	p.CellData = keep("cell", p.CellData, p.CellExtent.NumberOfNodes())
	if p.Points != nil {
		if r, c := p.Points.Dims(); r != nNodes || c != 3 {
			errs = append(errs, fmt.Errorf("%w: %dx%d points, patch covers %d nodes",
				field.ErrSchemaMismatch, r, c, nNodes))
			p.Points = nil
		}
	}
	return p, errors.Join(errs...)
}
