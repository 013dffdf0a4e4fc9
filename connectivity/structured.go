package connectivity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/notargets/GhostGrid/extent"
	"github.com/notargets/GhostGrid/ghost"
	"github.com/notargets/GhostGrid/logging"
)

// Structured computes neighbors and ghost layers for a single-level
// partitioned structured domain
type Structured struct {
	whole extent.Extent
	desc  extent.Description

	grids     []*Grid
	neighbors [][]Neighbor

	existingLayers int // Ghost layers already present in registered data
	numLayers      int // Ghost layers built so far, accumulated
	computed       bool

	logger *log.Logger
}

// Option configures a Structured connectivity
type Option func(*Structured)

// WithLogger routes diagnostics to l
func WithLogger(l *log.Logger) Option {
	return func(s *Structured) { s.logger = l }
}

// WithExistingGhostLayers declares that registered grids already carry n
// ghost layers on faces interior to the domain
func WithExistingGhostLayers(n int) Option {
	return func(s *Structured) { s.existingLayers = n }
}

// NewStructured creates a connectivity over the whole extent
func NewStructured(whole extent.Extent, opts ...Option) *Structured {
	s := &Structured{
		whole:  whole,
		desc:   whole.Description(),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.existingLayers < 0 {
		panic(fmt.Sprintf("existing ghost layers must be non-negative, got %d", s.existingLayers))
	}
	return s
}

// Methods for Structured

// SetNumberOfGrids sizes the grid arena and discards prior state
func (s *Structured) SetNumberOfGrids(n int) {
	if n <= 0 {
		panic(fmt.Sprintf("number of grids must be positive, got %d", n))
	}
	s.grids = make([]*Grid, n)
	s.neighbors = nil
	s.numLayers = 0
	s.computed = false
}

// NumberOfGrids returns the size of the grid arena
func (s *Structured) NumberOfGrids() int {
	return len(s.grids)
}

// WholeExtent returns the domain extent
func (s *Structured) WholeExtent() extent.Extent {
	return s.whole
}

// RegisterGrid registers a local grid with its optional data
func (s *Structured) RegisterGrid(id int, ext extent.Extent, opts ...GridOption) error {
	s.checkID(id)
	if s.desc != extent.Empty && !s.whole.ContainsExtent(ext) {
		return fmt.Errorf("grid %d extent %v outside whole extent %v", id, ext, s.whole)
	}
	g, err := NewGrid(id, 0, ext, opts...)
	if err != nil {
		return err
	}
	s.grids[id] = g
	return nil
}

// RegisterRemote records a grid owned by another rank
func (s *Structured) RegisterRemote(id, level int, ext extent.Extent) {
	s.checkID(id)
	s.grids[id] = &Grid{ID: id, Level: level, Remote: true, Extent: ext, RealExtent: ext}
}

// IsLocal reports whether grid id carries data on this process
func (s *Structured) IsLocal(id int) bool {
	s.checkID(id)
	return s.grids[id] != nil && !s.grids[id].Remote
}

// GridLevel always returns zero for a single-level domain
func (s *Structured) GridLevel(id int) int {
	return s.grid(id).Level
}

// Grid returns the registration record of grid id
func (s *Structured) Grid(id int) *Grid {
	return s.grid(id)
}

// ComputeNeighbors builds the neighbor lists of every registered grid
func (s *Structured) ComputeNeighbors() error {
	for id, g := range s.grids {
		if g == nil {
			panic(fmt.Sprintf("grid %d was never registered", id))
		}
	}

	s.neighbors = make([][]Neighbor, len(s.grids))
	s.numLayers = 0
	s.computed = true
	for _, g := range s.grids {
		g.Ghosted = nil
	}

	if s.desc.Dimension() == 0 {
		s.logger.Warn("degenerate whole extent, no neighbors computed", "whole", s.whole, "desc", s.desc)
		return nil
	}

	var errs []error
	for _, g := range s.grids {
		if !s.whole.ContainsExtent(g.Extent) {
			errs = append(errs, fmt.Errorf("grid %d extent %v outside whole extent %v", g.ID, g.Extent, s.whole))
		}
		g.RealExtent = s.realExtent(g.Extent)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	for i := range s.grids {
		for j := i + 1; j < len(s.grids); j++ {
			s.establishNeighbors(i, j)
		}
	}

	for _, g := range s.grids {
		if g.Remote {
			continue
		}
		g.NodeProperties, g.CellProperties = s.classify(g, g.Extent)
	}

	s.logger.Debug("computed neighbors", "grids", len(s.grids), "desc", s.desc)
	return nil
}

// realExtent strips the existing ghost layers from faces interior to the
// domain
func (s *Structured) realExtent(ext extent.Extent) extent.Extent {
	if s.existingLayers == 0 {
		return ext
	}
	r := ext
	for _, d := range s.desc.Axes() {
		if ext.Min(d) > s.whole.Min(d) {
			r[2*d] += s.existingLayers
		}
		if ext.Max(d) < s.whole.Max(d) {
			r[2*d+1] -= s.existingLayers
		}
	}
	return r
}

// establishNeighbors records grids i and j as neighbors when their extents
// meet along every active axis
func (s *Structured) establishNeighbors(i, j int) {
	a := s.grids[i].Extent
	b := s.grids[j].Extent

	overlap, ok := DetectOverlap(a, b, s.desc)
	if !ok {
		return
	}

	orientI, orientJ := Orientations(a, b, overlap, s.desc)
	s.neighbors[i] = append(s.neighbors[i], NewNeighbor(j, overlap, orientI))
	s.neighbors[j] = append(s.neighbors[j], NewNeighbor(i, overlap, orientJ))
}

// DetectOverlap intersects a and b along the axes active in desc. Inactive
// axes keep a's bounds.
func DetectOverlap(a, b extent.Extent, desc extent.Description) (extent.Extent, bool) {
	overlap := a
	for _, d := range desc.Axes() {
		kind, r := extent.IntervalOverlap(a.Axis(d), b.Axis(d))
		if kind == extent.NoOverlap {
			return extent.Extent{}, false
		}
		overlap = overlap.WithAxis(d, r)
	}
	return overlap, true
}

// Orientations returns the orientation of a with respect to b and of b with
// respect to a. Inactive axes are Undefined.
func Orientations(a, b, overlap extent.Extent, desc extent.Description) (ab, ba [3]extent.Orientation) {
	ab = [3]extent.Orientation{extent.Undefined, extent.Undefined, extent.Undefined}
	ba = ab
	for _, d := range desc.Axes() {
		ab[d] = extent.DetermineOrientation(a.Axis(d), b.Axis(d), overlap.Axis(d))
		ba[d] = extent.DetermineOrientation(b.Axis(d), a.Axis(d), overlap.Axis(d))
	}
	return ab, ba
}

// classify derives node and cell properties of g over ext
func (s *Structured) classify(g *Grid, ext extent.Extent) ([]ghost.Property, []ghost.Property) {
	regions := make([]ghost.Region, 0, len(s.neighbors[g.ID]))
	for _, nb := range s.neighbors[g.ID] {
		regions = append(regions, ghost.Region{ID: nb.NeighborID, Overlap: nb.OverlapExtent})
	}
	c := ghost.NewClassifier(g.ID, g.RealExtent, s.whole, regions)
	nodes := c.Nodes(ext)
	cells := ghost.Cells(ext, nodes)

	// Registered flags survive for indices inside the registered extent
	if g.NodeGhosts != nil {
		g.Extent.ForEach(func(i, j, k int) {
			nodes[ext.NodeIndex(i, j, k)] |= g.NodeGhosts[g.Extent.NodeIndex(i, j, k)]
		})
	}
	if g.CellGhosts != nil {
		gc, ec := g.Extent.CellExtent(), ext.CellExtent()
		gc.ForEach(func(i, j, k int) {
			cells[ec.NodeIndex(i, j, k)] |= g.CellGhosts[gc.NodeIndex(i, j, k)]
		})
	}
	return nodes, cells
}

// NumberOfNeighbors returns the number of neighbors of grid id
func (s *Structured) NumberOfNeighbors(id int) int {
	s.checkComputed()
	s.checkID(id)
	return len(s.neighbors[id])
}

// Neighbors returns the public view of grid id's neighbor list
func (s *Structured) Neighbors(id int) []NeighborInfo {
	s.checkComputed()
	s.checkID(id)
	out := make([]NeighborInfo, len(s.neighbors[id]))
	for k, nb := range s.neighbors[id] {
		out[k] = NeighborInfo{ID: nb.NeighborID, Overlap: nb.OverlapExtent}
	}
	return out
}

// Neighbor returns the k-th neighbor record of grid id
func (s *Structured) Neighbor(id, k int) Neighbor {
	s.checkComputed()
	s.checkID(id)
	if k < 0 || k >= len(s.neighbors[id]) {
		panic(fmt.Sprintf("grid %d has no neighbor %d", id, k))
	}
	return s.neighbors[id][k]
}

// GridExtent returns the registered extent of grid id
func (s *Structured) GridExtent(id int) extent.Extent {
	return s.grid(id).Extent
}

// RealExtent returns the extent of grid id without pre-existing ghost layers
func (s *Structured) RealExtent(id int) extent.Extent {
	return s.grid(id).RealExtent
}

// NodeProperties returns the node properties over the registered extent
func (s *Structured) NodeProperties(id int) []ghost.Property {
	s.checkComputed()
	return s.grid(id).NodeProperties
}

// CellProperties returns the cell properties over the registered extent
func (s *Structured) CellProperties(id int) []ghost.Property {
	s.checkComputed()
	return s.grid(id).CellProperties
}

// NumberOfGhostLayers returns the accumulated ghost width
func (s *Structured) NumberOfGhostLayers() int {
	return s.numLayers
}

func (s *Structured) grid(id int) *Grid {
	s.checkID(id)
	g := s.grids[id]
	if g == nil {
		panic(fmt.Sprintf("grid %d was never registered", id))
	}
	return g
}

func (s *Structured) checkID(id int) {
	if id < 0 || id >= len(s.grids) {
		panic(fmt.Sprintf("grid id %d out of range [0,%d)", id, len(s.grids)))
	}
}

func (s *Structured) checkComputed() {
	if !s.computed {
		panic("neighbors queried before ComputeNeighbors")
	}
}

func (s *Structured) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Structured whole=%v desc=%v grids=%d layers=%d\n",
		s.whole, s.desc, len(s.grids), s.numLayers)
	for id, g := range s.grids {
		if g == nil {
			fmt.Fprintf(&sb, "grid %d: unregistered\n", id)
			continue
		}
		fmt.Fprintf(&sb, "grid %d: extent=%v real=%v ghosted=%v remote=%t\n",
			id, g.Extent, g.RealExtent, s.ghostedExtentOf(g), g.Remote)
		if s.computed {
			for _, nb := range s.neighbors[id] {
				fmt.Fprintf(&sb, "  %v\n", nb)
			}
		}
	}
	return sb.String()
}
