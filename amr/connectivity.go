// Package amr computes neighbor relationships and ghost layers across the
// levels of a structured AMR hierarchy.
package amr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/notargets/GhostGrid/connectivity"
	"github.com/notargets/GhostGrid/extent"
	"github.com/notargets/GhostGrid/field"
	"github.com/notargets/GhostGrid/ghost"
	"github.com/notargets/GhostGrid/logging"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrNodeCenteredAMR = errors.New("amr: node-centered ghost transfer is not supported")
	ErrNoRootLevel     = errors.New("amr: hierarchy has no level 0 grid")
	ErrMissingRatio    = errors.New("amr: missing refinement ratio")
)

// Connectivity is the AMR form of the grid connectivity
type Connectivity struct {
	numLevels   int
	ratio       int         // Constant refinement ratio, 0 when per level
	levelRatios map[int]int // Ratio from level l to l+1

	balanced     bool
	cellCentered bool
	nodeCentered bool

	grids     []*connectivity.Grid
	neighbors [][]Neighbor
	faces     []BlockFaces
	donors    [][]int // Per ghosted cell, level of the grid that filled it

	whole     extent.Extent // Level 0
	desc      extent.Description
	numLayers int
	computed  bool

	logger *log.Logger
}

// Option configures an AMR connectivity
type Option func(*Connectivity)

// WithLogger routes diagnostics to l
func WithLogger(l *log.Logger) Option {
	return func(c *Connectivity) { c.logger = l }
}

// WithBalancedRefinement toggles the assumption that adjacent grids differ
// by at most one level. It is on by default.
func WithBalancedRefinement(on bool) Option {
	return func(c *Connectivity) { c.balanced = on }
}

// WithCellCentered toggles cell data transfer. It is on by default.
func WithCellCentered(on bool) Option {
	return func(c *Connectivity) { c.cellCentered = on }
}

// WithNodeCentered requests node data transfer, which AMR grids do not
// support
func WithNodeCentered(on bool) Option {
	return func(c *Connectivity) { c.nodeCentered = on }
}

// New creates an AMR connectivity. A ratio of at least 2 is used between
// every pair of levels; a ratio of 0 means each level's ratio is given with
// RegisterGridWithRatio.
func New(numLevels, ratio int, opts ...Option) *Connectivity {
	if numLevels < 1 {
		panic(fmt.Sprintf("number of levels must be positive, got %d", numLevels))
	}
	if ratio == 1 || ratio < 0 {
		panic(fmt.Sprintf("refinement ratio must be 0 or at least 2, got %d", ratio))
	}
	c := &Connectivity{
		numLevels:    numLevels,
		ratio:        ratio,
		levelRatios:  make(map[int]int),
		balanced:     true,
		cellCentered: true,
		logger:       logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Methods for Connectivity

// SetNumberOfGrids sizes the grid arena and discards prior state
func (c *Connectivity) SetNumberOfGrids(n int) {
	if n <= 0 {
		panic(fmt.Sprintf("number of grids must be positive, got %d", n))
	}
	c.grids = make([]*connectivity.Grid, n)
	c.neighbors = nil
	c.computed = false
	c.numLayers = 0
}

// NumberOfGrids returns the size of the grid arena
func (c *Connectivity) NumberOfGrids() int {
	return len(c.grids)
}

// NumberOfLevels returns the number of levels in the hierarchy
func (c *Connectivity) NumberOfLevels() int {
	return c.numLevels
}

// RegisterGrid registers a local grid at level
func (c *Connectivity) RegisterGrid(id, level int, ext extent.Extent, opts ...connectivity.GridOption) error {
	c.checkID(id)
	c.checkLevel(level)
	g, err := connectivity.NewGrid(id, level, ext, opts...)
	if err != nil {
		return err
	}
	c.grids[id] = g
	return nil
}

// RegisterGridWithRatio registers a local grid and the refinement ratio
// between its level and the next finer one
func (c *Connectivity) RegisterGridWithRatio(id, level, ratio int, ext extent.Extent, opts ...connectivity.GridOption) error {
	if c.ratio > 0 {
		panic("per-level refinement ratio given to a constant-ratio hierarchy")
	}
	if ratio < 2 {
		return fmt.Errorf("grid %d: refinement ratio must be at least 2, got %d", id, ratio)
	}
	if r, ok := c.levelRatios[level]; ok && r != ratio {
		return fmt.Errorf("grid %d: level %d already has ratio %d, got %d", id, level, r, ratio)
	}
	if err := c.RegisterGrid(id, level, ext, opts...); err != nil {
		return err
	}
	c.levelRatios[level] = ratio
	return nil
}

// RegisterRemote records a grid owned by another rank
func (c *Connectivity) RegisterRemote(id, level int, ext extent.Extent) {
	c.checkID(id)
	c.checkLevel(level)
	c.grids[id] = &connectivity.Grid{ID: id, Level: level, Remote: true, Extent: ext, RealExtent: ext}
}

// SetLevelRatio records the refinement ratio between level and level+1 for
// hierarchies whose grids on that level are all remote
func (c *Connectivity) SetLevelRatio(level, ratio int) {
	if c.ratio > 0 {
		return
	}
	c.levelRatios[level] = ratio
}

// LevelRatio returns the refinement ratio between level and level+1
func (c *Connectivity) LevelRatio(level int) (int, bool) {
	if c.ratio > 0 {
		return c.ratio, true
	}
	r, ok := c.levelRatios[level]
	return r, ok
}

// IsLocal reports whether grid id carries data on this process
func (c *Connectivity) IsLocal(id int) bool {
	c.checkID(id)
	return c.grids[id] != nil && !c.grids[id].Remote
}

// GridLevel returns the level of grid id
func (c *Connectivity) GridLevel(id int) int {
	return c.grid(id).Level
}

// ComputeNeighbors builds the AMR neighbor lists
func (c *Connectivity) ComputeNeighbors() error {
	for id, g := range c.grids {
		if g == nil {
			panic(fmt.Sprintf("grid %d was never registered", id))
		}
	}
	if err := c.computeWholeExtent(); err != nil {
		return err
	}
	if c.ratio == 0 {
		maxLevel := 0
		for _, g := range c.grids {
			maxLevel = max(maxLevel, g.Level)
		}
		for l := 0; l < maxLevel; l++ {
			if _, ok := c.levelRatios[l]; !ok {
				return fmt.Errorf("%w: level %d", ErrMissingRatio, l)
			}
		}
	}

	c.neighbors = make([][]Neighbor, len(c.grids))
	c.faces = make([]BlockFaces, len(c.grids))
	c.donors = make([][]int, len(c.grids))
	c.numLayers = 0
	c.computed = true
	for _, g := range c.grids {
		g.Ghosted = nil
	}

	if c.desc.Dimension() == 0 {
		c.logger.Warn("degenerate whole extent, no neighbors computed", "whole", c.whole)
		return nil
	}

	for i := range c.grids {
		c.setBlockTopology(i)
		for j := i + 1; j < len(c.grids); j++ {
			c.establishNeighbors(i, j)
		}
	}

	for _, g := range c.grids {
		if !g.Remote {
			c.fillGhostArrays(g)
		}
	}
	c.logger.Debug("computed AMR neighbors", "grids", len(c.grids), "whole", c.whole, "desc", c.desc)
	return nil
}

// establishNeighbors compares grids i and j at the level of grid j
func (c *Connectivity) establishNeighbors(i, j int) {
	li, lj := c.grids[i].Level, c.grids[j].Level
	diff := abs(lj - li)
	if c.balanced && diff > 1 {
		return
	}

	norm := lj
	ext1 := c.Scale(c.grids[i].Extent, li, norm)
	ext2 := c.grids[j].Extent

	overlap, ok := connectivity.DetectOverlap(ext1, ext2, c.desc)
	if !ok {
		return
	}
	oi, oj := connectivity.Orientations(ext1, ext2, overlap, c.desc)

	c.neighbors[i] = append(c.neighbors[i], c.newNeighbor(li, ext1, j, lj, ext2, norm, overlap, oi))
	c.neighbors[j] = append(c.neighbors[j], c.newNeighbor(lj, ext2, i, li, ext1, norm, overlap, oj))
}

// newNeighbor builds the record grid (iLevel, next1) keeps for grid j, where
// both extents and the overlap are at level norm
func (c *Connectivity) newNeighbor(iLevel int, next1 extent.Extent, j, jLevel int, next2 extent.Extent,
	norm int, overlap extent.Extent, orient [3]extent.Orientation) Neighbor {
	gridOverlap := c.Scale(overlap, norm, iLevel)
	neiOverlap := c.Scale(overlap, norm, jLevel)
	rel := c.relationship(iLevel, jLevel, overlap, next1, next2)
	return NewNeighbor(iLevel, j, jLevel, gridOverlap, neiOverlap, orient, rel)
}

// relationship classifies a neighbor from the dimension of the shared region
func (c *Connectivity) relationship(iLevel, jLevel int, overlap, next1, next2 extent.Extent) Relationship {
	dim := c.desc.Dimension()
	overlapDim := overlap.Dimension()

	switch {
	case iLevel == jLevel:
		if overlapDim == dim-1 {
			return SameLevelSibling
		}
		return Indeterminate

	case iLevel < jLevel:
		switch {
		case overlapDim == dim-1:
			return CoarseToFineSibling
		case overlapDim != dim:
			return Indeterminate
		case jLevel-iLevel > 1:
			return Undefined
		case overlap == next2:
			return Child
		}
		return PartiallyOverlappingChild

	default:
		switch {
		case overlapDim == dim-1:
			return FineToCoarseSibling
		case overlapDim != dim:
			return Indeterminate
		case iLevel-jLevel > 1:
			return Undefined
		case overlap == next1:
			return Parent
		}
		return PartiallyOverlappingParent
	}
}

// fillGhostArrays classifies the registered nodes and cells of g
func (c *Connectivity) fillGhostArrays(g *connectivity.Grid) {
	whole := c.WholeExtentAtLevel(g.Level)
	var regions []ghost.Region
	for _, nb := range c.neighbors[g.ID] {
		if nb.NeighborLevel == g.Level {
			regions = append(regions, ghost.Region{ID: nb.NeighborID, Overlap: nb.GridOverlapExtent})
		}
	}
	cls := ghost.NewClassifier(g.ID, g.Extent, whole, regions)
	g.NodeProperties = cls.Nodes(g.Extent)
	if g.NodeGhosts != nil {
		for n := range g.NodeProperties {
			g.NodeProperties[n] |= g.NodeGhosts[n]
		}
	}

	cells := g.Extent.CellExtent()
	g.CellProperties = make([]ghost.Property, cells.NumberOfNodes())
	copy(g.CellProperties, g.CellGhosts)
	for _, nb := range c.neighbors[g.ID] {
		if nb.Relationship != Child && nb.Relationship != PartiallyOverlappingChild {
			continue
		}
		covered, ok := nb.GridOverlapExtent.CellExtent().Intersect(cells)
		if !ok {
			continue
		}
		covered.ForEach(func(i, j, k int) {
			g.CellProperties[cells.NodeIndex(i, j, k)] |= ghost.Refined
		})
	}
}

// NumberOfNeighbors returns the number of neighbors of grid id
func (c *Connectivity) NumberOfNeighbors(id int) int {
	c.checkComputed()
	c.checkID(id)
	return len(c.neighbors[id])
}

// Neighbors returns the public view of grid id's neighbors, with overlaps at
// the neighbor's level
func (c *Connectivity) Neighbors(id int) []connectivity.NeighborInfo {
	c.checkComputed()
	c.checkID(id)
	out := make([]connectivity.NeighborInfo, len(c.neighbors[id]))
	for k, nb := range c.neighbors[id] {
		out[k] = connectivity.NeighborInfo{ID: nb.NeighborID, Overlap: nb.OverlapExtent}
	}
	return out
}

// Neighbor returns the k-th AMR neighbor record of grid id
func (c *Connectivity) Neighbor(id, k int) Neighbor {
	c.checkComputed()
	c.checkID(id)
	if k < 0 || k >= len(c.neighbors[id]) {
		panic(fmt.Sprintf("grid %d has no neighbor %d", id, k))
	}
	return c.neighbors[id][k]
}

// BlockFaces returns the connected faces of grid id
func (c *Connectivity) BlockFaces(id int) BlockFaces {
	c.checkComputed()
	c.checkID(id)
	return c.faces[id]
}

// WholeExtent returns the level-0 whole extent
func (c *Connectivity) WholeExtent() extent.Extent {
	return c.whole
}

// GridExtent returns the registered extent of grid id
func (c *Connectivity) GridExtent(id int) extent.Extent {
	return c.grid(id).Extent
}

// GhostedExtent returns the extent of grid id including ghost layers
func (c *Connectivity) GhostedExtent(id int) extent.Extent {
	g := c.grid(id)
	if g.Ghosted == nil {
		return g.Extent
	}
	return g.Ghosted.Extent
}

// NodeProperties returns the node properties over the registered extent
func (c *Connectivity) NodeProperties(id int) []ghost.Property {
	c.checkComputed()
	return c.grid(id).NodeProperties
}

// CellProperties returns the cell properties over the registered extent
func (c *Connectivity) CellProperties(id int) []ghost.Property {
	c.checkComputed()
	return c.grid(id).CellProperties
}

// GhostedCellData returns the ghost-augmented cell fields of grid id
func (c *Connectivity) GhostedCellData(id int) *field.Data {
	if l := c.grid(id).Ghosted; l != nil {
		return l.CellData
	}
	return nil
}

// GhostedNodeData returns the ghost-augmented node fields of grid id. Ghost
// nodes are left zero.
func (c *Connectivity) GhostedNodeData(id int) *field.Data {
	if l := c.grid(id).Ghosted; l != nil {
		return l.NodeData
	}
	return nil
}

// GhostedNodeGhosts returns the node properties over the ghosted extent
func (c *Connectivity) GhostedNodeGhosts(id int) []ghost.Property {
	if l := c.grid(id).Ghosted; l != nil {
		return l.NodeProperties
	}
	return nil
}

// GhostedCellGhosts returns the cell properties over the ghosted extent
func (c *Connectivity) GhostedCellGhosts(id int) []ghost.Property {
	if l := c.grid(id).Ghosted; l != nil {
		return l.CellProperties
	}
	return nil
}

// GhostedPoints returns the ghost-augmented coordinates of grid id
func (c *Connectivity) GhostedPoints(id int) *mat.Dense {
	if l := c.grid(id).Ghosted; l != nil {
		return l.Points
	}
	return nil
}

// DonorLevels returns, per ghosted cell of grid id, the level of the grid
// whose data fills it, or -1
func (c *Connectivity) DonorLevels(id int) []int {
	c.checkComputed()
	c.checkID(id)
	return append([]int(nil), c.donors[id]...)
}

func (c *Connectivity) grid(id int) *connectivity.Grid {
	c.checkID(id)
	g := c.grids[id]
	if g == nil {
		panic(fmt.Sprintf("grid %d was never registered", id))
	}
	return g
}

func (c *Connectivity) checkID(id int) {
	if id < 0 || id >= len(c.grids) {
		panic(fmt.Sprintf("grid id %d out of range [0,%d)", id, len(c.grids)))
	}
}

func (c *Connectivity) checkLevel(level int) {
	if level < 0 || level >= c.numLevels {
		panic(fmt.Sprintf("level %d out of range [0,%d)", level, c.numLevels))
	}
}

func (c *Connectivity) checkComputed() {
	if !c.computed {
		panic("neighbors queried before ComputeNeighbors")
	}
}

func (c *Connectivity) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "AMR levels=%d ratio=%d balanced=%t whole=%v desc=%v grids=%d layers=%d\n",
		c.numLevels, c.ratio, c.balanced, c.whole, c.desc, len(c.grids), c.numLayers)
	for id, g := range c.grids {
		if g == nil {
			fmt.Fprintf(&sb, "grid %d: unregistered\n", id)
			continue
		}
		fmt.Fprintf(&sb, "grid %d: level=%d extent=%v ghosted=%v remote=%t",
			id, g.Level, g.Extent, c.GhostedExtent(id), g.Remote)
		if c.computed {
			fmt.Fprintf(&sb, " faces=%v\n", c.faces[id])
			for _, nb := range c.neighbors[id] {
				fmt.Fprintf(&sb, "  %v\n", nb)
			}
		} else {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
