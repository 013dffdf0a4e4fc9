package connectivity

import (
	"bytes"
	"errors"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"
	"github.com/notargets/GhostGrid/extent"
	"github.com/notargets/GhostGrid/field"
	"github.com/notargets/GhostGrid/ghost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// nodeValue tags every node with its global position
func nodeValue(i, j, k int) float64 { return float64(i + 100*j + 10000*k) }

// cellValue tags every cell with its global position
func cellValue(i, j, k int) float64 { return float64(i+100*j+10000*k) + 0.5 }

func gridOptions(ext extent.Extent) []GridOption {
	var nodes, cells []float64
	ext.ForEach(func(i, j, k int) { nodes = append(nodes, nodeValue(i, j, k)) })
	ext.CellExtent().ForEach(func(i, j, k int) { cells = append(cells, cellValue(i, j, k)) })

	pts := mat.NewDense(ext.NumberOfNodes(), 3, nil)
	n := 0
	ext.ForEach(func(i, j, k int) {
		pts.SetRow(n, []float64{float64(i), float64(j), float64(k)})
		n++
	})

	return []GridOption{
		WithNodeData(field.NewData(field.NewFloat64Array("U", 1, nodes))),
		WithCellData(field.NewData(field.NewFloat64Array("P", 1, cells))),
		WithPoints(pts),
	}
}

func newDomain(t *testing.T, whole extent.Extent, grids []extent.Extent, opts ...Option) *Structured {
	t.Helper()
	s := NewStructured(whole, opts...)
	s.SetNumberOfGrids(len(grids))
	for id, ext := range grids {
		require.NoError(t, s.RegisterGrid(id, ext, gridOptions(ext)...))
	}
	require.NoError(t, s.ComputeNeighbors())
	return s
}

func blocks2D() []extent.Extent {
	return []extent.Extent{
		extent.New(0, 5, 0, 5, 0, 0),
		extent.New(5, 10, 0, 5, 0, 0),
		extent.New(0, 5, 5, 10, 0, 0),
		extent.New(5, 10, 5, 10, 0, 0),
	}
}

func TestOneDimensionalExample(t *testing.T) {
	whole := extent.New(0, 10, 0, 0, 0, 0)
	s := newDomain(t, whole, []extent.Extent{
		extent.New(0, 5, 0, 0, 0, 0),
		extent.New(5, 10, 0, 0, 0, 0),
	})

	// Test 1: neighbor records
	require.Equal(t, 1, s.NumberOfNeighbors(0))
	require.Equal(t, 1, s.NumberOfNeighbors(1))
	a, b := s.Neighbor(0, 0), s.Neighbor(1, 0)
	assert.Equal(t, extent.New(5, 5, 0, 0, 0, 0), a.OverlapExtent)
	assert.Equal(t, a.OverlapExtent, b.OverlapExtent)
	assert.Equal(t, extent.Hi, a.Orientation[0])
	assert.Equal(t, extent.Lo, b.Orientation[0])

	// Test 2: one ghost layer
	require.NoError(t, s.CreateGhostLayers(1))
	a, b = s.Neighbor(0, 0), s.Neighbor(1, 0)
	assert.Equal(t, extent.New(4, 5, 0, 0, 0, 0), a.SendExtent)
	assert.Equal(t, extent.New(5, 6, 0, 0, 0, 0), a.RcvExtent)
	assert.Equal(t, extent.New(0, 6, 0, 0, 0, 0), s.GhostedExtent(0))
	assert.Equal(t, extent.New(4, 10, 0, 0, 0, 0), s.GhostedExtent(1))

	// Test 3: ghost values come from the neighbor
	u0 := s.GhostedNodeData(0).Get("U").Values
	assert.Equal(t, nodeValue(6, 0, 0), u0.At(6))
	u1 := s.GhostedNodeData(1).Get("U").Values
	assert.Equal(t, nodeValue(4, 0, 0), u1.At(0))

	p1 := s.GhostedCellData(1).Get("P").Values
	assert.Equal(t, cellValue(4, 0, 0), p1.At(0))
	p0 := s.GhostedCellData(0).Get("P").Values
	assert.Equal(t, cellValue(5, 0, 0), p0.At(5))

	// Test 4: ghost flags
	assert.Equal(t, ghost.Ghost|ghost.Ignore, s.GhostedNodeGhosts(1)[0])
	assert.Equal(t, ghost.Shared|ghost.Ignore, s.GhostedNodeGhosts(1)[1])
	assert.Equal(t, ghost.Shared, s.GhostedNodeGhosts(0)[5])
	assert.Equal(t, ghost.Ghost, s.GhostedCellGhosts(0)[5])

	// Test 5: points follow the node data
	pts := s.GhostedPoints(1)
	assert.Equal(t, []float64{4, 0, 0}, pts.RawRowView(0))
}

func TestGhostLayersAccumulate(t *testing.T) {
	whole := extent.New(0, 10, 0, 0, 0, 0)
	s := newDomain(t, whole, []extent.Extent{
		extent.New(0, 5, 0, 0, 0, 0),
		extent.New(5, 10, 0, 0, 0, 0),
	})

	require.NoError(t, s.CreateGhostLayers(1))
	require.NoError(t, s.CreateGhostLayers(2))
	assert.Equal(t, 3, s.NumberOfGhostLayers())
	assert.Equal(t, extent.New(0, 8, 0, 0, 0, 0), s.GhostedExtent(0))
	assert.Equal(t, extent.New(2, 10, 0, 0, 0, 0), s.GhostedExtent(1))

	u1 := s.GhostedNodeData(1).Get("U").Values
	for n, i := 0, 2; i <= 10; i, n = i+1, n+1 {
		assert.Equal(t, nodeValue(i, 0, 0), u1.At(n), "node %d", i)
	}
}

func TestZeroGhostLayersWarns(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf)
	s := newDomain(t, extent.New(0, 10, 0, 0, 0, 0), []extent.Extent{
		extent.New(0, 5, 0, 0, 0, 0),
		extent.New(5, 10, 0, 0, 0, 0),
	}, WithLogger(logger))

	require.NoError(t, s.CreateGhostLayers(0))
	assert.Contains(t, buf.String(), "zero ghost layers")
	assert.Nil(t, s.GhostedNodeData(0))
	assert.Equal(t, extent.New(0, 5, 0, 0, 0, 0), s.GhostedExtent(0))
}

func TestTwoDimensionalBlocks(t *testing.T) {
	whole := extent.New(0, 10, 0, 10, 0, 0)
	s := newDomain(t, whole, blocks2D())

	// Every block touches the other three, including the diagonal corner
	for id := 0; id < 4; id++ {
		assert.Equal(t, 3, s.NumberOfNeighbors(id), "grid %d", id)
	}

	require.NoError(t, s.CreateGhostLayers(1))
	assert.Equal(t, extent.New(0, 6, 0, 6, 0, 0), s.GhostedExtent(0))
	assert.Equal(t, extent.New(4, 10, 4, 10, 0, 0), s.GhostedExtent(3))

	// The ghost ring of every block holds the global values
	for id := 0; id < 4; id++ {
		ext := s.GhostedExtent(id)
		u := s.GhostedNodeData(id).Get("U").Values
		ext.ForEach(func(i, j, k int) {
			if got := u.At(ext.NodeIndex(i, j, k)); got != nodeValue(i, j, k) {
				t.Errorf("grid %d node (%d,%d) = %v, want %v", id, i, j, got, nodeValue(i, j, k))
			}
		})
		cells := ext.CellExtent()
		p := s.GhostedCellData(id).Get("P").Values
		cells.ForEach(func(i, j, k int) {
			if got := p.At(cells.NodeIndex(i, j, k)); got != cellValue(i, j, k) {
				t.Errorf("grid %d cell (%d,%d) = %v, want %v", id, i, j, got, cellValue(i, j, k))
			}
		})
	}
}

func TestNeighborSymmetry(t *testing.T) {
	whole := extent.New(0, 12, 0, 8, 0, 4)
	var grids []extent.Extent
	for k := 0; k < 2; k++ {
		for j := 0; j < 2; j++ {
			for i := 0; i < 3; i++ {
				grids = append(grids, extent.New(4*i, 4*i+4, 4*j, 4*j+4, 2*k, 2*k+2))
			}
		}
	}
	s := newDomain(t, whole, grids)

	for id := range grids {
		for k := 0; k < s.NumberOfNeighbors(id); k++ {
			nb := s.Neighbor(id, k)
			var back *Neighbor
			for m := 0; m < s.NumberOfNeighbors(nb.NeighborID); m++ {
				r := s.Neighbor(nb.NeighborID, m)
				if r.NeighborID == id {
					back = &r
				}
			}
			require.NotNil(t, back, "grid %d lists %d but not the reverse", id, nb.NeighborID)
			assert.Equal(t, nb.OverlapExtent, back.OverlapExtent)
			for d := 0; d < 3; d++ {
				assert.True(t, extent.Complementary(nb.Orientation[d], back.Orientation[d]),
					"grids %d/%d axis %d: %v vs %v", id, nb.NeighborID, d, nb.Orientation[d], back.Orientation[d])
			}
		}
	}

	// Interior corner block of the 3x2x2 layout touches every other block
	assert.Equal(t, 11, s.NumberOfNeighbors(1))
}

func TestOwnershipIsDeterministic(t *testing.T) {
	s := newDomain(t, extent.New(0, 10, 0, 10, 0, 0), blocks2D())

	// Count owners of every node across grids
	owners := map[[3]int]int{}
	for id := 0; id < 4; id++ {
		ext := s.GridExtent(id)
		props := s.NodeProperties(id)
		ext.ForEach(func(i, j, k int) {
			if !props[ext.NodeIndex(i, j, k)].Has(ghost.Ignore) {
				owners[[3]int{i, j, k}]++
			}
		})
	}
	assert.Len(t, owners, 121)
	for node, n := range owners {
		assert.Equal(t, 1, n, "node %v has %d owners", node, n)
	}
}

func TestSchemaMismatchIsReported(t *testing.T) {
	whole := extent.New(0, 10, 0, 0, 0, 0)
	s := NewStructured(whole)
	s.SetNumberOfGrids(2)

	a := extent.New(0, 5, 0, 0, 0, 0)
	b := extent.New(5, 10, 0, 0, 0, 0)
	require.NoError(t, s.RegisterGrid(0, a, WithNodeData(field.NewData(
		field.NewFloat64Array("U", 1, make([]float64, 6)),
		field.NewFloat64Array("V", 2, make([]float64, 12)),
	))))
	require.NoError(t, s.RegisterGrid(1, b, WithNodeData(field.NewData(
		field.NewFloat64Array("U", 1, []float64{1, 2, 3, 4, 5, 6}),
		field.NewFloat64Array("V", 1, make([]float64, 6)),
	))))
	require.NoError(t, s.ComputeNeighbors())

	err := s.CreateGhostLayers(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, field.ErrSchemaMismatch))

	// U still made it across in both directions
	assert.Equal(t, 2.0, s.GhostedNodeData(0).Get("U").Values.At(6))
	assert.NotNil(t, s.GhostedNodeData(1))
}

func TestDegenerateWholeExtent(t *testing.T) {
	s := NewStructured(extent.New(3, 3, 3, 3, 3, 3))
	s.SetNumberOfGrids(1)
	require.NoError(t, s.RegisterGrid(0, extent.New(3, 3, 3, 3, 3, 3)))
	require.NoError(t, s.ComputeNeighbors())
	assert.Equal(t, 0, s.NumberOfNeighbors(0))
	require.NoError(t, s.CreateGhostLayers(1))
	assert.Equal(t, extent.New(3, 3, 3, 3, 3, 3), s.GhostedExtent(0))
}

func TestPreconditions(t *testing.T) {
	s := NewStructured(extent.New(0, 10, 0, 0, 0, 0))
	s.SetNumberOfGrids(2)

	assert.Panics(t, func() { _ = s.RegisterGrid(2, extent.New(0, 5, 0, 0, 0, 0)) })
	assert.Panics(t, func() { s.NumberOfNeighbors(0) })
	assert.Panics(t, func() { _ = s.ComputeNeighbors() }, "unregistered grids")
	assert.Panics(t, func() { s.SetNumberOfGrids(0) })

	err := s.RegisterGrid(0, extent.New(0, 11, 0, 0, 0, 0))
	assert.Error(t, err)

	err = s.RegisterGrid(0, extent.New(0, 5, 0, 0, 0, 0),
		WithNodeData(field.NewData(field.NewFloat64Array("U", 1, make([]float64, 3)))))
	assert.Error(t, err)
}

func TestExistingGhostLayers(t *testing.T) {
	whole := extent.New(0, 10, 0, 0, 0, 0)
	s := newDomain(t, whole, []extent.Extent{
		extent.New(0, 6, 0, 0, 0, 0),
		extent.New(4, 10, 0, 0, 0, 0),
	}, WithExistingGhostLayers(1))

	assert.Equal(t, extent.New(0, 5, 0, 0, 0, 0), s.RealExtent(0))
	assert.Equal(t, extent.New(5, 10, 0, 0, 0, 0), s.RealExtent(1))

	props := s.NodeProperties(0)
	assert.Equal(t, ghost.Ghost|ghost.Ignore, props[6])
	assert.True(t, props[5].Has(ghost.Shared))
}

func TestSendReceivePatchMatchesLocalTransfer(t *testing.T) {
	whole := extent.New(0, 10, 0, 10, 0, 0)
	s := newDomain(t, whole, blocks2D())
	require.NoError(t, s.CreateGhostLayers(1))
	want := s.GhostedNodeData(0).Get("U").Values.(field.Float64Values)
	wantCells := s.GhostedCellData(0).Get("P").Values.(field.Float64Values)

	// Rebuild grid 0's ghost layer through patches only
	r := newDomain(t, whole, blocks2D())
	for id := 1; id < 4; id++ {
		r.grids[id].Remote = true
	}
	require.NoError(t, r.CreateGhostLayers(1))
	for _, nb := range r.Neighbors(0) {
		p, err := s.SendPatch(nb.ID, 0)
		require.NoError(t, err)
		require.NoError(t, r.ReceivePatch(0, nb.ID, p))
	}

	if diff := cmp.Diff(want, r.GhostedNodeData(0).Get("U").Values.(field.Float64Values)); diff != "" {
		t.Errorf("node ghost mismatch (-local +patched):\n%s", diff)
	}
	if diff := cmp.Diff(wantCells, r.GhostedCellData(0).Get("P").Values.(field.Float64Values)); diff != "" {
		t.Errorf("cell ghost mismatch (-local +patched):\n%s", diff)
	}
}

func TestReceivePatchDropsMisshapenArrays(t *testing.T) {
	whole := extent.New(0, 10, 0, 0, 0, 0)
	grids := []extent.Extent{
		extent.New(0, 5, 0, 0, 0, 0),
		extent.New(5, 10, 0, 0, 0, 0),
	}
	s := newDomain(t, whole, grids)
	require.NoError(t, s.CreateGhostLayers(1))

	r := newDomain(t, whole, grids)
	r.grids[1].Remote = true
	require.NoError(t, r.CreateGhostLayers(1))

	p, err := s.SendPatch(1, 0)
	require.NoError(t, err)
	require.Equal(t, extent.New(5, 6, 0, 0, 0, 0), p.Extent)

	// Node array and points one tuple short of the patch extent
	p.NodeData = field.NewData(field.NewFloat64Array("U", 1, []float64{42}))
	p.Points = mat.NewDense(1, 3, nil)

	require.NotPanics(t, func() { err = r.ReceivePatch(0, 1, p) })
	assert.ErrorIs(t, err, field.ErrSchemaMismatch)
	assert.ErrorContains(t, err, `node array "U" has 1 tuples, patch covers 2`)
	assert.ErrorContains(t, err, "1x3 points")

	// The well-formed cell array still arrives
	if diff := cmp.Diff(s.GhostedCellData(0).Get("P").Values, r.GhostedCellData(0).Get("P").Values); diff != "" {
		t.Errorf("cell ghost mismatch (-local +patched):\n%s", diff)
	}
	u := r.GhostedNodeData(0).Get("U").Values
	assert.Zero(t, u.At(u.Len()-1), "ghost node left unfilled")
}

func TestPatchChecked(t *testing.T) {
	p := Patch{
		Extent:     extent.New(0, 2, 0, 0, 0, 0),
		CellExtent: extent.New(0, 1, 0, 0, 0, 0),
		NodeData: field.NewData(
			field.NewFloat64Array("U", 1, []float64{1, 2, 3}),
			field.NewFloat64Array("V", 2, []float64{1, 2})),
		CellData: field.NewData(field.NewFloat64Array("P", 1, []float64{1, 2})),
		Points:   mat.NewDense(3, 3, nil),
	}
	got, err := p.Checked()
	assert.ErrorIs(t, err, field.ErrSchemaMismatch)
	assert.Equal(t, []string{"U"}, got.NodeData.Names())
	assert.Equal(t, []string{"P"}, got.CellData.Names())
	assert.NotNil(t, got.Points)

	p.NodeData = field.NewData(field.NewFloat64Array("U", 1, []float64{1, 2, 3}))
	_, err = p.Checked()
	assert.NoError(t, err)
}

func TestStringDump(t *testing.T) {
	s := newDomain(t, extent.New(0, 10, 0, 0, 0, 0), []extent.Extent{
		extent.New(0, 5, 0, 0, 0, 0),
		extent.New(5, 10, 0, 0, 0, 0),
	})
	out := s.String()
	assert.Contains(t, out, "grid 0: extent=[0 5 0 0 0 0]")
	assert.Contains(t, out, "orient=[HI UNDEFINED UNDEFINED]")
}
