package extent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescription(t *testing.T) {
	tests := []struct {
		name string
		ext  Extent
		want Description
		dim  int
	}{
		{"empty", New(0, -1, 0, 0, 0, 0), Empty, 0},
		{"point", New(3, 3, 4, 4, 5, 5), SinglePoint, 0},
		{"x line", New(0, 10, 0, 0, 0, 0), XLine, 1},
		{"y line", New(0, 0, 0, 10, 0, 0), YLine, 1},
		{"z line", New(0, 0, 0, 0, 2, 3), ZLine, 1},
		{"xy plane", New(0, 4, 0, 4, 0, 0), XYPlane, 2},
		{"yz plane", New(1, 1, 0, 4, 0, 4), YZPlane, 2},
		{"xz plane", New(0, 4, 2, 2, 0, 4), XZPlane, 2},
		{"volume", New(0, 4, 0, 4, 0, 4), XYZGrid, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ext.Description())
			assert.Equal(t, tt.dim, tt.ext.Dimension())
		})
	}
}

func TestCounts(t *testing.T) {
	e := New(0, 4, 0, 2, 0, 0)

	assert.Equal(t, 15, e.NumberOfNodes())
	assert.Equal(t, 8, e.NumberOfCells())
	assert.Equal(t, New(0, 3, 0, 1, 0, 0), e.CellExtent())

	// Single point keeps one cell
	p := New(2, 2, 2, 2, 2, 2)
	assert.Equal(t, 1, p.NumberOfCells())

	assert.Equal(t, 0, New(0, -1, 0, 0, 0, 0).NumberOfNodes())
}

func TestNodeIndexMatchesForEach(t *testing.T) {
	e := New(-1, 2, 3, 5, 0, 1)
	next := 0
	e.ForEach(func(i, j, k int) {
		if got := e.NodeIndex(i, j, k); got != next {
			t.Fatalf("NodeIndex(%d,%d,%d) = %d, want %d", i, j, k, got, next)
		}
		next++
	})
	assert.Equal(t, e.NumberOfNodes(), next)
}

func TestInteriorAndBoundary(t *testing.T) {
	e := New(0, 4, 0, 4, 0, 0)
	desc := e.Description()

	assert.True(t, e.Interior(desc, 2, 2, 0))
	assert.False(t, e.Interior(desc, 0, 2, 0))
	assert.False(t, e.Interior(desc, 5, 2, 0))

	// The degenerate k axis never makes a node a boundary node
	assert.False(t, e.OnBoundary(desc, 2, 2, 0))
	assert.True(t, e.OnBoundary(desc, 4, 1, 0))
	assert.True(t, e.OnBoundary(desc, 1, 0, 0))
	assert.False(t, e.OnBoundary(desc, 7, 0, 0))
}

func TestClampIntersectGrow(t *testing.T) {
	whole := New(0, 10, 0, 0, 0, 0)
	desc := whole.Description()

	g := New(0, 5, 0, 0, 0, 0).Grow(1, desc)
	assert.Equal(t, New(-1, 6, 0, 0, 0, 0), g)
	assert.Equal(t, New(0, 6, 0, 0, 0, 0), g.Clamp(whole))

	r, ok := New(0, 5, 0, 0, 0, 0).Intersect(New(5, 10, 0, 0, 0, 0))
	assert.True(t, ok)
	assert.Equal(t, New(5, 5, 0, 0, 0, 0), r)

	_, ok = New(0, 4, 0, 0, 0, 0).Intersect(New(5, 10, 0, 0, 0, 0))
	assert.False(t, ok)

	assert.True(t, whole.ContainsExtent(New(2, 3, 0, 0, 0, 0)))
	assert.False(t, whole.ContainsExtent(New(2, 11, 0, 0, 0, 0)))
}

func TestAxisAccessors(t *testing.T) {
	e := New(1, 2, 3, 4, 5, 6)
	assert.Equal(t, [2]int{3, 4}, e.Axis(1))
	assert.Equal(t, 5, e.Min(2))
	assert.Equal(t, 6, e.Max(2))
	assert.Equal(t, New(1, 2, 7, 9, 5, 6), e.WithAxis(1, [2]int{7, 9}))
	assert.Equal(t, "[1 2 3 4 5 6]", e.String())
}
