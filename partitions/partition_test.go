package partitions

import (
	"testing"

	"github.com/notargets/GhostGrid/connectivity"
	"github.com/notargets/GhostGrid/extent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPartitions(t *testing.T) {
	whole := extent.New(0, 10, 0, 10, 0, 0)

	t.Run("block strategy", func(t *testing.T) {
		pb := &PartitionBuilder{WholeExtent: whole, Blocks: [3]int{2, 2, 1}, NumRanks: 2}
		layout, err := pb.BuildPartitions()
		require.NoError(t, err)

		require.Len(t, layout.Partitions, 4)
		assert.Equal(t, extent.New(0, 5, 0, 5, 0, 0), layout.Partitions[0].Extent)
		assert.Equal(t, extent.New(5, 10, 0, 5, 0, 0), layout.Partitions[1].Extent)
		assert.Equal(t, extent.New(0, 5, 5, 10, 0, 0), layout.Partitions[2].Extent)
		assert.Equal(t, extent.New(5, 10, 5, 10, 0, 0), layout.Partitions[3].Extent)
		assert.Equal(t, [3]int{1, 1, 0}, layout.Partitions[3].Block)
		assert.Equal(t, []int{0, 0, 1, 1}, layout.GridToRank)
		assert.Equal(t, 2, layout.MaxPerRank)
	})

	t.Run("round robin", func(t *testing.T) {
		pb := &PartitionBuilder{WholeExtent: whole, Blocks: [3]int{2, 2, 1}, NumRanks: 2, Strategy: RoundRobin}
		layout, err := pb.BuildPartitions()
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 0, 1}, layout.GridToRank)

		local := layout.LocalPartitions(1)
		require.Len(t, local, 2)
		assert.Equal(t, 1, local[0].ID)
		assert.Equal(t, 3, local[1].ID)
		assert.Equal(t, -1, layout.GetRank(4))
	})

	t.Run("uneven split", func(t *testing.T) {
		pb := &PartitionBuilder{WholeExtent: extent.New(0, 10, 0, 0, 0, 0), Blocks: [3]int{3, 1, 1}, NumRanks: 3}
		layout, err := pb.BuildPartitions()
		require.NoError(t, err)
		assert.Equal(t, extent.New(0, 4, 0, 0, 0, 0), layout.Partitions[0].Extent)
		assert.Equal(t, extent.New(4, 7, 0, 0, 0, 0), layout.Partitions[1].Extent)
		assert.Equal(t, extent.New(7, 10, 0, 0, 0, 0), layout.Partitions[2].Extent)
	})
}

func TestBuildPartitionsErrors(t *testing.T) {
	whole := extent.New(0, 4, 0, 4, 0, 0)
	cases := []struct {
		name string
		pb   PartitionBuilder
		msg  string
	}{
		{"no ranks", PartitionBuilder{WholeExtent: whole, Blocks: [3]int{1, 1, 1}}, "ranks must be positive"},
		{"empty", PartitionBuilder{WholeExtent: extent.New(0, -1, 0, 0, 0, 0), Blocks: [3]int{1, 1, 1}, NumRanks: 1}, "empty whole extent"},
		{"too many blocks", PartitionBuilder{WholeExtent: whole, Blocks: [3]int{5, 1, 1}, NumRanks: 1}, "5 blocks for 4 cells"},
		{"inactive axis", PartitionBuilder{WholeExtent: whole, Blocks: [3]int{1, 1, 2}, NumRanks: 1}, "degenerate axis"},
		{"zero blocks", PartitionBuilder{WholeExtent: whole, Blocks: [3]int{0, 1, 1}, NumRanks: 1}, "block count must be positive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.pb.BuildPartitions()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestValidateLayout(t *testing.T) {
	pb := &PartitionBuilder{WholeExtent: extent.New(0, 4, 0, 4, 0, 0), Blocks: [3]int{2, 1, 1}, NumRanks: 1}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	require.NoError(t, layout.ValidateLayout())

	// Widen the first block over the second
	layout.Partitions[0].Extent = extent.New(0, 3, 0, 4, 0, 0)
	err = layout.ValidateLayout()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "covered by 2 partitions")

	layout.Partitions[0].Extent = extent.New(0, 2, 0, 4, 0, 0)
	layout.Partitions[1].Rank = 3
	assert.ErrorContains(t, layout.ValidateLayout(), "rank 3 out of range")

	layout.Partitions[1].Rank = 0
	layout.MaxPerRank = 1
	assert.ErrorContains(t, layout.ValidateLayout(), "MaxPerRank")
}

func TestAddRefined(t *testing.T) {
	pb := &PartitionBuilder{WholeExtent: extent.New(0, 8, 0, 0, 0, 0), Blocks: [3]int{2, 1, 1}, NumRanks: 2}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)

	// Refined grids live in their own index space and skip the tiling check
	p := layout.AddRefined(1, extent.New(4, 12, 0, 0, 0, 0))
	assert.Equal(t, 2, p.ID)
	assert.Equal(t, 0, p.Rank)
	assert.Equal(t, 2, layout.MaxPerRank)
	assert.Equal(t, []int{0, 1, 0}, layout.GridToRank)
	require.NoError(t, layout.ValidateLayout())
}

func TestPartitionStatistics(t *testing.T) {
	pb := &PartitionBuilder{WholeExtent: extent.New(0, 10, 0, 10, 0, 0), Blocks: [3]int{2, 2, 1}, NumRanks: 3}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)

	// Two blocks per rank leaves the last rank idle
	stats := layout.PartitionStatistics()
	assert.Equal(t, 4, stats.NumPartitions)
	assert.Equal(t, 0, stats.MinPerRank)
	assert.Equal(t, 2, stats.MaxPerRank)
	assert.Equal(t, 0, stats.MinCells)
	assert.Equal(t, 50, stats.MaxCells)
	assert.InDelta(t, 100.0/3.0, stats.AvgCells, 1e-12)
	assert.InDelta(t, 1.5, stats.Imbalance, 1e-12)
}

func structuredFrom(t *testing.T, layout *PartitionLayout) *connectivity.Structured {
	t.Helper()
	s := connectivity.NewStructured(layout.WholeExtent)
	s.SetNumberOfGrids(len(layout.Partitions))
	for _, p := range layout.Partitions {
		require.NoError(t, s.RegisterGrid(p.ID, p.Extent))
	}
	require.NoError(t, s.ComputeNeighbors())
	return s
}

func TestCommunicationMetrics(t *testing.T) {
	pb := &PartitionBuilder{WholeExtent: extent.New(0, 10, 0, 10, 0, 0), Blocks: [3]int{2, 2, 1}, NumRanks: 2, Strategy: RoundRobin}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	s := structuredFrom(t, layout)

	require.NoError(t, ValidateCommunicationSymmetry(s))

	metrics := layout.CommunicationMetrics(s)
	require.Len(t, metrics, 2)
	for r, m := range metrics {
		assert.Equal(t, r, m.Rank)
		assert.Equal(t, 2, m.Grids)
		assert.Equal(t, 50, m.Cells)
		assert.Equal(t, 2, m.LocalLinks, "rank %d", r)
		assert.Equal(t, 4, m.RemoteLinks, "rank %d", r)
		assert.Equal(t, 1, m.NumNeighbor, "rank %d", r)
	}
}

// oneSided lists a neighbor the other grid never reports
type oneSided struct{}

func (oneSided) SetNumberOfGrids(int)            {}
func (oneSided) NumberOfGrids() int              { return 2 }
func (oneSided) ComputeNeighbors() error         { return nil }
func (oneSided) CreateGhostLayers(int) error     { return nil }
func (oneSided) GridExtent(int) extent.Extent    { return extent.Extent{} }
func (oneSided) GhostedExtent(int) extent.Extent { return extent.Extent{} }
func (o oneSided) NumberOfNeighbors(id int) int  { return len(o.Neighbors(id)) }
func (oneSided) Neighbors(id int) []connectivity.NeighborInfo {
	if id == 0 {
		return []connectivity.NeighborInfo{{ID: 1, Overlap: extent.New(4, 4, 0, 4, 0, 0)}}
	}
	return nil
}

func TestValidateCommunicationSymmetryFails(t *testing.T) {
	err := ValidateCommunicationSymmetry(oneSided{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grid 0 lists 1 as neighbor")
}

func TestParseStrategy(t *testing.T) {
	st, err := ParseStrategy("round-robin")
	require.NoError(t, err)
	assert.Equal(t, RoundRobin, st)
	_, err = ParseStrategy("metis")
	assert.Error(t, err)
	assert.Equal(t, "block", BlockPartition.String())
}
