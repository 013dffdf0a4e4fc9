package partitions

import (
	"fmt"
	"math"

	"github.com/notargets/GhostGrid/connectivity"
	"github.com/notargets/GhostGrid/extent"
)

// PartitionBuilder splits a whole extent into a lattice of blocks that share
// their boundary nodes and assigns the blocks to ranks
type PartitionBuilder struct {
	WholeExtent extent.Extent
	Blocks      [3]int // Blocks along each axis, 1 on inactive axes
	NumRanks    int
	Strategy    PartitionStrategy
}

// PartitionStrategy defines how blocks are assigned to ranks
type PartitionStrategy int

const (
	BlockPartition PartitionStrategy = iota // Consecutive IDs per rank
	RoundRobin                              // Distribute cyclically
)

func (s PartitionStrategy) String() string {
	switch s {
	case BlockPartition:
		return "block"
	case RoundRobin:
		return "round-robin"
	}
	return fmt.Sprintf("PartitionStrategy(%d)", int(s))
}

// ParseStrategy maps a configuration name to its strategy
func ParseStrategy(s string) (PartitionStrategy, error) {
	for _, st := range []PartitionStrategy{BlockPartition, RoundRobin} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown partition strategy %q", s)
}

// BuildPartitions creates a partition layout
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.NumRanks < 1 {
		return nil, fmt.Errorf("number of ranks must be positive, got %d", pb.NumRanks)
	}
	if pb.WholeExtent.IsEmpty() {
		return nil, fmt.Errorf("empty whole extent %v", pb.WholeExtent)
	}

	// Split each axis into node ranges sharing their end points
	var ranges [3][][2]int
	for d := 0; d < 3; d++ {
		r, err := splitAxis(pb.WholeExtent.Axis(d), pb.Blocks[d])
		if err != nil {
			return nil, fmt.Errorf("axis %d: %w", d, err)
		}
		ranges[d] = r
	}

	numPartitions := pb.Blocks[0] * pb.Blocks[1] * pb.Blocks[2]
	gridToRank := pb.assignRanks(numPartitions)

	partitions := make([]Partition, 0, numPartitions)
	for bk := 0; bk < pb.Blocks[2]; bk++ {
		for bj := 0; bj < pb.Blocks[1]; bj++ {
			for bi := 0; bi < pb.Blocks[0]; bi++ {
				id := len(partitions)
				ext := extent.New(
					ranges[0][bi][0], ranges[0][bi][1],
					ranges[1][bj][0], ranges[1][bj][1],
					ranges[2][bk][0], ranges[2][bk][1])
				partitions = append(partitions, Partition{
					ID:     id,
					Extent: ext,
					Block:  [3]int{bi, bj, bk},
					Rank:   gridToRank[id],
				})
			}
		}
	}

	layout := &PartitionLayout{
		Partitions:  partitions,
		WholeExtent: pb.WholeExtent,
		Blocks:      pb.Blocks,
		NumRanks:    pb.NumRanks,
		GridToRank:  gridToRank,
	}
	perRank := make([]int, pb.NumRanks)
	for _, r := range gridToRank {
		perRank[r]++
		layout.MaxPerRank = max(layout.MaxPerRank, perRank[r])
	}

	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	return layout, nil
}

// splitAxis divides the node range r into n ranges of near-equal cell count
func splitAxis(r [2]int, n int) ([][2]int, error) {
	if n < 1 {
		return nil, fmt.Errorf("block count must be positive, got %d", n)
	}
	cells := r[1] - r[0]
	if cells == 0 {
		if n != 1 {
			return nil, fmt.Errorf("%d blocks along a degenerate axis", n)
		}
		return [][2]int{r}, nil
	}
	if n > cells {
		return nil, fmt.Errorf("%d blocks for %d cells", n, cells)
	}

	out := make([][2]int, n)
	lo := r[0]
	for b := 0; b < n; b++ {
		// Spread the remainder over the first blocks
		width := cells / n
		if b < cells%n {
			width++
		}
		out[b] = [2]int{lo, lo + width}
		lo += width
	}
	return out, nil
}

// assignRanks maps partitions to ranks
func (pb *PartitionBuilder) assignRanks(numPartitions int) []int {
	gridToRank := make([]int, numPartitions)
	switch pb.Strategy {
	case RoundRobin:
		for i := range gridToRank {
			gridToRank[i] = i % pb.NumRanks
		}
	default:
		perRank := int(math.Ceil(float64(numPartitions) / float64(pb.NumRanks)))
		for i := range gridToRank {
			gridToRank[i] = min(i/perRank, pb.NumRanks-1)
		}
	}
	return gridToRank
}

// levels is implemented by connectivities whose grids sit on AMR levels
type levels interface {
	GridLevel(id int) int
}

// ValidateCommunicationSymmetry verifies that if grid A lists B as a
// neighbor, then B lists A. Grids on the same level must also report the
// same overlap; across levels each side reports it at the other's level.
func ValidateCommunicationSymmetry(conn connectivity.GridConnectivity) error {
	lv, _ := conn.(levels)
	sameLevel := func(a, b int) bool {
		return lv == nil || lv.GridLevel(a) == lv.GridLevel(b)
	}

	type link struct{ from, to int }
	overlaps := make(map[link]extent.Extent)
	for id := 0; id < conn.NumberOfGrids(); id++ {
		for _, nb := range conn.Neighbors(id) {
			overlaps[link{id, nb.ID}] = nb.Overlap
		}
	}

	for l, ov := range overlaps {
		back, ok := overlaps[link{l.to, l.from}]
		if !ok {
			return fmt.Errorf("grid %d lists %d as neighbor, but %d does not list %d", l.from, l.to, l.to, l.from)
		}
		if back != ov && sameLevel(l.from, l.to) {
			return fmt.Errorf("overlap mismatch: grid %d sees %v with %d, but %d sees %v", l.from, ov, l.to, l.to, back)
		}
	}
	return nil
}

// RankMetrics tracks the ghost traffic one rank takes part in
type RankMetrics struct {
	Rank        int
	Grids       int
	Cells       int
	LocalLinks  int // Directed neighbor links between grids on this rank
	RemoteLinks int // Directed links from this rank's grids to other ranks
	NumNeighbor int // Distinct ranks this rank exchanges with
}

// CommunicationMetrics counts local and remote neighbor links per rank
func (pl *PartitionLayout) CommunicationMetrics(conn connectivity.GridConnectivity) []RankMetrics {
	out := make([]RankMetrics, pl.NumRanks)
	peers := make([]map[int]bool, pl.NumRanks)
	for r := range out {
		out[r].Rank = r
		peers[r] = make(map[int]bool)
	}
	for _, p := range pl.Partitions {
		m := &out[p.Rank]
		m.Grids++
		m.Cells += p.Extent.NumberOfCells()
		for _, nb := range conn.Neighbors(p.ID) {
			other := pl.GetRank(nb.ID)
			if other == p.Rank {
				m.LocalLinks++
				continue
			}
			m.RemoteLinks++
			peers[p.Rank][other] = true
		}
	}
	for r := range out {
		out[r].NumNeighbor = len(peers[r])
	}
	return out
}
