package partitions

import (
	"fmt"

	"github.com/notargets/GhostGrid/extent"
)

// Partition is one block of a decomposed whole extent, owned by one rank
type Partition struct {
	// Unique identifier, also the grid ID registered with a connectivity
	ID int

	Extent extent.Extent
	Block  [3]int // Position in the block lattice
	Rank   int
	Level  int // Refinement level; the block lattice is level 0
}

// PartitionLayout manages the complete domain decomposition
type PartitionLayout struct {
	// All partitions, indexed by ID
	Partitions []Partition

	WholeExtent extent.Extent
	Blocks      [3]int
	NumRanks    int

	// Largest number of partitions on one rank
	MaxPerRank int

	// Partition to rank mapping: partition p lives on rank GridToRank[p]
	GridToRank []int
}

// PartitionStats summarizes load balance across ranks
type PartitionStats struct {
	NumPartitions int
	NumRanks      int
	MinPerRank    int
	MaxPerRank    int
	MinCells      int // Fewest cells on one rank
	MaxCells      int
	AvgCells      float64
	Imbalance     float64 // MaxCells / AvgCells
}

// Methods for PartitionLayout

// GetRank returns the rank owning partition id, or -1
func (pl *PartitionLayout) GetRank(id int) int {
	if id < 0 || id >= len(pl.GridToRank) {
		return -1
	}
	return pl.GridToRank[id]
}

// LocalPartitions returns the partitions owned by rank
func (pl *PartitionLayout) LocalPartitions(rank int) []Partition {
	var out []Partition
	for _, p := range pl.Partitions {
		if p.Rank == rank {
			out = append(out, p)
		}
	}
	return out
}

// AddRefined appends a refined partition at level, owned round-robin by ID
func (pl *PartitionLayout) AddRefined(level int, ext extent.Extent) Partition {
	id := len(pl.Partitions)
	p := Partition{ID: id, Extent: ext, Rank: id % pl.NumRanks, Level: level}
	pl.Partitions = append(pl.Partitions, p)
	pl.GridToRank = append(pl.GridToRank, p.Rank)

	n := 0
	for _, r := range pl.GridToRank {
		if r == p.Rank {
			n++
		}
	}
	pl.MaxPerRank = max(pl.MaxPerRank, n)
	return p
}

// ValidateLayout checks partition consistency: every cell of the whole
// extent belongs to exactly one level-0 partition and the rank bookkeeping
// agrees
func (pl *PartitionLayout) ValidateLayout() error {
	if len(pl.GridToRank) != len(pl.Partitions) {
		return fmt.Errorf("%d rank entries for %d partitions", len(pl.GridToRank), len(pl.Partitions))
	}

	perRank := make([]int, pl.NumRanks)
	for id, p := range pl.Partitions {
		if p.ID != id {
			return fmt.Errorf("partition at index %d has ID %d", id, p.ID)
		}
		if p.Rank < 0 || p.Rank >= pl.NumRanks {
			return fmt.Errorf("partition %d: rank %d out of range [0,%d)", id, p.Rank, pl.NumRanks)
		}
		if pl.GridToRank[id] != p.Rank {
			return fmt.Errorf("partition %d: rank %d != GridToRank %d", id, p.Rank, pl.GridToRank[id])
		}
		if p.Level == 0 && !pl.WholeExtent.ContainsExtent(p.Extent) {
			return fmt.Errorf("partition %d: extent %v outside whole extent %v", id, p.Extent, pl.WholeExtent)
		}
		perRank[p.Rank]++
	}

	actualMax := 0
	for _, n := range perRank {
		actualMax = max(actualMax, n)
	}
	if actualMax != pl.MaxPerRank {
		return fmt.Errorf("computed MaxPerRank %d != stored MaxPerRank %d", actualMax, pl.MaxPerRank)
	}

	// Blocks share boundary nodes, so cells must tile the whole extent
	cells := pl.WholeExtent.CellExtent()
	hits := make([]int, cells.NumberOfNodes())
	for _, p := range pl.Partitions {
		if p.Level != 0 {
			continue
		}
		p.Extent.CellExtent().ForEach(func(i, j, k int) {
			hits[cells.NodeIndex(i, j, k)]++
		})
	}
	for n, h := range hits {
		if h != 1 {
			return fmt.Errorf("cell %d covered by %d partitions", n, h)
		}
	}
	return nil
}

// PartitionStatistics computes load balance metrics
func (pl *PartitionLayout) PartitionStatistics() PartitionStats {
	grids := make([]int, pl.NumRanks)
	cells := make([]int, pl.NumRanks)
	total := 0
	for _, p := range pl.Partitions {
		grids[p.Rank]++
		cells[p.Rank] += p.Extent.NumberOfCells()
		total += p.Extent.NumberOfCells()
	}

	stats := PartitionStats{
		NumPartitions: len(pl.Partitions),
		NumRanks:      pl.NumRanks,
		MinPerRank:    grids[0],
		MaxPerRank:    grids[0],
		MinCells:      cells[0],
		MaxCells:      cells[0],
		AvgCells:      float64(total) / float64(pl.NumRanks),
	}
	for r := range grids {
		stats.MinPerRank = min(stats.MinPerRank, grids[r])
		stats.MaxPerRank = max(stats.MaxPerRank, grids[r])
		stats.MinCells = min(stats.MinCells, cells[r])
		stats.MaxCells = max(stats.MaxCells, cells[r])
	}
	if stats.AvgCells > 0 {
		stats.Imbalance = float64(stats.MaxCells) / stats.AvgCells
	}
	return stats
}
