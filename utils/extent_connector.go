package utils

import (
	"fmt"

	"github.com/notargets/GhostGrid/extent"
)

// ExtentConnector manages pick and place indices for moving a region of
// structured data from one extent layout into another
type ExtentConnector struct {
	// Layouts
	Source extent.Extent // Layout addressed by PickIndices
	Target extent.Extent // Layout addressed by PlaceIndices
	Region extent.Extent // Requested indices to move

	// Pick/Place indices, PickIndices[n] moves to PlaceIndices[n]
	PickIndices  []int
	PlaceIndices []int
}

// NewExtentConnector builds the index lists for every point of region that
// lies in both source and target and passes keep. A nil keep accepts all.
func NewExtentConnector(source, target, region extent.Extent, keep func(i, j, k int) bool) *ExtentConnector {
	ec := &ExtentConnector{
		Source: source,
		Target: target,
		Region: region,
	}

	// Only walk the part of the region both layouts can address
	walk, ok := region.Intersect(source)
	if ok {
		walk, ok = walk.Intersect(target)
	}
	if !ok {
		return ec
	}

	walk.ForEach(func(i, j, k int) {
		if keep != nil && !keep(i, j, k) {
			return
		}
		ec.PickIndices = append(ec.PickIndices, source.NodeIndex(i, j, k))
		ec.PlaceIndices = append(ec.PlaceIndices, target.NodeIndex(i, j, k))
	})
	return ec
}

// Len returns the number of indices moved
func (ec *ExtentConnector) Len() int {
	return len(ec.PickIndices)
}

// Verify checks index validity and one-to-one placement
func (ec *ExtentConnector) Verify() error {
	// Verify 1: Correspondence - pick and place arrays have same length
	if len(ec.PickIndices) != len(ec.PlaceIndices) {
		return fmt.Errorf("length mismatch: pick=%d, place=%d", len(ec.PickIndices), len(ec.PlaceIndices))
	}

	// Verify 2: Local validity - all indices are within bounds
	nSource := ec.Source.NumberOfNodes()
	for _, idx := range ec.PickIndices {
		if idx < 0 || idx >= nSource {
			return fmt.Errorf("invalid pick index %d for source %v (max %d)", idx, ec.Source, nSource-1)
		}
	}
	nTarget := ec.Target.NumberOfNodes()
	for _, idx := range ec.PlaceIndices {
		if idx < 0 || idx >= nTarget {
			return fmt.Errorf("invalid place index %d for target %v (max %d)", idx, ec.Target, nTarget-1)
		}
	}

	// Verify 3: Conservation - no target slot is written twice
	seen := make(map[int]bool, len(ec.PlaceIndices))
	for _, idx := range ec.PlaceIndices {
		if seen[idx] {
			return fmt.Errorf("place index %d written more than once", idx)
		}
		seen[idx] = true
	}
	return nil
}
