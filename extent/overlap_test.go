package extent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntervalOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b [2]int
		kind Overlap
		want [2]int
	}{
		{"identical", [2]int{0, 5}, [2]int{0, 5}, EdgeOverlap, [2]int{0, 5}},
		{"touch high", [2]int{0, 5}, [2]int{5, 10}, NodeOverlap, [2]int{5, 5}},
		{"touch low", [2]int{5, 10}, [2]int{0, 5}, NodeOverlap, [2]int{5, 5}},
		{"disjoint", [2]int{0, 4}, [2]int{5, 9}, NoOverlap, [2]int{}},
		{"shifted", [2]int{0, 5}, [2]int{3, 8}, PartialOverlap, [2]int{3, 5}},
		{"short inside long", [2]int{2, 4}, [2]int{0, 10}, PartialOverlap, [2]int{2, 4}},
		{"long contains short", [2]int{0, 10}, [2]int{2, 4}, PartialOverlap, [2]int{2, 4}},
		{"short hangs off high end", [2]int{8, 12}, [2]int{0, 10}, PartialOverlap, [2]int{8, 10}},
		{"short hangs off low end", [2]int{-2, 1}, [2]int{0, 10}, PartialOverlap, [2]int{0, 1}},
		{"short touches long", [2]int{10, 12}, [2]int{0, 10}, NodeOverlap, [2]int{10, 10}},
		{"short misses long", [2]int{11, 12}, [2]int{0, 10}, NoOverlap, [2]int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, r := IntervalOverlap(tt.a, tt.b)
			assert.Equal(t, tt.kind, kind)
			if kind != NoOverlap {
				assert.Equal(t, tt.want, r)
			}
		})
	}
}

func TestIntervalOverlapSymmetric(t *testing.T) {
	ranges := [][2]int{
		{0, 5}, {5, 10}, {3, 8}, {0, 10}, {2, 4}, {8, 12}, {-3, 0}, {11, 11}, {4, 6},
	}
	for _, a := range ranges {
		for _, b := range ranges {
			k1, r1 := IntervalOverlap(a, b)
			k2, r2 := IntervalOverlap(b, a)
			if k1 != k2 || (k1 != NoOverlap && r1 != r2) {
				t.Errorf("overlap(%v,%v) = %v %v but overlap(%v,%v) = %v %v",
					a, b, k1, r1, b, a, k2, r2)
			}
		}
	}
}

func TestDetermineOrientation(t *testing.T) {
	tests := []struct {
		name   string
		a, b   [2]int
		ab, ba Orientation
	}{
		{"node high", [2]int{0, 5}, [2]int{5, 10}, Hi, Lo},
		{"identical", [2]int{0, 5}, [2]int{0, 5}, OneToOne, OneToOne},
		{"subset both", [2]int{2, 4}, [2]int{0, 10}, SubsetBoth, Superset},
		{"subset hi", [2]int{0, 4}, [2]int{0, 10}, SubsetHi, Superset},
		{"subset lo", [2]int{6, 10}, [2]int{0, 10}, SubsetLo, Superset},
		{"partial", [2]int{0, 5}, [2]int{3, 8}, Hi, Lo},
		{"partial unequal", [2]int{0, 5}, [2]int{3, 12}, Hi, Lo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ov := IntervalOverlap(tt.a, tt.b)
			ab := DetermineOrientation(tt.a, tt.b, ov)
			ba := DetermineOrientation(tt.b, tt.a, ov)
			assert.Equal(t, tt.ab, ab)
			assert.Equal(t, tt.ba, ba)
			assert.True(t, Complementary(ab, ba), "%v and %v should be complementary", ab, ba)
		})
	}
}

func TestOrientationCodes(t *testing.T) {
	// Codes are part of the wire-visible dump and must not drift
	assert.Equal(t, -2, int(SubsetLo))
	assert.Equal(t, -1, int(Lo))
	assert.Equal(t, 0, int(OneToOne))
	assert.Equal(t, 1, int(Hi))
	assert.Equal(t, 2, int(SubsetHi))
	assert.Equal(t, 3, int(SubsetBoth))
	assert.Equal(t, 4, int(Superset))
	assert.Equal(t, 5, int(Undefined))
	assert.Equal(t, "SUBSET_BOTH", SubsetBoth.String())
}
