package scenario

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/notargets/GhostGrid/amr"
	"github.com/notargets/GhostGrid/catalog"
	"github.com/notargets/GhostGrid/config"
	"github.com/notargets/GhostGrid/extent"
	"github.com/notargets/GhostGrid/field"
	"github.com/notargets/GhostGrid/partitions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ignoreRank = cmpopts.IgnoreFields(GridReport{}, "Rank")

func TestRunStructuredDefault(t *testing.T) {
	ctx := context.Background()
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer cat.Close()

	res, err := RunStructured(ctx, config.Default(), WithCatalog(cat))
	require.NoError(t, err)
	require.Len(t, res.Grids, 4)

	for id, g := range res.Grids {
		assert.Equal(t, id, g.ID)
		assert.Equal(t, res.Layout.GetRank(id), g.Rank)
		assert.Len(t, g.Neighbors, 3, "grid %d", id)
		assert.Positive(t, g.GhostCells, "grid %d", id)
	}
	assert.Equal(t, extent.New(0, 9, 0, 9, 0, 0), res.Grids[0].Ghosted)
	assert.Equal(t, extent.New(7, 16, 7, 16, 0, 0), res.Grids[3].Ghosted)

	total := res.Total()
	assert.Equal(t, 12, total.MessagesSent+total.LocalTransfers)
	assert.Equal(t, total.MessagesSent, total.MessagesReceived)

	// Block assignment keeps each row of blocks on one rank
	require.Len(t, res.Metrics, 2)
	for _, m := range res.Metrics {
		assert.Equal(t, 2, m.LocalLinks)
		assert.Equal(t, 4, m.RemoteLinks)
	}

	rows, err := cat.Neighbors(ctx, res.RunID)
	require.NoError(t, err)
	assert.Len(t, rows, 12)
	stats, err := cat.Stats(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, res.Stats[1], stats[1].ExchangeStats)
}

func TestRunStructuredIndependentOfRanks(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.WholeExtent = extent.New(0, 12, 0, 9, 0, 0)
	cfg.Blocks = [3]int{3, 2, 1}
	cfg.GhostLayers = 2
	cfg.Fields = append(cfg.Fields, config.Field{Name: "flag", Centering: "cell", Type: "int32", Components: 2})

	cfg.Ranks = 1
	serial, err := RunStructured(ctx, cfg)
	require.NoError(t, err)
	assert.Zero(t, serial.Total().MessagesSent)

	for _, ranks := range []int{2, 3, 6} {
		cfg.Ranks = ranks
		cfg.Strategy = partitions.RoundRobin
		got, err := RunStructured(ctx, cfg)
		require.NoError(t, err)

		if diff := cmp.Diff(serial.Grids, got.Grids, ignoreRank); diff != "" {
			t.Errorf("%d ranks differ from one rank (-serial +distributed):\n%s", ranks, diff)
		}
	}
}

func amrScenario() config.Scenario {
	cfg := config.Default()
	cfg.AMR = config.AMR{
		Levels:  2,
		Ratio:   2,
		Patches: []config.Patch{{Level: 1, Extent: []int{8, 16, 8, 16, 0, 0}}},
	}
	return cfg
}

func TestRunAMR(t *testing.T) {
	ctx := context.Background()
	res, err := RunAMR(ctx, amrScenario())
	require.NoError(t, err)
	require.Len(t, res.Grids, 5)

	patch := res.Grids[4]
	assert.Equal(t, 1, patch.Level)
	assert.Equal(t, 0, patch.Rank)
	assert.Equal(t, []amr.Relationship{
		amr.Parent,
		amr.FineToCoarseSibling,
		amr.FineToCoarseSibling,
		amr.Indeterminate,
	}, patch.Relationships)
	assert.Contains(t, res.Grids[0].Relationships, amr.Child)

	cfg := amrScenario()
	cfg.Ranks = 1
	serial, err := RunAMR(ctx, cfg)
	require.NoError(t, err)
	if diff := cmp.Diff(serial.Grids, res.Grids, ignoreRank); diff != "" {
		t.Errorf("two ranks differ from one rank (-serial +distributed):\n%s", diff)
	}
}

func TestRunRejectsInvalidScenario(t *testing.T) {
	cfg := config.Default()
	cfg.Ranks = 0
	_, err := RunStructured(context.Background(), cfg)
	assert.ErrorContains(t, err, "invalid scenario")

	cfg = config.Default()
	cfg.Blocks = [3]int{40, 1, 1}
	_, err = RunAMR(context.Background(), cfg)
	assert.ErrorContains(t, err, "40 blocks for 16 cells")
}

func TestData(t *testing.T) {
	fields := []config.Field{
		{Name: "U", Centering: "node", Type: "float64", Components: 1},
		{Name: "m", Centering: "cell", Type: "uint8", Components: 3},
	}
	node, cell := Data(fields, extent.New(0, 2, 0, 1, 0, 0), 1)

	u := node.Get("U")
	require.NotNil(t, u)
	assert.Equal(t, 6, u.NumberOfTuples())
	assert.Equal(t, []float64{Value(1, 0, 2, 1, 0)}, u.Tuple(5))

	m := cell.Get("m")
	require.NotNil(t, m)
	assert.Equal(t, field.Uint8, m.DataType())
	assert.Equal(t, 2, m.NumberOfTuples())
	assert.Nil(t, node.Get("m"))

	pts := Points(extent.New(0, 1, 0, 1, 0, 0), 0.5)
	assert.Equal(t, []float64{0.5, 0.5, 0}, pts.RawRowView(3))
}
