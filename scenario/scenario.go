// Package scenario builds synthetic decomposed domains from a configuration
// and runs their ghost exchange across the ranks of an in-process world.
package scenario

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/notargets/GhostGrid/amr"
	"github.com/notargets/GhostGrid/catalog"
	"github.com/notargets/GhostGrid/comm"
	"github.com/notargets/GhostGrid/config"
	"github.com/notargets/GhostGrid/connectivity"
	"github.com/notargets/GhostGrid/extent"
	"github.com/notargets/GhostGrid/field"
	"github.com/notargets/GhostGrid/ghost"
	"github.com/notargets/GhostGrid/logging"
	"github.com/notargets/GhostGrid/parallel"
	"github.com/notargets/GhostGrid/partitions"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// GridReport is what one rank learned about one of its grids
type GridReport struct {
	ID        int
	Rank      int
	Level     int
	Extent    extent.Extent
	Ghosted   extent.Extent
	Neighbors []connectivity.NeighborInfo

	Relationships []amr.Relationship // AMR runs only, one per neighbor
	GhostCells    int                // Cells flagged ghost in the ghosted extent
	CellSum       float64            // Sum of the first cell array over the ghosted extent
}

// Result collects a run from every rank
type Result struct {
	RunID   string // Empty without a catalog
	Layout  *partitions.PartitionLayout
	Grids   []GridReport // Ordered by grid ID
	Stats   []parallel.ExchangeStats
	Metrics []partitions.RankMetrics
}

// Total sums the exchange statistics of every rank
func (r *Result) Total() parallel.ExchangeStats {
	var t parallel.ExchangeStats
	for _, s := range r.Stats {
		t.Add(s)
	}
	return t
}

// Option configures a run
type Option func(*runner)

// WithLogger routes run diagnostics to l
func WithLogger(l *log.Logger) Option {
	return func(r *runner) { r.logger = l }
}

// WithCatalog stores the run's topology and statistics in c
func WithCatalog(c *catalog.Catalog) Option {
	return func(r *runner) { r.catalog = c }
}

type runner struct {
	cfg     config.Scenario
	logger  *log.Logger
	catalog *catalog.Catalog

	layout *partitions.PartitionLayout
	runID  string

	mu  sync.Mutex
	res *Result
}

func newRunner(cfg config.Scenario, opts []Option) (*runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	r := &runner{cfg: cfg, logger: logging.Discard()}
	for _, opt := range opts {
		opt(r)
	}
	layout, err := cfg.Partitions()
	if err != nil {
		return nil, err
	}
	r.layout = layout
	return r, nil
}

func (r *runner) begin(ctx context.Context, name string) error {
	r.res = &Result{
		Layout: r.layout,
		Stats:  make([]parallel.ExchangeStats, r.cfg.Ranks),
	}
	if r.catalog == nil {
		return nil
	}
	runID, err := r.catalog.NewRun(ctx, name, len(r.layout.Partitions))
	if err != nil {
		return err
	}
	r.runID = runID
	r.res.RunID = runID
	return nil
}

// RunStructured decomposes the whole extent into the configured blocks and
// runs one ghost exchange on every rank
func RunStructured(ctx context.Context, cfg config.Scenario, opts ...Option) (*Result, error) {
	r, err := newRunner(cfg, opts)
	if err != nil {
		return nil, err
	}
	if err := r.begin(ctx, "structured"); err != nil {
		return nil, err
	}
	progress := logging.NewProgress(r.logger)

	err = comm.NewWorld(cfg.Ranks).Run(ctx, func(ctx context.Context, cm comm.Communicator) error {
		s := connectivity.NewStructured(cfg.WholeExtent,
			connectivity.WithLogger(logging.ForRank(r.logger, cm.Rank())))
		s.SetNumberOfGrids(len(r.layout.Partitions))
		for _, p := range r.layout.LocalPartitions(cm.Rank()) {
			node, cell := Data(cfg.Fields, p.Extent, 0)
			err := s.RegisterGrid(p.ID, p.Extent,
				connectivity.WithNodeData(node),
				connectivity.WithCellData(cell),
				connectivity.WithPoints(Points(p.Extent, 1)))
			if err != nil {
				return err
			}
		}
		return r.exchange(ctx, parallel.New(s, cm, parallel.WithLogger(r.logger)), func(id int) GridReport {
			return GridReport{
				GhostCells: ghost.Count(s.GhostedCellGhosts(id), ghost.Ghost),
				CellSum:    firstSum(s.GhostedCellData(id)),
			}
		})
	})
	if err != nil {
		return nil, err
	}
	progress.Done(fmt.Sprintf("structured run over %d grids on %d ranks", len(r.layout.Partitions), cfg.Ranks))
	return r.finish(), nil
}

// RunAMR adds the configured refined patches to the level-0 blocks and runs
// one ghost exchange of cell data on every rank
func RunAMR(ctx context.Context, cfg config.Scenario, opts ...Option) (*Result, error) {
	r, err := newRunner(cfg, opts)
	if err != nil {
		return nil, err
	}
	for _, p := range cfg.AMR.Patches {
		r.layout.AddRefined(p.Level, p.Bounds())
	}
	if err := r.begin(ctx, "amr"); err != nil {
		return nil, err
	}
	progress := logging.NewProgress(r.logger)

	var cellFields []config.Field
	for _, f := range cfg.Fields {
		if f.Centering == "cell" {
			cellFields = append(cellFields, f)
		}
	}

	err = comm.NewWorld(cfg.Ranks).Run(ctx, func(ctx context.Context, cm comm.Communicator) error {
		c := amr.New(cfg.AMR.Levels, cfg.AMR.Ratio,
			amr.WithLogger(logging.ForRank(r.logger, cm.Rank())))
		c.SetNumberOfGrids(len(r.layout.Partitions))
		for _, p := range r.layout.LocalPartitions(cm.Rank()) {
			_, cell := Data(cellFields, p.Extent, p.Level)
			if err := c.RegisterGrid(p.ID, p.Level, p.Extent, connectivity.WithCellData(cell)); err != nil {
				return err
			}
		}
		return r.exchange(ctx, parallel.New(c, cm, parallel.WithLogger(r.logger)), func(id int) GridReport {
			rep := GridReport{
				GhostCells: ghost.Count(c.GhostedCellGhosts(id), ghost.Ghost),
				CellSum:    firstSum(c.GhostedCellData(id)),
			}
			for k := 0; k < c.NumberOfNeighbors(id); k++ {
				rep.Relationships = append(rep.Relationships, c.Neighbor(id, k).Relationship)
			}
			return rep
		})
	})
	if err != nil {
		return nil, err
	}
	progress.Done(fmt.Sprintf("amr run over %d grids on %d ranks", len(r.layout.Partitions), cfg.Ranks))
	return r.finish(), nil
}

// exchange runs the distributed protocol on one rank and records its share
// of the result
func (r *runner) exchange(ctx context.Context, pc *parallel.Connectivity, extra func(id int) GridReport) error {
	if err := pc.ComputeNeighborsContext(ctx); err != nil {
		return err
	}
	stats, err := pc.CreateGhostLayersContext(ctx, r.cfg.GhostLayers)
	if err != nil {
		return err
	}

	if r.catalog != nil {
		if err := r.catalog.SaveTopology(ctx, r.runID, pc); err != nil {
			return err
		}
		if err := r.catalog.SaveStats(ctx, r.runID, pc.Rank(), stats); err != nil {
			return err
		}
	}

	var reports []GridReport
	for id := 0; id < pc.NumberOfGrids(); id++ {
		if !pc.IsLocal(id) {
			continue
		}
		rep := extra(id)
		rep.ID = id
		rep.Rank = pc.Rank()
		rep.Level = pc.GridLevel(id)
		rep.Extent = pc.GridExtent(id)
		rep.Ghosted = pc.GhostedExtent(id)
		rep.Neighbors = pc.Neighbors(id)
		reports = append(reports, rep)
	}

	// Every rank holds the full neighbor graph
	var metrics []partitions.RankMetrics
	if pc.Rank() == 0 {
		if err := partitions.ValidateCommunicationSymmetry(pc); err != nil {
			return err
		}
		metrics = r.layout.CommunicationMetrics(pc)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.res.Stats[pc.Rank()] = stats
	r.res.Grids = append(r.res.Grids, reports...)
	if metrics != nil {
		r.res.Metrics = metrics
	}
	return nil
}

func (r *runner) finish() *Result {
	sort.Slice(r.res.Grids, func(a, b int) bool { return r.res.Grids[a].ID < r.res.Grids[b].ID })
	return r.res
}

// Value is the synthetic value of component comp at index (i,j,k) of level
func Value(level, comp, i, j, k int) float64 {
	return float64(i+100*j+10000*k) + 1e6*float64(level) + 0.25*float64(comp)
}

// Data builds the node and cell arrays of fields over ext
func Data(fields []config.Field, ext extent.Extent, level int) (node, cell *field.Data) {
	node, cell = field.NewData(), field.NewData()
	for _, f := range fields {
		// Validated by config
		dt, _ := field.ParseDataType(f.Type)
		region, dst := ext, node
		if f.Centering == "cell" {
			region, dst = ext.CellExtent(), cell
		}
		v := field.MakeValues(dt, region.NumberOfNodes()*f.Components)
		n := 0
		region.ForEach(func(i, j, k int) {
			for c := 0; c < f.Components; c++ {
				x := Value(level, c, i, j, k)
				if dt == field.Uint8 {
					x = math.Mod(x, 256)
				}
				v.Set(n, x)
				n++
			}
		})
		dst.Add(field.NewArray(f.Name, f.Components, v))
	}
	return node, cell
}

// Points places the nodes of ext on a uniform lattice of the given spacing
func Points(ext extent.Extent, spacing float64) *mat.Dense {
	pts := mat.NewDense(ext.NumberOfNodes(), 3, nil)
	n := 0
	ext.ForEach(func(i, j, k int) {
		pts.SetRow(n, []float64{spacing * float64(i), spacing * float64(j), spacing * float64(k)})
		n++
	})
	return pts
}

func firstSum(fd *field.Data) float64 {
	if fd == nil || fd.Len() == 0 {
		return 0
	}
	a := fd.Arrays()[0]
	vals := make([]float64, a.Values.Len())
	for i := range vals {
		vals[i] = a.Values.At(i)
	}
	return floats.Sum(vals)
}
