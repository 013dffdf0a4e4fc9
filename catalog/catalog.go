// Package catalog persists neighbor graphs and exchange statistics of
// GhostGrid runs in SQLite.
package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	"github.com/notargets/GhostGrid/connectivity"
	"github.com/notargets/GhostGrid/extent"
	"github.com/notargets/GhostGrid/parallel"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Catalog is an open run database
type Catalog struct {
	*sql.DB
}

// NeighborRow is one directed neighbor link of a stored run
type NeighborRow struct {
	GridID     int
	NeighborID int
	Overlap    extent.Extent
}

// StatsRow is the exchange summary one rank stored for a run
type StatsRow struct {
	Rank int
	parallel.ExchangeStats
}

// Open opens or creates the catalog at path
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	// One writer; ranks share the handle
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create catalog schema: %w", err)
	}
	return &Catalog{db}, nil
}

// NewRun records a run and returns its ID
func (c *Catalog) NewRun(ctx context.Context, name string, numGrids int) (string, error) {
	runID := uuid.New().String()
	_, err := c.ExecContext(ctx,
		`INSERT INTO runs (run_id, name, num_grids) VALUES (?, ?, ?)`,
		runID, name, numGrids)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return runID, nil
}

// locality is implemented by connectivities that hold grids of other ranks
type locality interface {
	IsLocal(id int) bool
}

// SaveTopology stores the extent, ghosted extent and neighbor links of every
// grid conn owns, so each rank of a distributed run saves its own share.
// Grids without ghost layers store their registered extent as the ghosted one.
func (c *Catalog) SaveTopology(ctx context.Context, runID string, conn connectivity.GridConnectivity) error {
	tx, err := c.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin topology: %w", err)
	}
	defer tx.Rollback()

	loc, _ := conn.(locality)
	for id := 0; id < conn.NumberOfGrids(); id++ {
		if loc != nil && !loc.IsLocal(id) {
			continue
		}
		ghosted := conn.GhostedExtent(id)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO grids (run_id, grid_id, extent, ghosted_extent) VALUES (?, ?, ?, ?)`,
			runID, id, conn.GridExtent(id).String(), ghosted.String())
		if err != nil {
			return fmt.Errorf("insert grid %d: %w", id, err)
		}
		for _, nb := range conn.Neighbors(id) {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO neighbors (run_id, grid_id, neighbor_id, overlap) VALUES (?, ?, ?, ?)`,
				runID, id, nb.ID, nb.Overlap.String())
			if err != nil {
				return fmt.Errorf("insert neighbor %d->%d: %w", id, nb.ID, err)
			}
		}
	}
	return tx.Commit()
}

// SaveStats stores the exchange statistics of one rank
func (c *Catalog) SaveStats(ctx context.Context, runID string, rank int, st parallel.ExchangeStats) error {
	_, err := c.ExecContext(ctx, `
		INSERT INTO exchange_stats (run_id, rank, messages_sent, messages_received,
			bytes_sent, bytes_received, local_transfers)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, rank, st.MessagesSent, st.MessagesReceived,
		st.BytesSent, st.BytesReceived, st.LocalTransfers)
	if err != nil {
		return fmt.Errorf("insert stats for rank %d: %w", rank, err)
	}
	return nil
}

// Neighbors returns the links of a run ordered by grid then neighbor
func (c *Catalog) Neighbors(ctx context.Context, runID string) ([]NeighborRow, error) {
	rows, err := c.QueryContext(ctx, `
		SELECT grid_id, neighbor_id, overlap FROM neighbors
		WHERE run_id = ? ORDER BY grid_id, neighbor_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query neighbors: %w", err)
	}
	defer rows.Close()

	var out []NeighborRow
	for rows.Next() {
		var r NeighborRow
		var overlap string
		if err := rows.Scan(&r.GridID, &r.NeighborID, &overlap); err != nil {
			return nil, err
		}
		if r.Overlap, err = parseExtent(overlap); err != nil {
			return nil, fmt.Errorf("neighbor %d->%d: %w", r.GridID, r.NeighborID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GhostedExtents returns the stored ghosted extent of every grid of a run
func (c *Catalog) GhostedExtents(ctx context.Context, runID string) (map[int]extent.Extent, error) {
	rows, err := c.QueryContext(ctx,
		`SELECT grid_id, ghosted_extent FROM grids WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("query grids: %w", err)
	}
	defer rows.Close()

	out := make(map[int]extent.Extent)
	for rows.Next() {
		var id int
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		ext, err := parseExtent(raw)
		if err != nil {
			return nil, fmt.Errorf("grid %d: %w", id, err)
		}
		out[id] = ext
	}
	return out, rows.Err()
}

// Stats returns the per-rank statistics of a run ordered by rank
func (c *Catalog) Stats(ctx context.Context, runID string) ([]StatsRow, error) {
	rows, err := c.QueryContext(ctx, `
		SELECT rank, messages_sent, messages_received, bytes_sent, bytes_received, local_transfers
		FROM exchange_stats WHERE run_id = ? ORDER BY rank`, runID)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var out []StatsRow
	for rows.Next() {
		var r StatsRow
		if err := rows.Scan(&r.Rank, &r.MessagesSent, &r.MessagesReceived,
			&r.BytesSent, &r.BytesReceived, &r.LocalTransfers); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func parseExtent(s string) (extent.Extent, error) {
	var e extent.Extent
	if _, err := fmt.Sscanf(s, "[%d %d %d %d %d %d]", &e[0], &e[1], &e[2], &e[3], &e[4], &e[5]); err != nil {
		return e, fmt.Errorf("parse extent %q: %w", s, err)
	}
	return e, nil
}
