// Package config loads GhostGrid scenarios from TOML. Keys missing from a
// file keep their defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/notargets/GhostGrid/extent"
	"github.com/notargets/GhostGrid/field"
	"github.com/notargets/GhostGrid/partitions"
)

// Field describes one synthetic array registered on every grid
type Field struct {
	Name       string `toml:"name"`
	Centering  string `toml:"centering"` // "node" or "cell"
	Type       string `toml:"type"`
	Components int    `toml:"components"`
}

// Patch is a refined region of an AMR scenario, in the index space of its
// level
type Patch struct {
	Level  int   `toml:"level"`
	Extent []int `toml:"extent"`
}

// Bounds returns the patch extent, zero-padded when short
func (p Patch) Bounds() extent.Extent {
	var e extent.Extent
	copy(e[:], p.Extent)
	return e
}

// AMR holds the refinement hierarchy of a scenario
type AMR struct {
	Levels  int     `toml:"levels"`
	Ratio   int     `toml:"ratio"`
	Patches []Patch `toml:"patches"`
}

// Scenario is a complete decomposed domain with its exchange parameters
type Scenario struct {
	WholeExtent extent.Extent
	Blocks      [3]int
	GhostLayers int
	Ranks       int
	Strategy    partitions.PartitionStrategy
	Fields      []Field
	AMR         AMR
	CatalogPath string
}

// Default returns a 2-D scenario of four blocks on two ranks
func Default() Scenario {
	return Scenario{
		WholeExtent: extent.New(0, 16, 0, 16, 0, 0),
		Blocks:      [3]int{2, 2, 1},
		GhostLayers: 1,
		Ranks:       2,
		Strategy:    partitions.BlockPartition,
		Fields: []Field{
			{Name: "U", Centering: "node", Type: "float64", Components: 1},
			{Name: "P", Centering: "cell", Type: "float64", Components: 1},
		},
		AMR: AMR{Levels: 1, Ratio: 2},
	}
}

type fileConfig struct {
	Grid struct {
		WholeExtent []int `toml:"whole_extent"`
		Blocks      []int `toml:"blocks"`
	} `toml:"grid"`
	Exchange struct {
		GhostLayers int    `toml:"ghost_layers"`
		Ranks       int    `toml:"ranks"`
		Strategy    string `toml:"strategy"`
	} `toml:"exchange"`
	Fields  []Field `toml:"fields"`
	AMR     AMR     `toml:"amr"`
	Catalog struct {
		Path string `toml:"path"`
	} `toml:"catalog"`
}

// Load reads path over the defaults and validates the result
func Load(path string) (Scenario, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Scenario{}, fmt.Errorf("load scenario: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Scenario{}, fmt.Errorf("load scenario: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("grid", "whole_extent") {
		if len(raw.Grid.WholeExtent) != 6 {
			return Scenario{}, fmt.Errorf("load scenario: whole_extent needs 6 bounds, got %d", len(raw.Grid.WholeExtent))
		}
		copy(cfg.WholeExtent[:], raw.Grid.WholeExtent)
	}
	if meta.IsDefined("grid", "blocks") {
		if len(raw.Grid.Blocks) != 3 {
			return Scenario{}, fmt.Errorf("load scenario: blocks needs 3 counts, got %d", len(raw.Grid.Blocks))
		}
		cfg.Blocks = [3]int(raw.Grid.Blocks)
	}
	if meta.IsDefined("exchange", "ghost_layers") {
		cfg.GhostLayers = raw.Exchange.GhostLayers
	}
	if meta.IsDefined("exchange", "ranks") {
		cfg.Ranks = raw.Exchange.Ranks
	}
	if meta.IsDefined("exchange", "strategy") {
		st, err := partitions.ParseStrategy(strings.TrimSpace(raw.Exchange.Strategy))
		if err != nil {
			return Scenario{}, fmt.Errorf("load scenario: %w", err)
		}
		cfg.Strategy = st
	}
	if meta.IsDefined("fields") {
		cfg.Fields = raw.Fields
	}
	if meta.IsDefined("amr", "levels") {
		cfg.AMR.Levels = raw.AMR.Levels
	}
	if meta.IsDefined("amr", "ratio") {
		cfg.AMR.Ratio = raw.AMR.Ratio
	}
	if meta.IsDefined("amr", "patches") {
		cfg.AMR.Patches = raw.AMR.Patches
	}
	if meta.IsDefined("catalog", "path") {
		cfg.CatalogPath = strings.TrimSpace(raw.Catalog.Path)
	}

	if err := cfg.Validate(); err != nil {
		return Scenario{}, fmt.Errorf("load scenario: %w", err)
	}
	return cfg, nil
}

// Validate checks the scenario for values no run can use
func (s Scenario) Validate() error {
	if s.WholeExtent.IsEmpty() {
		return fmt.Errorf("empty whole extent %v", s.WholeExtent)
	}
	for d, b := range s.Blocks {
		if b < 1 {
			return fmt.Errorf("blocks along axis %d must be positive, got %d", d, b)
		}
	}
	if s.GhostLayers < 0 {
		return fmt.Errorf("ghost layers must not be negative, got %d", s.GhostLayers)
	}
	if s.Ranks < 1 {
		return fmt.Errorf("ranks must be positive, got %d", s.Ranks)
	}

	seen := make(map[string]bool)
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("field with empty name")
		}
		key := f.Centering + "/" + f.Name
		if seen[key] {
			return fmt.Errorf("duplicate %s field %q", f.Centering, f.Name)
		}
		seen[key] = true
		if f.Centering != "node" && f.Centering != "cell" {
			return fmt.Errorf("field %q: centering %q is neither node nor cell", f.Name, f.Centering)
		}
		if _, err := field.ParseDataType(f.Type); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
		if f.Components < 1 {
			return fmt.Errorf("field %q: components must be positive, got %d", f.Name, f.Components)
		}
	}

	if s.AMR.Levels < 1 {
		return fmt.Errorf("amr levels must be positive, got %d", s.AMR.Levels)
	}
	if s.AMR.Ratio < 2 {
		return fmt.Errorf("amr ratio must be at least 2, got %d", s.AMR.Ratio)
	}
	for n, p := range s.AMR.Patches {
		if p.Level < 1 || p.Level >= s.AMR.Levels {
			return fmt.Errorf("amr patch %d: level %d outside [1,%d)", n, p.Level, s.AMR.Levels)
		}
		if len(p.Extent) != 6 {
			return fmt.Errorf("amr patch %d: extent needs 6 bounds, got %d", n, len(p.Extent))
		}
		if p.Bounds().IsEmpty() {
			return fmt.Errorf("amr patch %d: empty extent %v", n, p.Extent)
		}
	}
	return nil
}

// Partitions builds the rank layout of the scenario's level-0 blocks
func (s Scenario) Partitions() (*partitions.PartitionLayout, error) {
	pb := &partitions.PartitionBuilder{
		WholeExtent: s.WholeExtent,
		Blocks:      s.Blocks,
		NumRanks:    s.Ranks,
		Strategy:    s.Strategy,
	}
	return pb.BuildPartitions()
}
