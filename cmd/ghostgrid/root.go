package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/charmbracelet/log"
	"github.com/notargets/GhostGrid/catalog"
	"github.com/notargets/GhostGrid/config"
	"github.com/notargets/GhostGrid/logging"
	"github.com/notargets/GhostGrid/scenario"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	dbPath     string
	verbose    bool
	ranks      int
	layers     int
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "ghostgrid",
		Short:        "Compute grid neighbors and exchange ghost layers",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := log.WarnLevel
			if opts.verbose {
				level = log.DebugLevel
			}
			l := logging.New(errOut, logging.Level(level))
			cmd.SetContext(logging.WithLogger(cmd.Context(), l))
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "scenario TOML file (defaults when empty)")
	flags.StringVar(&opts.dbPath, "db", "", "SQLite catalog to record the run in")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logging")
	flags.IntVar(&opts.ranks, "ranks", 0, "override the number of ranks")
	flags.IntVar(&opts.layers, "layers", -1, "override the number of ghost layers")

	root.AddCommand(newNeighborsCmd(opts))
	root.AddCommand(newGhostCmd(opts))
	root.AddCommand(newAMRCmd(opts))
	return root
}

// load resolves the scenario and the run options shared by every command
func (o *options) load(ctx context.Context) (config.Scenario, []scenario.Option, func(), error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, nil, nil, err
		}
	}
	if o.ranks > 0 {
		cfg.Ranks = o.ranks
	}
	if o.layers >= 0 {
		cfg.GhostLayers = o.layers
	}
	if o.dbPath != "" {
		cfg.CatalogPath = o.dbPath
	}

	logger := logging.FromContext(ctx)
	runOpts := []scenario.Option{scenario.WithLogger(logger)}
	closer := func() {}
	if cfg.CatalogPath != "" {
		cat, err := catalog.Open(cfg.CatalogPath)
		if err != nil {
			return cfg, nil, nil, err
		}
		runOpts = append(runOpts, scenario.WithCatalog(cat))
		closer = func() { cat.Close() }
		logger.Debug("recording run", "catalog", cfg.CatalogPath)
	}
	return cfg, runOpts, closer, nil
}

func newNeighborsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "neighbors",
		Short: "Print the neighbor table of the scenario's block decomposition",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, runOpts, closer, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer closer()

			res, err := scenario.RunStructured(cmd.Context(), cfg, runOpts...)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GRID\tRANK\tEXTENT\tGHOSTED\tNEIGHBOR\tOVERLAP")
			for _, g := range res.Grids {
				if len(g.Neighbors) == 0 {
					fmt.Fprintf(w, "%d\t%d\t%v\t%v\t-\t-\n", g.ID, g.Rank, g.Extent, g.Ghosted)
				}
				for _, nb := range g.Neighbors {
					fmt.Fprintf(w, "%d\t%d\t%v\t%v\t%d\t%v\n", g.ID, g.Rank, g.Extent, g.Ghosted, nb.ID, nb.Overlap)
				}
			}
			if res.RunID != "" {
				fmt.Fprintf(w, "\nrun %s\n", res.RunID)
			}
			return w.Flush()
		},
	}
}

func newGhostCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ghost",
		Short: "Run the ghost exchange across the configured ranks and report traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, runOpts, closer, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer closer()

			res, err := scenario.RunStructured(cmd.Context(), cfg, runOpts...)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tSENT\tRECEIVED\tBYTES SENT\tBYTES RECEIVED\tLOCAL\tPEERS")
			for r, st := range res.Stats {
				peers := 0
				if r < len(res.Metrics) {
					peers = res.Metrics[r].NumNeighbor
				}
				fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\t%d\n", r, st.MessagesSent, st.MessagesReceived,
					st.BytesSent, st.BytesReceived, st.LocalTransfers, peers)
			}
			t := res.Total()
			fmt.Fprintf(w, "total\t%d\t%d\t%d\t%d\t%d\t\n", t.MessagesSent, t.MessagesReceived,
				t.BytesSent, t.BytesReceived, t.LocalTransfers)

			ps := res.Layout.PartitionStatistics()
			fmt.Fprintf(w, "\n%d grids on %d ranks, imbalance %.3f\n", ps.NumPartitions, ps.NumRanks, ps.Imbalance)
			if res.RunID != "" {
				fmt.Fprintf(w, "run %s\n", res.RunID)
			}
			return w.Flush()
		},
	}
}

func newAMRCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "amr",
		Short: "Run an AMR scenario and print neighbor relationships",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, runOpts, closer, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer closer()

			res, err := scenario.RunAMR(cmd.Context(), cfg, runOpts...)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GRID\tLEVEL\tRANK\tGHOSTED\tNEIGHBOR\tRELATIONSHIP")
			for _, g := range res.Grids {
				for k, nb := range g.Neighbors {
					fmt.Fprintf(w, "%d\t%d\t%d\t%v\t%d\t%v\n", g.ID, g.Level, g.Rank, g.Ghosted, nb.ID, g.Relationships[k])
				}
			}
			return w.Flush()
		},
	}
}
