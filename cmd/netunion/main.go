package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/OFFIS-RIT/netunion/internal/run"
	"github.com/OFFIS-RIT/netunion/internal/util"
	"github.com/OFFIS-RIT/netunion/pkg/export"
	"github.com/OFFIS-RIT/netunion/pkg/logger"
)

func main() {
	util.LoadEnv()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "netunion",
		Short:         "Greedy minimal union of candidate networks",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return util.SetupLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Close()
		},
	}

	root.AddCommand(newSelectCmd(), newSchemaCmd())
	return root
}

func newSelectCmd() *cobra.Command {
	cfg := util.LoadRunConfig()

	cmd := &cobra.Command{
		Use:   "select",
		Short: "select one network per size class with a minimal union",
		Long: `Reads the candidate networks below --root, picks one network per size class
so that the union of their nodes (or edges) stays small, and writes the ranked
node list, the d3js graph description and a JSON summary to --output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSelect(ctx, cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.Source, "source", cfg.Source, "where to read networks from: local or s3")
	flags.StringVarP(&cfg.Root, "root", "r", cfg.Root, "directory or key prefix holding the size_* folders")
	flags.StringVar(&cfg.Bucket, "bucket", cfg.Bucket, "bucket of the s3 source")
	flags.StringVar(&cfg.DirPattern, "dir-pattern", cfg.DirPattern, "glob matching size class folders")
	flags.StringVar(&cfg.FilePattern, "file-pattern", cfg.FilePattern, "glob matching network files")
	flags.StringVarP(&cfg.Dimension, "dimension", "d", cfg.Dimension, "union dimension to minimise: nodes or edges")
	flags.StringVar(&cfg.SeedCriterion, "seed", cfg.SeedCriterion, "seed criterion: secondary, main or size-main")
	flags.StringVarP(&cfg.Output, "output", "o", cfg.Output, "directory receiving the artifacts")
	flags.IntVarP(&cfg.Parallelism, "parallelism", "p", cfg.Parallelism, "candidate evaluation workers, 0 for one per CPU")
	flags.IntVar(&cfg.LoadParallel, "load-parallel", cfg.LoadParallel, "concurrent network file reads")

	return cmd
}

func runSelect(ctx context.Context, cmd *cobra.Command, cfg util.RunConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	runID, err := util.NewRunID()
	if err != nil {
		return err
	}

	source, err := run.NewSource(ctx, cfg)
	if err != nil {
		return err
	}

	outcome, err := run.Execute(ctx, runID, cfg, source, export.DirSink{Dir: cfg.Output})
	if err != nil {
		return err
	}
	for _, merr := range outcome.Malformed {
		logger.Debug("Malformed record", "err", merr)
	}

	s := outcome.Summary
	fmt.Fprintf(cmd.OutOrStdout(),
		"run %s: %d networks selected, %d nodes, %d edges, skipped sizes %v, artifacts in %s\n",
		runID, len(s.Steps), s.NodeUnion, s.EdgeUnion, s.Skipped, cfg.Output,
	)
	return nil
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "print the JSON Schema of summary.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := json.MarshalIndent(export.SummarySchema(), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}
