package run

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/netunion/internal/util"
	"github.com/OFFIS-RIT/netunion/pkg/export"
	"github.com/OFFIS-RIT/netunion/pkg/graph"
	"github.com/OFFIS-RIT/netunion/pkg/loader"
	loaderio "github.com/OFFIS-RIT/netunion/pkg/loader/io"
	loaders3 "github.com/OFFIS-RIT/netunion/pkg/loader/s3"
	"github.com/OFFIS-RIT/netunion/pkg/logger"
)

// Outcome is what a pipeline run produced.
type Outcome struct {
	Result    *graph.Result
	Summary   export.Summary
	Files     int
	Malformed []error
}

// NewSource returns the network source named by cfg.Source. The s3 source
// takes its endpoint and credentials from the AWS_* environment.
func NewSource(ctx context.Context, cfg util.RunConfig) (loader.NetworkSource, error) {
	switch cfg.Source {
	case util.SourceLocal:
		return loaderio.NewIONetworkSource(), nil
	case util.SourceS3:
		return loaders3.NewS3NetworkSource(ctx, loaders3.NewS3NetworkSourceParams{
			Bucket:    cfg.Bucket,
			Endpoint:  util.GetEnv("AWS_ENDPOINT"),
			Region:    util.GetEnv("AWS_REGION"),
			AccessKey: util.GetEnv("AWS_ACCESS_KEY"),
			SecretKey: util.GetEnv("AWS_SECRET_KEY"),
		})
	default:
		return nil, fmt.Errorf("unknown network source %q", cfg.Source)
	}
}

// Execute discovers and loads the candidate networks, selects the union and
// exports the artifacts to sink.
//
// Malformed records do not fail the run; they are returned in the outcome.
func Execute(ctx context.Context, runID string, cfg util.RunConfig, source loader.NetworkSource, sink export.Sink) (*Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	files, err := source.Discover(ctx, loader.DiscoverParams{
		Root:        cfg.Root,
		DirPattern:  cfg.DirPattern,
		FilePattern: cfg.FilePattern,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover networks: %w", err)
	}
	logger.Info("[Run] Discovered network files", "run", runID, "root", cfg.Root, "files", len(files))

	records, err := loader.LoadRecords(ctx, files, cfg.LoadParallel)
	if err != nil {
		return nil, err
	}

	cat, malformed := graph.Ingest(records)

	sel, err := graph.NewSelector(graph.NewSelectorParams{
		Dimension:     graph.Dimension(cfg.Dimension),
		SeedCriterion: graph.SeedCriterion(cfg.SeedCriterion),
		Parallelism:   cfg.Parallelism,
	})
	if err != nil {
		return nil, err
	}

	res, err := sel.Select(ctx, cat)
	if err != nil {
		return nil, fmt.Errorf("failed to select networks from %s: %w", cfg.Root, err)
	}

	summary := export.BuildSummary(runID, sel.SeedCriterion(), res)
	if err := export.Write(ctx, sink, summary, res); err != nil {
		return nil, err
	}

	logger.Info("[Run] Run finished",
		"run", runID,
		"steps", len(res.Steps),
		"nodes", res.Union.Nodes.Len(),
		"edges", res.Union.Edges.Len(),
		"malformed", len(malformed),
		"duration", time.Since(start).String(),
	)

	return &Outcome{
		Result:    res,
		Summary:   summary,
		Files:     len(files),
		Malformed: malformed,
	}, nil
}
