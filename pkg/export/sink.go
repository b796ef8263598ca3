package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/OFFIS-RIT/netunion/pkg/graph"
	"github.com/OFFIS-RIT/netunion/pkg/logger"
)

const (
	RankedNodesFile      = "ranked_nodes.txt"
	GraphDescriptionFile = "subnetwork.js"
	SummaryFile          = "summary.json"
)

// Sink receives the artifacts of a run.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) error
}

// DirSink writes artifacts into a local directory, creating it if needed.
type DirSink struct {
	Dir string
}

// Put writes data to Dir/name.
func (d DirSink) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", d.Dir, err)
	}
	p := filepath.Join(d.Dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

// Artifacts are the rendered outputs of a run.
type Artifacts struct {
	RankedNodes      []byte
	GraphDescription []byte
	Summary          []byte
}

// Render produces every artifact of res in memory.
func Render(summary Summary, res *graph.Result) (*Artifacts, error) {
	var ranked, desc bytes.Buffer
	if err := WriteRankedNodes(&ranked, res.Union.Nodes); err != nil {
		return nil, err
	}
	if err := WriteGraphDescription(&desc, res.Union, res.MaxSize); err != nil {
		return nil, err
	}
	sum, err := MarshalSummary(summary)
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary: %w", err)
	}
	return &Artifacts{
		RankedNodes:      ranked.Bytes(),
		GraphDescription: desc.Bytes(),
		Summary:          sum,
	}, nil
}

// Write renders the artifacts of res and puts them into sink. The first
// failing Put aborts the export.
func Write(ctx context.Context, sink Sink, summary Summary, res *graph.Result) error {
	art, err := Render(summary, res)
	if err != nil {
		return err
	}

	files := []struct {
		name string
		data []byte
	}{
		{RankedNodesFile, art.RankedNodes},
		{GraphDescriptionFile, art.GraphDescription},
		{SummaryFile, art.Summary},
	}
	for _, f := range files {
		if err := sink.Put(ctx, f.name, f.data); err != nil {
			return fmt.Errorf("failed to export %s: %w", f.name, err)
		}
		logger.Debug("[Export] Wrote artifact", "name", f.name, "bytes", len(f.data))
	}

	logger.Info("[Export] Exported run", "run", summary.RunID, "nodes", res.Union.Nodes.Len(), "edges", res.Union.Edges.Len())
	return nil
}
