package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/OFFIS-RIT/netunion/pkg/export"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the life cycle state of a queued run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is the stored record of a selection run.
//
// Params is the run configuration as submitted. Summary is only set for
// completed runs, Error only for failed ones.
type Run struct {
	ID             string          `json:"id"`
	Status         RunStatus       `json:"status"`
	Params         json.RawMessage `json:"params"`
	ArtifactPrefix string          `json:"artifact_prefix"`
	Attempts       int             `json:"attempts"`
	Error          string          `json:"error,omitempty"`
	Summary        json.RawMessage `json:"summary,omitempty"`
	NodeUnion      int             `json:"node_union"`
	EdgeUnion      int             `json:"edge_union"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

// RunStorage persists runs, their trajectories and ranked union elements.
type RunStorage interface {
	CreateRun(ctx context.Context, id string, params json.RawMessage, artifactPrefix string) (*Run, error)
	// StartRun marks the run as running and counts the attempt.
	StartRun(ctx context.Context, id string) error
	// CompleteRun stores the summary, the trajectory steps and the ranked
	// nodes of a finished run in one transaction.
	CompleteRun(ctx context.Context, id string, summary export.Summary, ranked []export.RankedNode) error
	FailRun(ctx context.Context, id string, reason string) error

	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]Run, error)
	GetRankedNodes(ctx context.Context, id string) ([]export.RankedNode, error)
	DeleteRun(ctx context.Context, id string) error
}
