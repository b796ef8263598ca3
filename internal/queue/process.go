package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/netunion/internal/run"
	"github.com/OFFIS-RIT/netunion/internal/util"
	"github.com/OFFIS-RIT/netunion/pkg/export"
	"github.com/OFFIS-RIT/netunion/pkg/graph"
	"github.com/OFFIS-RIT/netunion/pkg/leaselock"
	"github.com/OFFIS-RIT/netunion/pkg/loader"
	"github.com/OFFIS-RIT/netunion/pkg/logger"
	"github.com/OFFIS-RIT/netunion/pkg/store"
)

const defaultLeaseTTL = 10 * time.Minute

// QueueRunMsg is the body of a run_queue message.
type QueueRunMsg struct {
	RunID  string         `json:"run_id"`
	Config util.RunConfig `json:"config"`
}

// Locker holds a lease while fn runs.
type Locker interface {
	WithLease(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// RunProcessor executes queued runs and records their outcome.
type RunProcessor struct {
	Store store.RunStorage
	Locks Locker
	// Sink returns the artifact destination for a run's artifact prefix.
	Sink      func(prefix string) export.Sink
	NewSource func(ctx context.Context, cfg util.RunConfig) (loader.NetworkSource, error)

	LeaseTTL    time.Duration
	TokenPrefix string
}

// permanent reports whether retrying the run cannot change its outcome.
func permanent(err error) bool {
	return errors.Is(err, util.ErrInvalidConfig) || errors.Is(err, graph.ErrEmptyCatalogue)
}

// ProcessRunMessage runs the selection described by body. A returned error
// means the message should be retried; runs that fail permanently are
// recorded as failed and acknowledged.
func (p *RunProcessor) ProcessRunMessage(ctx context.Context, body []byte) error {
	var msg QueueRunMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		logger.Error("[Queue] Dropping undecodable run message", "err", err)
		return nil
	}
	if msg.RunID == "" {
		logger.Error("[Queue] Dropping run message without run id")
		return nil
	}

	ttl := p.LeaseTTL
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	opts := leaselock.Options{TTL: ttl, TokenPrefix: p.TokenPrefix}

	return p.Locks.WithLease(ctx, leaselock.RunKey(msg.RunID), opts, func(ctx context.Context) error {
		return p.execute(ctx, msg)
	})
}

func (p *RunProcessor) execute(ctx context.Context, msg QueueRunMsg) error {
	id := msg.RunID

	rec, err := p.Store.GetRun(ctx, id)
	if errors.Is(err, store.ErrRunNotFound) {
		logger.Warn("[Queue] Run no longer exists", "run", id)
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Status == store.RunCompleted {
		logger.Info("[Queue] Run already completed", "run", id)
		return nil
	}

	if err := p.Store.StartRun(ctx, id); err != nil {
		return fmt.Errorf("failed to start run %s: %w", id, err)
	}

	outcome, err := p.run(ctx, msg, rec.ArtifactPrefix)
	if err != nil {
		failCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if ferr := p.Store.FailRun(failCtx, id, err.Error()); ferr != nil {
			logger.Warn("[Queue] Failed to mark run as failed", "run", id, "err", ferr)
		}
		if permanent(err) {
			logger.Error("[Queue] Run failed permanently", "run", id, "err", err)
			return nil
		}
		return err
	}

	ranked := export.RankNodes(outcome.Result.Union.Nodes)
	if err := p.Store.CompleteRun(ctx, id, outcome.Summary, ranked); err != nil {
		return fmt.Errorf("failed to store result of run %s: %w", id, err)
	}

	logger.Info("[Queue] Run completed", "run", id, "nodes", outcome.Summary.NodeUnion, "edges", outcome.Summary.EdgeUnion)
	return nil
}

func (p *RunProcessor) run(ctx context.Context, msg QueueRunMsg, prefix string) (*run.Outcome, error) {
	if err := msg.Config.Validate(); err != nil {
		return nil, err
	}
	source, err := p.NewSource(ctx, msg.Config)
	if err != nil {
		return nil, err
	}
	return run.Execute(ctx, msg.RunID, msg.Config, source, p.Sink(prefix))
}
