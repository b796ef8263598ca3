package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/OFFIS-RIT/netunion/pkg/common"
	"github.com/OFFIS-RIT/netunion/pkg/export"
	"github.com/OFFIS-RIT/netunion/pkg/store"
)

const (
	defaultCopyChunkSize = 5000
	maxListLimit         = 100
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

var (
	stepColumns    = []string{"run_id", "position", "seed", "size", "source", "main_score", "increase", "node_growth", "edge_growth", "node_union", "edge_union"}
	elementColumns = []string{"run_id", "position", "stamp", "node"}
)

// RunDBStorage implements store.RunStorage on PostgreSQL. Trajectory steps
// and ranked nodes are written with COPY.
type RunDBStorage struct {
	conn      pgxIConn
	copyChunk int
}

type RunDBStorageOption func(*RunDBStorage)

// WithCopyChunkSize bounds the number of ranked nodes sent per COPY.
func WithCopyChunkSize(n int) RunDBStorageOption {
	return func(s *RunDBStorage) {
		if n > 0 {
			s.copyChunk = n
		}
	}
}

func NewRunDBStorageWithConnection(conn pgxIConn, opts ...RunDBStorageOption) *RunDBStorage {
	s := &RunDBStorage{
		conn:      conn,
		copyChunk: defaultCopyChunkSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

var _ store.RunStorage = (*RunDBStorage)(nil)

func (s *RunDBStorage) CreateRun(ctx context.Context, id string, params json.RawMessage, artifactPrefix string) (*store.Run, error) {
	run := &store.Run{
		ID:             id,
		Status:         store.RunQueued,
		Params:         params,
		ArtifactPrefix: artifactPrefix,
	}
	err := s.conn.QueryRow(ctx, createRunSQL, id, []byte(params), artifactPrefix).Scan(&run.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create run %s: %w", id, err)
	}
	return run, nil
}

func (s *RunDBStorage) StartRun(ctx context.Context, id string) error {
	return s.execOne(ctx, id, "start", startRunSQL, id)
}

func (s *RunDBStorage) FailRun(ctx context.Context, id string, reason string) error {
	return s.execOne(ctx, id, "fail", failRunSQL, id, store.SanitizeText(reason))
}

func (s *RunDBStorage) DeleteRun(ctx context.Context, id string) error {
	return s.execOne(ctx, id, "delete", deleteRunSQL, id)
}

func (s *RunDBStorage) execOne(ctx context.Context, id, action, sql string, args ...any) error {
	tag, err := s.conn.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to %s run %s: %w", action, id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrRunNotFound
	}
	return nil
}

// CompleteRun replaces any rows left by an earlier attempt of the same run.
func (s *RunDBStorage) CompleteRun(ctx context.Context, id string, summary export.Summary, ranked []export.RankedNode) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, completeRunSQL, id, data, summary.NodeUnion, summary.EdgeUnion)
	if err != nil {
		return fmt.Errorf("failed to complete run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrRunNotFound
	}

	for _, sql := range []string{clearStepsSQL, clearElementsSQL} {
		if _, err := tx.Exec(ctx, sql, id); err != nil {
			return fmt.Errorf("failed to clear previous results of run %s: %w", id, err)
		}
	}

	steps := summary.Steps
	if len(steps) > 0 {
		_, err = tx.CopyFrom(ctx, pgxv5.Identifier{"run_steps"}, stepColumns,
			pgxv5.CopyFromSlice(len(steps), func(i int) ([]any, error) {
				st := steps[i]
				return []any{
					id, i, st.Seed, st.Size, store.SanitizeText(st.Source), st.MainScore, st.Increase,
					st.NodeGrowth, st.EdgeGrowth, st.NodeUnion, st.EdgeUnion,
				}, nil
			}))
		if err != nil {
			return fmt.Errorf("failed to copy steps of run %s: %w", id, err)
		}
	}

	err = store.ChunkRange(len(ranked), s.copyChunk, func(start, end int) error {
		_, err := tx.CopyFrom(ctx, pgxv5.Identifier{"run_elements"}, elementColumns,
			pgxv5.CopyFromSlice(end-start, func(i int) ([]any, error) {
				n := ranked[start+i]
				return []any{id, start + i, n.Stamp, store.SanitizeText(string(n.Node))}, nil
			}))
		if err != nil {
			return fmt.Errorf("failed to copy ranked nodes of run %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *RunDBStorage) GetRun(ctx context.Context, id string) (*store.Run, error) {
	run, err := scanRun(s.conn.QueryRow(ctx, getRunSQL, id))
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, store.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

func (s *RunDBStorage) ListRuns(ctx context.Context, limit, offset int) ([]store.Run, error) {
	limit, offset = store.ClampPage(limit, offset, maxListLimit)

	rows, err := s.conn.Query(ctx, listRunsSQL, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]store.Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *RunDBStorage) GetRankedNodes(ctx context.Context, id string) ([]export.RankedNode, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, rankedNodesSQL, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get ranked nodes of run %s: %w", id, err)
	}
	defer rows.Close()

	ranked := []export.RankedNode{}
	for rows.Next() {
		var (
			stamp int
			node  string
		)
		if err := rows.Scan(&stamp, &node); err != nil {
			return nil, err
		}
		ranked = append(ranked, export.RankedNode{Stamp: stamp, Node: common.NodeID(node)})
	}
	return ranked, rows.Err()
}

func scanRun(row rowScanner) (*store.Run, error) {
	var (
		run        store.Run
		status     string
		params     []byte
		errMsg     *string
		summary    []byte
		startedAt  *time.Time
		finishedAt *time.Time
	)
	err := row.Scan(
		&run.ID, &status, &params, &run.ArtifactPrefix, &run.Attempts, &errMsg,
		&summary, &run.NodeUnion, &run.EdgeUnion, &run.CreatedAt, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Status = store.RunStatus(status)
	run.Params = params
	if errMsg != nil {
		run.Error = *errMsg
	}
	if len(summary) > 0 {
		run.Summary = summary
	}
	run.StartedAt = startedAt
	run.FinishedAt = finishedAt
	return &run, nil
}
