package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/netunion/internal/queue"
	"github.com/OFFIS-RIT/netunion/internal/server/middleware"
	"github.com/OFFIS-RIT/netunion/internal/storage"
	"github.com/OFFIS-RIT/netunion/internal/util"
	"github.com/OFFIS-RIT/netunion/pkg/logger"
	"github.com/OFFIS-RIT/netunion/pkg/store"
)

const runsPrefix = "runs"

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

func appOf(c echo.Context) *middleware.App {
	return c.(*middleware.AppContext).App
}

type runIDParams struct {
	ID string `param:"id" validate:"required"`
}

func bindRunID(c echo.Context) (string, error) {
	params := new(runIDParams)
	if err := c.Bind(params); err != nil {
		return "", err
	}
	if err := c.Validate(params); err != nil {
		return "", err
	}
	if !util.IsRunID(params.ID) {
		return "", errors.New("malformed run id")
	}
	return params.ID, nil
}

// CreateRunHandler stores a queued run and publishes it to the run queue.
// Fields missing from the body take the server's NETUNION_* defaults.
func CreateRunHandler(c echo.Context) error {
	type createRunBody struct {
		Source        string `json:"source" validate:"omitempty,oneof=local s3"`
		Root          string `json:"root" validate:"required"`
		Bucket        string `json:"bucket"`
		DirPattern    string `json:"dir_pattern"`
		FilePattern   string `json:"file_pattern"`
		Dimension     string `json:"dimension" validate:"omitempty,oneof=nodes edges"`
		SeedCriterion string `json:"seed_criterion" validate:"omitempty,oneof=secondary main size-main"`
		Parallelism   *int   `json:"parallelism" validate:"omitempty,min=0"`
	}

	data := new(createRunBody)
	if err := c.Bind(data); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}

	runID, err := util.NewRunID()
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "Internal server error")
	}
	prefix := path.Join(runsPrefix, runID)

	cfg := util.LoadRunConfig()
	cfg.Root = data.Root
	cfg.Output = prefix
	for dst, src := range map[*string]string{
		&cfg.Source:        data.Source,
		&cfg.Bucket:        data.Bucket,
		&cfg.DirPattern:    data.DirPattern,
		&cfg.FilePattern:   data.FilePattern,
		&cfg.Dimension:     data.Dimension,
		&cfg.SeedCriterion: data.SeedCriterion,
	} {
		if src != "" {
			*dst = src
		}
	}
	if data.Parallelism != nil {
		cfg.Parallelism = *data.Parallelism
	}
	if err := cfg.Validate(); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	params, err := json.Marshal(cfg)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "Internal server error")
	}
	msg, err := json.Marshal(queue.QueueRunMsg{RunID: runID, Config: cfg})
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "Internal server error")
	}

	ctx := c.Request().Context()
	app := appOf(c)

	run, err := app.Runs.CreateRun(ctx, runID, params, prefix)
	if err != nil {
		logger.Error("[Server] Failed to create run", "err", err)
		return errorJSON(c, http.StatusInternalServerError, "Internal server error")
	}

	if err := app.Queue.Publish(queue.RunQueue, msg); err != nil {
		logger.Error("[Server] Failed to enqueue run", "run", runID, "err", err)
		if ferr := app.Runs.FailRun(ctx, runID, "failed to enqueue run"); ferr != nil {
			logger.Warn("[Server] Failed to mark run as failed", "run", runID, "err", ferr)
		}
		return errorJSON(c, http.StatusServiceUnavailable, "Run queue unavailable")
	}

	logger.Info("[Server] Run queued", "run", runID, "root", cfg.Root, "dimension", cfg.Dimension)
	return c.JSON(http.StatusAccepted, run)
}

func GetRunsHandler(c echo.Context) error {
	type listParams struct {
		Limit  int `query:"limit" validate:"min=0"`
		Offset int `query:"offset" validate:"min=0"`
	}

	params := new(listParams)
	if err := c.Bind(params); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request params")
	}
	if err := c.Validate(params); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request params")
	}

	runs, err := appOf(c).Runs.ListRuns(c.Request().Context(), params.Limit, params.Offset)
	if err != nil {
		logger.Error("[Server] Failed to list runs", "err", err)
		return errorJSON(c, http.StatusInternalServerError, "Internal server error")
	}
	return c.JSON(http.StatusOK, runs)
}

func GetRunHandler(c echo.Context) error {
	id, err := bindRunID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request params")
	}

	run, err := appOf(c).Runs.GetRun(c.Request().Context(), id)
	if errors.Is(err, store.ErrRunNotFound) {
		return errorJSON(c, http.StatusNotFound, "Run not found")
	}
	if err != nil {
		logger.Error("[Server] Failed to get run", "run", id, "err", err)
		return errorJSON(c, http.StatusInternalServerError, "Internal server error")
	}
	return c.JSON(http.StatusOK, run)
}

// GetRankedNodesHandler returns the ranked union nodes of a completed run.
func GetRankedNodesHandler(c echo.Context) error {
	id, err := bindRunID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request params")
	}

	ranked, err := appOf(c).Runs.GetRankedNodes(c.Request().Context(), id)
	if errors.Is(err, store.ErrRunNotFound) {
		return errorJSON(c, http.StatusNotFound, "Run not found")
	}
	if err != nil {
		logger.Error("[Server] Failed to get ranked nodes", "run", id, "err", err)
		return errorJSON(c, http.StatusInternalServerError, "Internal server error")
	}
	return c.JSON(http.StatusOK, ranked)
}

// GetRunArtifactsHandler lists the exported files of a run with download
// links valid for a limited time.
func GetRunArtifactsHandler(c echo.Context) error {
	type artifact struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}

	id, err := bindRunID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request params")
	}

	ctx := c.Request().Context()
	app := appOf(c)

	run, err := app.Runs.GetRun(ctx, id)
	if errors.Is(err, store.ErrRunNotFound) {
		return errorJSON(c, http.StatusNotFound, "Run not found")
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "Internal server error")
	}

	keys, err := app.Artifacts.ListFilesWithPrefix(ctx, storage.ArtifactKey(run.ArtifactPrefix, ""))
	if err != nil {
		logger.Error("[Server] Failed to list artifacts", "run", id, "err", err)
		return errorJSON(c, http.StatusInternalServerError, "Internal server error")
	}

	artifacts := make([]artifact, 0, len(keys))
	for _, key := range keys {
		link, err := app.Artifacts.GenerateDownloadLink(ctx, key)
		if err != nil {
			logger.Error("[Server] Failed to sign artifact link", "key", key, "err", err)
			return errorJSON(c, http.StatusInternalServerError, "Internal server error")
		}
		artifacts = append(artifacts, artifact{Name: path.Base(key), URL: link})
	}
	return c.JSON(http.StatusOK, artifacts)
}

// DeleteRunHandler removes a run, its stored results and its artifacts.
// Running runs cannot be deleted.
func DeleteRunHandler(c echo.Context) error {
	id, err := bindRunID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request params")
	}

	ctx := c.Request().Context()
	app := appOf(c)

	run, err := app.Runs.GetRun(ctx, id)
	if errors.Is(err, store.ErrRunNotFound) {
		return errorJSON(c, http.StatusNotFound, "Run not found")
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "Internal server error")
	}
	if run.Status == store.RunRunning {
		return errorJSON(c, http.StatusConflict, "Run is still running")
	}

	if err := app.Artifacts.DeleteFolder(ctx, storage.ArtifactKey(run.ArtifactPrefix, "")); err != nil {
		logger.Error("[Server] Failed to delete artifacts", "run", id, "err", err)
		return errorJSON(c, http.StatusInternalServerError, "Internal server error")
	}
	if err := app.Runs.DeleteRun(ctx, id); err != nil && !errors.Is(err, store.ErrRunNotFound) {
		return errorJSON(c, http.StatusInternalServerError, "Internal server error")
	}

	logger.Info("[Server] Run deleted", "run", id, "age", time.Since(run.CreatedAt).Round(time.Second).String())
	return c.NoContent(http.StatusNoContent)
}
