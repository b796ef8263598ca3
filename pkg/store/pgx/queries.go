package pgx

const runColumns = `id, status, params, artifact_prefix, attempts, error,
summary, node_union, edge_union, created_at, started_at, finished_at`

const createRunSQL = `
INSERT INTO runs (id, status, params, artifact_prefix)
VALUES ($1, 'queued', $2, $3)
RETURNING created_at;
`

const startRunSQL = `
UPDATE runs
SET status = 'running', attempts = attempts + 1, started_at = now(), error = NULL
WHERE id = $1;
`

const completeRunSQL = `
UPDATE runs
SET status = 'completed', summary = $2, node_union = $3, edge_union = $4,
    error = NULL, finished_at = now()
WHERE id = $1;
`

const failRunSQL = `
UPDATE runs
SET status = 'failed', error = $2, finished_at = now()
WHERE id = $1;
`

const deleteRunSQL = `DELETE FROM runs WHERE id = $1;`

const clearStepsSQL = `DELETE FROM run_steps WHERE run_id = $1;`

const clearElementsSQL = `DELETE FROM run_elements WHERE run_id = $1;`

const getRunSQL = `SELECT ` + runColumns + ` FROM runs WHERE id = $1;`

const listRunsSQL = `
SELECT ` + runColumns + `
FROM runs
ORDER BY created_at DESC, id
LIMIT $1 OFFSET $2;
`

const rankedNodesSQL = `
SELECT stamp, node
FROM run_elements
WHERE run_id = $1
ORDER BY position;
`
