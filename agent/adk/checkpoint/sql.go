package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	// Database drivers. Dialect is selected by name at Open time, the same
	// three-driver spread the teacher's SQLTaskService supports.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore is the production Checkpoint Store backend: one logical schema
// (spec §4.4) expressed over database/sql against sqlite, postgres, or
// mysql. Grounded on the teacher's SQLTaskService (pkg/agent/task_service_sql.go):
// same three-dialect placeholder switch, same plain-JSON-blob columns.
type SQLStore struct {
	db      *sql.DB
	dialect string
	logger  *slog.Logger
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS paused_task (
    task_id     VARCHAR(255) PRIMARY KEY,
    agent_name  VARCHAR(255) NOT NULL,
    tec_blob    TEXT NOT NULL,
    created_at  BIGINT NOT NULL,
    updated_at  BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS peer_sub_task (
    sub_task_id        VARCHAR(255) PRIMARY KEY,
    logical_task_id    VARCHAR(255) NOT NULL,
    agent_name         VARCHAR(255) NOT NULL,
    peer_tool_name     VARCHAR(255) NOT NULL,
    peer_agent_name    VARCHAR(255) NOT NULL,
    function_call_id   VARCHAR(255) NOT NULL,
    invocation_id      VARCHAR(255) NOT NULL,
    deadline_epoch_ms  BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS parallel_invocation (
    task_id       VARCHAR(255) NOT NULL,
    invocation_id VARCHAR(255) NOT NULL,
    total         INTEGER NOT NULL,
    completed     INTEGER NOT NULL,
    results_blob  TEXT NOT NULL,
    PRIMARY KEY (task_id, invocation_id)
);

CREATE INDEX IF NOT EXISTS idx_peer_sub_task_agent_deadline ON peer_sub_task(agent_name, deadline_epoch_ms);
CREATE INDEX IF NOT EXISTS idx_peer_sub_task_logical_task ON peer_sub_task(logical_task_id);
`

// OpenSQLStore wraps an already-opened database handle and ensures the
// schema exists. dialect is one of "sqlite", "postgres", "mysql" (spec §4.4 backend
// portability: only strings, big-integers, JSON columns, and keys are used,
// so all three dialects share one schema).
func OpenSQLStore(db *sql.DB, dialect string, logger *slog.Logger) (*SQLStore, error) {
	switch dialect {
	case "sqlite", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("checkpoint: unsupported dialect %q (supported: sqlite, postgres, mysql)", dialect)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &SQLStore{db: db, dialect: dialect, logger: logger}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("checkpoint: failed to init schema: %w", err)
	}
	return s, nil
}

// ph returns the dialect-appropriate positional placeholder for arg index n
// (1-based), matching the teacher's inline dialect switches in task_service_sql.go.
func (s *SQLStore) ph(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) Checkpoint(ctx context.Context, task TaskCheckpoint, subTasks []PeerSubTask, aggregators []ParallelInvocation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("checkpoint: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	upsertTask := s.upsertTaskSQL()
	if _, err := tx.ExecContext(ctx, upsertTask, task.TaskID, task.AgentName, string(task.TECBlob), now, now); err != nil {
		return fmt.Errorf("checkpoint: upsert paused_task: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM peer_sub_task WHERE logical_task_id = "+s.ph(1), task.TaskID); err != nil {
		return fmt.Errorf("checkpoint: replace peer_sub_task: %w", err)
	}
	for _, st := range subTasks {
		insert := fmt.Sprintf(
			"INSERT INTO peer_sub_task (sub_task_id, logical_task_id, agent_name, peer_tool_name, peer_agent_name, function_call_id, invocation_id, deadline_epoch_ms) VALUES (%s,%s,%s,%s,%s,%s,%s,%s)",
			s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8))
		if _, err := tx.ExecContext(ctx, insert,
			st.SubTaskID, st.LogicalTaskID, st.AgentName, st.PeerToolName,
			st.PeerAgentName, st.FunctionCallID, st.InvocationID, st.DeadlineEpochMS); err != nil {
			return fmt.Errorf("checkpoint: insert peer_sub_task %s: %w", st.SubTaskID, err)
		}
	}

	for _, agg := range aggregators {
		if err := s.upsertAggregatorTx(ctx, tx, agg); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("checkpoint: commit: %w", err)
	}
	s.logger.Debug("checkpoint saved", "task_id", task.TaskID, "agent_name", task.AgentName, "sub_tasks", len(subTasks), "aggregators", len(aggregators))
	return nil
}

func (s *SQLStore) upsertTaskSQL() string {
	switch s.dialect {
	case "postgres":
		return `INSERT INTO paused_task (task_id, agent_name, tec_blob, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (task_id) DO UPDATE SET tec_blob = EXCLUDED.tec_blob, updated_at = EXCLUDED.updated_at`
	case "mysql":
		return `INSERT INTO paused_task (task_id, agent_name, tec_blob, created_at, updated_at)
VALUES (?,?,?,?,?)
ON DUPLICATE KEY UPDATE tec_blob = VALUES(tec_blob), updated_at = VALUES(updated_at)`
	default: // sqlite
		return `INSERT INTO paused_task (task_id, agent_name, tec_blob, created_at, updated_at)
VALUES (?,?,?,?,?)
ON CONFLICT(task_id) DO UPDATE SET tec_blob = excluded.tec_blob, updated_at = excluded.updated_at`
	}
}

func (s *SQLStore) upsertAggregatorTx(ctx context.Context, tx *sql.Tx, agg ParallelInvocation) error {
	resultsJSON, err := json.Marshal(agg.Results)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal aggregator results: %w", err)
	}
	var query string
	switch s.dialect {
	case "postgres":
		query = `INSERT INTO parallel_invocation (task_id, invocation_id, total, completed, results_blob)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (task_id, invocation_id) DO UPDATE SET completed = EXCLUDED.completed, results_blob = EXCLUDED.results_blob`
	case "mysql":
		query = `INSERT INTO parallel_invocation (task_id, invocation_id, total, completed, results_blob)
VALUES (?,?,?,?,?)
ON DUPLICATE KEY UPDATE completed = VALUES(completed), results_blob = VALUES(results_blob)`
	default:
		query = `INSERT INTO parallel_invocation (task_id, invocation_id, total, completed, results_blob)
VALUES (?,?,?,?,?)
ON CONFLICT(task_id, invocation_id) DO UPDATE SET completed = excluded.completed, results_blob = excluded.results_blob`
	}
	if _, err := tx.ExecContext(ctx, query, agg.TaskID, agg.InvocationID, agg.Total, agg.Completed, string(resultsJSON)); err != nil {
		return fmt.Errorf("checkpoint: upsert parallel_invocation %s/%s: %w", agg.TaskID, agg.InvocationID, err)
	}
	return nil
}

func (s *SQLStore) Restore(ctx context.Context, taskID string) (TaskCheckpoint, error) {
	query := "SELECT task_id, agent_name, tec_blob FROM paused_task WHERE task_id = " + s.ph(1)
	var tc TaskCheckpoint
	var blob string
	err := s.db.QueryRowContext(ctx, query, taskID).Scan(&tc.TaskID, &tc.AgentName, &blob)
	if err == sql.ErrNoRows {
		return TaskCheckpoint{}, ErrNotFound
	}
	if err != nil {
		return TaskCheckpoint{}, fmt.Errorf("checkpoint: restore %s: %w", taskID, err)
	}
	tc.TECBlob = json.RawMessage(blob)
	return tc, nil
}

// ClaimPeerSubTask is the at-most-one-claim primitive: a SELECT-FOR-UPDATE
// followed by DELETE in one transaction, per spec §4.4.
func (s *SQLStore) ClaimPeerSubTask(ctx context.Context, subTaskID string) (PeerSubTask, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PeerSubTask{}, fmt.Errorf("checkpoint: claim begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	selectQuery := "SELECT sub_task_id, logical_task_id, agent_name, peer_tool_name, peer_agent_name, function_call_id, invocation_id, deadline_epoch_ms FROM peer_sub_task WHERE sub_task_id = " + s.ph(1)
	if s.dialect == "postgres" {
		selectQuery += " FOR UPDATE"
	}

	var st PeerSubTask
	err = tx.QueryRowContext(ctx, selectQuery, subTaskID).Scan(
		&st.SubTaskID, &st.LogicalTaskID, &st.AgentName, &st.PeerToolName,
		&st.PeerAgentName, &st.FunctionCallID, &st.InvocationID, &st.DeadlineEpochMS)
	if err == sql.ErrNoRows {
		return PeerSubTask{}, ErrNotFound
	}
	if err != nil {
		return PeerSubTask{}, fmt.Errorf("checkpoint: claim select %s: %w", subTaskID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM peer_sub_task WHERE sub_task_id = "+s.ph(1), subTaskID); err != nil {
		return PeerSubTask{}, fmt.Errorf("checkpoint: claim delete %s: %w", subTaskID, err)
	}

	if err := tx.Commit(); err != nil {
		return PeerSubTask{}, fmt.Errorf("checkpoint: claim commit %s: %w", subTaskID, err)
	}
	return st, nil
}

func (s *SQLStore) RecordParallelResult(ctx context.Context, taskID, invocationID string, result []byte) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("checkpoint: record result begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	selectQuery := fmt.Sprintf("SELECT total, completed, results_blob FROM parallel_invocation WHERE task_id = %s AND invocation_id = %s", s.ph(1), s.ph(2))
	if s.dialect == "postgres" {
		selectQuery += " FOR UPDATE"
	}

	var total, completed int
	var resultsBlob string
	if err := tx.QueryRowContext(ctx, selectQuery, taskID, invocationID).Scan(&total, &completed, &resultsBlob); err != nil {
		if err == sql.ErrNoRows {
			return 0, 0, ErrNotFound
		}
		return 0, 0, fmt.Errorf("checkpoint: record result select: %w", err)
	}

	var results []json.RawMessage
	if err := json.Unmarshal([]byte(resultsBlob), &results); err != nil {
		return 0, 0, fmt.Errorf("checkpoint: record result unmarshal: %w", err)
	}
	results = append(results, json.RawMessage(result))
	completed++

	newBlob, err := json.Marshal(results)
	if err != nil {
		return 0, 0, fmt.Errorf("checkpoint: record result marshal: %w", err)
	}

	updateQuery := fmt.Sprintf("UPDATE parallel_invocation SET completed = %s, results_blob = %s WHERE task_id = %s AND invocation_id = %s",
		s.ph(1), s.ph(2), s.ph(3), s.ph(4))
	if _, err := tx.ExecContext(ctx, updateQuery, completed, string(newBlob), taskID, invocationID); err != nil {
		return 0, 0, fmt.Errorf("checkpoint: record result update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("checkpoint: record result commit: %w", err)
	}
	return completed, total, nil
}

func (s *SQLStore) GetParallelInvocation(ctx context.Context, taskID, invocationID string) (ParallelInvocation, error) {
	query := fmt.Sprintf("SELECT total, completed, results_blob FROM parallel_invocation WHERE task_id = %s AND invocation_id = %s", s.ph(1), s.ph(2))
	agg := ParallelInvocation{TaskID: taskID, InvocationID: invocationID}
	var resultsBlob string
	err := s.db.QueryRowContext(ctx, query, taskID, invocationID).Scan(&agg.Total, &agg.Completed, &resultsBlob)
	if err == sql.ErrNoRows {
		return ParallelInvocation{}, ErrNotFound
	}
	if err != nil {
		return ParallelInvocation{}, fmt.Errorf("checkpoint: get aggregator %s/%s: %w", taskID, invocationID, err)
	}
	if err := json.Unmarshal([]byte(resultsBlob), &agg.Results); err != nil {
		return ParallelInvocation{}, fmt.Errorf("checkpoint: get aggregator unmarshal: %w", err)
	}
	return agg, nil
}

func (s *SQLStore) ResetTimeoutDeadline(ctx context.Context, subTaskID string, newDeadlineEpochMS int64) (bool, error) {
	query := fmt.Sprintf("UPDATE peer_sub_task SET deadline_epoch_ms = %s WHERE sub_task_id = %s", s.ph(1), s.ph(2))
	res, err := s.db.ExecContext(ctx, query, newDeadlineEpochMS, subTaskID)
	if err != nil {
		return false, fmt.Errorf("checkpoint: reset deadline %s: %w", subTaskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checkpoint: reset deadline rows affected: %w", err)
	}
	return n > 0, nil
}

// SweepExpiredTimeouts atomically claims every expired row for agentName in
// one transaction, equivalent to calling ClaimPeerSubTask on each
// (spec §4.4, §4.5, §8 property 6).
func (s *SQLStore) SweepExpiredTimeouts(ctx context.Context, agentName string, nowEpochMS int64) ([]PeerSubTask, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: sweep begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	selectQuery := fmt.Sprintf(
		"SELECT sub_task_id, logical_task_id, agent_name, peer_tool_name, peer_agent_name, function_call_id, invocation_id, deadline_epoch_ms FROM peer_sub_task WHERE agent_name = %s AND deadline_epoch_ms <= %s",
		s.ph(1), s.ph(2))
	rows, err := tx.QueryContext(ctx, selectQuery, agentName, nowEpochMS)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: sweep select: %w", err)
	}

	var expired []PeerSubTask
	for rows.Next() {
		var st PeerSubTask
		if err := rows.Scan(&st.SubTaskID, &st.LogicalTaskID, &st.AgentName, &st.PeerToolName,
			&st.PeerAgentName, &st.FunctionCallID, &st.InvocationID, &st.DeadlineEpochMS); err != nil {
			rows.Close()
			return nil, fmt.Errorf("checkpoint: sweep scan: %w", err)
		}
		expired = append(expired, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint: sweep rows: %w", err)
	}

	for _, st := range expired {
		if _, err := tx.ExecContext(ctx, "DELETE FROM peer_sub_task WHERE sub_task_id = "+s.ph(1), st.SubTaskID); err != nil {
			return nil, fmt.Errorf("checkpoint: sweep delete %s: %w", st.SubTaskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("checkpoint: sweep commit: %w", err)
	}
	if len(expired) > 0 {
		s.logger.Info("swept expired peer sub-tasks", "agent_name", agentName, "count", len(expired))
	}
	return expired, nil
}

func (s *SQLStore) CleanupTask(ctx context.Context, taskID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("checkpoint: cleanup begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM paused_task WHERE task_id = "+s.ph(1), taskID); err != nil {
		return fmt.Errorf("checkpoint: cleanup paused_task: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM peer_sub_task WHERE logical_task_id = "+s.ph(1), taskID); err != nil {
		return fmt.Errorf("checkpoint: cleanup peer_sub_task: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM parallel_invocation WHERE task_id = "+s.ph(1), taskID); err != nil {
		return fmt.Errorf("checkpoint: cleanup parallel_invocation: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStore) Stats(ctx context.Context, agentName string) (Stats, error) {
	stats := Stats{AgentName: agentName}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM paused_task WHERE agent_name = "+s.ph(1), agentName).Scan(&stats.PausedTasks); err != nil {
		return Stats{}, fmt.Errorf("checkpoint: stats paused_task: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM peer_sub_task WHERE agent_name = "+s.ph(1), agentName).Scan(&stats.OutstandingSubTasks); err != nil {
		return Stats{}, fmt.Errorf("checkpoint: stats peer_sub_task: %w", err)
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM parallel_invocation pi JOIN paused_task pt ON pi.task_id = pt.task_id WHERE pt.agent_name = %s AND pi.completed < pi.total", s.ph(1))
	if err := s.db.QueryRowContext(ctx, query, agentName).Scan(&stats.PendingAggregators); err != nil {
		return Stats{}, fmt.Errorf("checkpoint: stats parallel_invocation: %w", err)
	}
	return stats, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
