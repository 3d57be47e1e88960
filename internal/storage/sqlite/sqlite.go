// Package sqlite implements storage.Backend on top of modernc.org/sqlite,
// the pure-Go (CGO-free) driver, matching the teacher's preference for a
// CGO-free embedded store. This is the Lite-profile backend: a single file,
// single-node, schema managed by pressly/goose/v3 migrations.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/epistimio/orion-go/internal/metrics"
	"github.com/epistimio/orion-go/internal/storage"
	"github.com/epistimio/orion-go/internal/trial"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Storage is a storage.Backend backed by a SQLite file.
type Storage struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite file at path and applies
// pending migrations.
func Open(ctx context.Context, path string) (*Storage, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, &storage.ErrNotFound{Collection: "sqlite", Key: err.Error()}
	}
	db.SetMaxOpenConns(1) // SQLite: serialize writers, matching WAL's single-writer model

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return nil, fmt.Errorf("sqlite: schema migration failed: %w", err)
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close(ctx context.Context) error { return s.db.Close() }

// Kind identifies this backend for metrics labeling.
func (s *Storage) Kind() string { return "sqlite" }

func (s *Storage) CreateExperiment(ctx context.Context, cfg storage.ExperimentConfig) (storage.ExperimentConfig, error) {
	meta, err := json.Marshal(cfg.Metadata)
	if err != nil {
		return storage.ExperimentConfig{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO experiments (id, name, version, username, space_canon, algorithm,
			max_trials, worker_trials, pool_size, max_broken, metadata, root_id, parent_id, adapter_spec)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.Name, cfg.Version, cfg.User, cfg.SpaceCanon, cfg.Algorithm,
		cfg.MaxTrials, cfg.WorkerTrials, cfg.PoolSize, cfg.MaxBroken, string(meta),
		cfg.Refers.RootID, cfg.Refers.ParentID, cfg.Refers.AdapterSpec)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ExperimentConfig{}, &storage.ErrDuplicateKey{Collection: "experiments", Key: cfg.Name}
		}
		return storage.ExperimentConfig{}, err
	}
	return cfg, nil
}

func (s *Storage) UpdateExperiment(ctx context.Context, id string, patch storage.ExperimentPatch) error {
	if patch.MaxTrials != nil {
		if _, err := s.db.ExecContext(ctx, `UPDATE experiments SET max_trials=? WHERE id=?`, *patch.MaxTrials, id); err != nil {
			return err
		}
	}
	if patch.WorkerTrials != nil {
		if _, err := s.db.ExecContext(ctx, `UPDATE experiments SET worker_trials=? WHERE id=?`, *patch.WorkerTrials, id); err != nil {
			return err
		}
	}
	if patch.PoolSize != nil {
		if _, err := s.db.ExecContext(ctx, `UPDATE experiments SET pool_size=? WHERE id=?`, *patch.PoolSize, id); err != nil {
			return err
		}
	}
	if patch.MaxBroken != nil {
		if _, err := s.db.ExecContext(ctx, `UPDATE experiments SET max_broken=? WHERE id=?`, *patch.MaxBroken, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) FetchExperiments(ctx context.Context, q storage.ExperimentQuery) ([]storage.ExperimentConfig, error) {
	query := `SELECT id, name, version, username, space_canon, algorithm, max_trials, worker_trials,
		pool_size, max_broken, metadata, root_id, parent_id, adapter_spec FROM experiments WHERE 1=1`
	var args []any
	if q.Name != "" {
		query += " AND name=?"
		args = append(args, q.Name)
	}
	if q.User != "" {
		query += " AND username=?"
		args = append(args, q.User)
	}
	if q.Version != 0 {
		query += " AND version=?"
		args = append(args, q.Version)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.ExperimentConfig
	for rows.Next() {
		var cfg storage.ExperimentConfig
		var meta string
		if err := rows.Scan(&cfg.ID, &cfg.Name, &cfg.Version, &cfg.User, &cfg.SpaceCanon, &cfg.Algorithm,
			&cfg.MaxTrials, &cfg.WorkerTrials, &cfg.PoolSize, &cfg.MaxBroken, &meta,
			&cfg.Refers.RootID, &cfg.Refers.ParentID, &cfg.Refers.AdapterSpec); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(meta), &cfg.Metadata)
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (s *Storage) RegisterTrial(ctx context.Context, t *trial.Trial) (*trial.Trial, error) {
	status := t.Status
	if status == "" {
		status = trial.StatusNew
	}
	params, err := json.Marshal(t.Params)
	if err != nil {
		return nil, err
	}
	results, err := json.Marshal(t.Results)
	if err != nil {
		return nil, err
	}
	parents, err := json.Marshal(t.Parents)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trials (id, experiment_id, params, results, status, parents, submit_time, start_time, end_time, heartbeat)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ExperimentID, string(params), string(results), string(status), string(parents),
		timeOrNil(t.SubmitTime), timeOrNil(t.StartTime), timeOrNil(t.EndTime), timeOrNil(t.Heartbeat))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &storage.ErrDuplicateKey{Collection: "trials", Key: t.ID}
		}
		return nil, err
	}
	out := t.Clone()
	out.Status = status
	return out, nil
}

func (s *Storage) GetTrial(ctx context.Context, id string) (*trial.Trial, error) {
	row := s.db.QueryRowContext(ctx, trialSelectQuery+` WHERE id=?`, id)
	t, err := scanTrial(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

const trialSelectQuery = `SELECT id, experiment_id, params, results, status, parents, submit_time, start_time, end_time, heartbeat FROM trials`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrial(row rowScanner) (*trial.Trial, error) {
	var t trial.Trial
	var params, results, parents string
	var status string
	var submit, start, end, hb sql.NullString
	if err := row.Scan(&t.ID, &t.ExperimentID, &params, &results, &status, &parents, &submit, &start, &end, &hb); err != nil {
		return nil, err
	}
	t.Status = trial.Status(status)
	_ = json.Unmarshal([]byte(params), &t.Params)
	_ = json.Unmarshal([]byte(results), &t.Results)
	_ = json.Unmarshal([]byte(parents), &t.Parents)
	t.SubmitTime = parseTimeOrNil(submit)
	t.StartTime = parseTimeOrNil(start)
	t.EndTime = parseTimeOrNil(end)
	t.Heartbeat = parseTimeOrNil(hb)
	return &t, nil
}

func (s *Storage) fetchTrialsWhere(ctx context.Context, clause string, args ...any) ([]*trial.Trial, error) {
	rows, err := s.db.QueryContext(ctx, trialSelectQuery+" WHERE "+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*trial.Trial
	for rows.Next() {
		t, err := scanTrial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Storage) FetchTrials(ctx context.Context, experimentID string) ([]*trial.Trial, error) {
	return s.fetchTrialsWhere(ctx, "experiment_id=?", experimentID)
}

func (s *Storage) FetchTrialsByStatus(ctx context.Context, experimentID string, status trial.Status) ([]*trial.Trial, error) {
	return s.fetchTrialsWhere(ctx, "experiment_id=? AND status=?", experimentID, string(status))
}

func (s *Storage) FetchNonCompletedTrials(ctx context.Context, experimentID string) ([]*trial.Trial, error) {
	return s.fetchTrialsWhere(ctx, "experiment_id=? AND status<>?", experimentID, string(trial.StatusCompleted))
}

func (s *Storage) FetchPendingTrials(ctx context.Context, experimentID string) ([]*trial.Trial, error) {
	return s.fetchTrialsWhere(ctx, "experiment_id=? AND status IN (?,?,?,?)", experimentID,
		string(trial.StatusNew), string(trial.StatusReserved), string(trial.StatusInterrupted), string(trial.StatusSuspended))
}

func (s *Storage) FetchLostTrials(ctx context.Context, experimentID string, ttl time.Duration) ([]*trial.Trial, error) {
	cutoff := time.Now().Add(-ttl).UTC().Format(time.RFC3339Nano)
	return s.fetchTrialsWhere(ctx, "experiment_id=? AND status=? AND heartbeat IS NOT NULL AND heartbeat<?",
		experimentID, string(trial.StatusReserved), cutoff)
}

// sweepLostTrials flips heartbeat-expired reserved trials to interrupted,
// one row at a time, each under the CAS discipline of an UPDATE ... WHERE
// that re-checks the observed heartbeat (so a concurrent sweeper racing on
// the same row simply affects 0 rows and moves on).
func (s *Storage) sweepLostTrials(ctx context.Context, experimentID string, ttl time.Duration) error {
	lost, err := s.FetchLostTrials(ctx, experimentID, ttl)
	if err != nil {
		return err
	}
	for _, t := range lost {
		res, err := s.db.ExecContext(ctx,
			`UPDATE trials SET status=? WHERE id=? AND status=? AND heartbeat=?`,
			string(trial.StatusInterrupted), t.ID, string(trial.StatusReserved), timeOrNil(t.Heartbeat))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			metrics.HeartbeatSweepRecoveredTotal.WithLabelValues(experimentID).Add(float64(n))
		}
	}
	return nil
}

func (s *Storage) ReserveTrial(ctx context.Context, experimentID string, ttl time.Duration) (*trial.Trial, error) {
	if err := s.sweepLostTrials(ctx, experimentID, ttl); err != nil {
		return nil, err
	}

	candidates, err := s.fetchTrialsWhere(ctx, "experiment_id=? AND status IN (?,?,?)", experimentID,
		string(trial.StatusNew), string(trial.StatusInterrupted), string(trial.StatusSuspended))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for _, t := range candidates {
		res, err := s.db.ExecContext(ctx,
			`UPDATE trials SET status=?, start_time=?, heartbeat=? WHERE id=? AND status=?`,
			string(trial.StatusReserved), timeOrNil(&now), timeOrNil(&now), t.ID, string(t.Status))
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 1 {
			t.Status = trial.StatusReserved
			t.StartTime = &now
			t.Heartbeat = &now
			return t, nil
		}
		// lost the race on this candidate; try the next
	}
	return nil, nil
}

func (s *Storage) SetTrialStatus(ctx context.Context, id string, from, to trial.Status, hb *time.Time) (*trial.Trial, error) {
	var res sql.Result
	var err error
	if hb != nil {
		res, err = s.db.ExecContext(ctx, `UPDATE trials SET status=?, heartbeat=? WHERE id=? AND status=?`,
			string(to), timeOrNil(hb), id, string(from))
	} else {
		res, err = s.db.ExecContext(ctx, `UPDATE trials SET status=? WHERE id=? AND status=?`, string(to), id, string(from))
	}
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, &storage.ErrFailedUpdate{TrialID: id, Reason: fmt.Sprintf("status no longer %s", from)}
	}
	if to.IsTerminal() {
		now := time.Now()
		_, _ = s.db.ExecContext(ctx, `UPDATE trials SET end_time=? WHERE id=?`, timeOrNil(&now), id)
	}
	return s.GetTrial(ctx, id)
}

func (s *Storage) PushTrialResults(ctx context.Context, id string, results []trial.Result) error {
	existing, err := s.GetTrial(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return &storage.ErrNotFound{Collection: "trials", Key: id}
	}
	merged, err := json.Marshal(append(existing.Results, results...))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE trials SET results=? WHERE id=?`, string(merged), id)
	return err
}

func (s *Storage) UpdateHeartbeat(ctx context.Context, id string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `UPDATE trials SET heartbeat=? WHERE id=?`, timeOrNil(&now), id)
	return err
}

func (s *Storage) RegisterLie(ctx context.Context, t *trial.Trial) (*trial.Trial, error) {
	params, err := json.Marshal(t.Params)
	if err != nil {
		return nil, err
	}
	results, err := json.Marshal(t.Results)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO lies (id, experiment_id, params, results) VALUES (?, ?, ?, ?)`,
		t.ID, t.ExperimentID, string(params), string(results))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &storage.ErrDuplicateKey{Collection: "lies", Key: t.ID}
		}
		return nil, err
	}
	return t.Clone(), nil
}

func (s *Storage) CountCompletedTrials(ctx context.Context, experimentID string) (int, error) {
	return s.countByStatus(ctx, experimentID, trial.StatusCompleted)
}

func (s *Storage) CountBrokenTrials(ctx context.Context, experimentID string) (int, error) {
	return s.countByStatus(ctx, experimentID, trial.StatusBroken)
}

func (s *Storage) countByStatus(ctx context.Context, experimentID string, status trial.Status) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trials WHERE experiment_id=? AND status=?`,
		experimentID, string(status)).Scan(&n)
	return n, err
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeOrNil(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite wraps the sqlite3 error code in its message; a
	// string check avoids depending on its internal error type.
	return contains(err.Error(), "UNIQUE constraint failed") || contains(err.Error(), "constraint failed")
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}

var _ storage.Backend = (*Storage)(nil)
