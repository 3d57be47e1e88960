// Package postgres implements storage.Backend on top of jackc/pgx/v5, the
// Standard profile backend for multi-node deployments. Unlike the sqlite
// backend's retry-loop CAS, ReserveTrial here uses a single
// SELECT ... FOR UPDATE SKIP LOCKED transaction: Postgres's row locking
// does the race-avoidance work directly, so concurrent reservers never
// contend on the same candidate row in the first place.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/epistimio/orion-go/internal/metrics"
	"github.com/epistimio/orion-go/internal/storage"
	"github.com/epistimio/orion-go/internal/trial"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Storage is a storage.Backend backed by PostgreSQL.
type Storage struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, applies pending migrations, and returns a ready
// Storage. Migrations run through goose over database/sql (pgx's stdlib
// adapter), since goose does not speak pgx's native pool interface.
func Open(ctx context.Context, dsn string) (*Storage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	migDB := stdlib.OpenDBFromPool(pool)
	defer migDB.Close()
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, err
	}
	if err := goose.Up(migDB, "migrations"); err != nil {
		return nil, fmt.Errorf("postgres: schema migration failed: %w", err)
	}

	return &Storage{pool: pool}, nil
}

func (s *Storage) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

// Kind identifies this backend for metrics labeling.
func (s *Storage) Kind() string { return "postgres" }

func (s *Storage) CreateExperiment(ctx context.Context, cfg storage.ExperimentConfig) (storage.ExperimentConfig, error) {
	meta, err := json.Marshal(cfg.Metadata)
	if err != nil {
		return storage.ExperimentConfig{}, err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO experiments (id, name, version, username, space_canon, algorithm,
			max_trials, worker_trials, pool_size, max_broken, metadata, root_id, parent_id, adapter_spec)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
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
		if _, err := s.pool.Exec(ctx, `UPDATE experiments SET max_trials=$1 WHERE id=$2`, *patch.MaxTrials, id); err != nil {
			return err
		}
	}
	if patch.WorkerTrials != nil {
		if _, err := s.pool.Exec(ctx, `UPDATE experiments SET worker_trials=$1 WHERE id=$2`, *patch.WorkerTrials, id); err != nil {
			return err
		}
	}
	if patch.PoolSize != nil {
		if _, err := s.pool.Exec(ctx, `UPDATE experiments SET pool_size=$1 WHERE id=$2`, *patch.PoolSize, id); err != nil {
			return err
		}
	}
	if patch.MaxBroken != nil {
		if _, err := s.pool.Exec(ctx, `UPDATE experiments SET max_broken=$1 WHERE id=$2`, *patch.MaxBroken, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) FetchExperiments(ctx context.Context, q storage.ExperimentQuery) ([]storage.ExperimentConfig, error) {
	query := `SELECT id, name, version, username, space_canon, algorithm, max_trials, worker_trials,
		pool_size, max_broken, metadata, root_id, parent_id, adapter_spec FROM experiments WHERE true`
	var args []any
	n := 1
	if q.Name != "" {
		query += fmt.Sprintf(" AND name=$%d", n)
		args = append(args, q.Name)
		n++
	}
	if q.User != "" {
		query += fmt.Sprintf(" AND username=$%d", n)
		args = append(args, q.User)
		n++
	}
	if q.Version != 0 {
		query += fmt.Sprintf(" AND version=$%d", n)
		args = append(args, q.Version)
		n++
	}
	rows, err := s.pool.Query(ctx, query, args...)
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
	_, err = s.pool.Exec(ctx, `
		INSERT INTO trials (id, experiment_id, params, results, status, parents, submit_time, start_time, end_time, heartbeat)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		t.ID, t.ExperimentID, string(params), string(results), string(status), string(parents),
		t.SubmitTime, t.StartTime, t.EndTime, t.Heartbeat)
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

const trialSelectQuery = `SELECT id, experiment_id, params, results, status, parents, submit_time, start_time, end_time, heartbeat FROM trials`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrial(row rowScanner) (*trial.Trial, error) {
	var t trial.Trial
	var params, results, parents string
	var status string
	var submit, start, end, hb *time.Time
	if err := row.Scan(&t.ID, &t.ExperimentID, &params, &results, &status, &parents, &submit, &start, &end, &hb); err != nil {
		return nil, err
	}
	t.Status = trial.Status(status)
	_ = json.Unmarshal([]byte(params), &t.Params)
	_ = json.Unmarshal([]byte(results), &t.Results)
	_ = json.Unmarshal([]byte(parents), &t.Parents)
	t.SubmitTime, t.StartTime, t.EndTime, t.Heartbeat = submit, start, end, hb
	return &t, nil
}

func (s *Storage) GetTrial(ctx context.Context, id string) (*trial.Trial, error) {
	row := s.pool.QueryRow(ctx, trialSelectQuery+` WHERE id=$1`, id)
	t, err := scanTrial(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (s *Storage) fetchTrialsWhere(ctx context.Context, clause string, args ...any) ([]*trial.Trial, error) {
	rows, err := s.pool.Query(ctx, trialSelectQuery+" WHERE "+clause, args...)
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
	return s.fetchTrialsWhere(ctx, "experiment_id=$1", experimentID)
}

func (s *Storage) FetchTrialsByStatus(ctx context.Context, experimentID string, status trial.Status) ([]*trial.Trial, error) {
	return s.fetchTrialsWhere(ctx, "experiment_id=$1 AND status=$2", experimentID, string(status))
}

func (s *Storage) FetchNonCompletedTrials(ctx context.Context, experimentID string) ([]*trial.Trial, error) {
	return s.fetchTrialsWhere(ctx, "experiment_id=$1 AND status<>$2", experimentID, string(trial.StatusCompleted))
}

func (s *Storage) FetchPendingTrials(ctx context.Context, experimentID string) ([]*trial.Trial, error) {
	return s.fetchTrialsWhere(ctx, "experiment_id=$1 AND status IN ($2,$3,$4,$5)", experimentID,
		string(trial.StatusNew), string(trial.StatusReserved), string(trial.StatusInterrupted), string(trial.StatusSuspended))
}

func (s *Storage) FetchLostTrials(ctx context.Context, experimentID string, ttl time.Duration) ([]*trial.Trial, error) {
	cutoff := time.Now().Add(-ttl)
	return s.fetchTrialsWhere(ctx, "experiment_id=$1 AND status=$2 AND heartbeat IS NOT NULL AND heartbeat<$3",
		experimentID, string(trial.StatusReserved), cutoff)
}

// ReserveTrial runs SELECT ... FOR UPDATE SKIP LOCKED inside a transaction:
// the database itself serializes concurrent reservers onto distinct rows,
// so there is no optimistic-retry loop here as there is in the sqlite
// backend. The heartbeat sweep for this experiment runs first, inside the
// same transaction, so a just-recovered trial is immediately eligible.
func (s *Storage) ReserveTrial(ctx context.Context, experimentID string, ttl time.Duration) (*trial.Trial, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cutoff := time.Now().Add(-ttl)
	swept, err := tx.Exec(ctx,
		`UPDATE trials SET status=$1 WHERE experiment_id=$2 AND status=$3 AND heartbeat IS NOT NULL AND heartbeat<$4`,
		string(trial.StatusInterrupted), experimentID, string(trial.StatusReserved), cutoff)
	if err != nil {
		return nil, err
	}
	if n := swept.RowsAffected(); n > 0 {
		metrics.HeartbeatSweepRecoveredTotal.WithLabelValues(experimentID).Add(float64(n))
	}

	row := tx.QueryRow(ctx, `
		SELECT id FROM trials
		WHERE experiment_id=$1 AND status IN ($2,$3,$4)
		ORDER BY submit_time NULLS LAST
		FOR UPDATE SKIP LOCKED
		LIMIT 1`,
		experimentID, string(trial.StatusNew), string(trial.StatusInterrupted), string(trial.StatusSuspended))

	var id string
	if err := row.Scan(&id); err != nil {
		if err == pgx.ErrNoRows {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}

	now := time.Now()
	if _, err := tx.Exec(ctx, `UPDATE trials SET status=$1, start_time=$2, heartbeat=$3 WHERE id=$4`,
		string(trial.StatusReserved), now, now, id); err != nil {
		return nil, err
	}

	t, err := scanTrial(tx.QueryRow(ctx, trialSelectQuery+` WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Storage) SetTrialStatus(ctx context.Context, id string, from, to trial.Status, hb *time.Time) (*trial.Trial, error) {
	var tag pgconn.CommandTag
	var err error
	if hb != nil {
		tag, err = s.pool.Exec(ctx, `UPDATE trials SET status=$1, heartbeat=$2 WHERE id=$3 AND status=$4`, string(to), hb, id, string(from))
	} else {
		tag, err = s.pool.Exec(ctx, `UPDATE trials SET status=$1 WHERE id=$2 AND status=$3`, string(to), id, string(from))
	}
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, &storage.ErrFailedUpdate{TrialID: id, Reason: fmt.Sprintf("status no longer %s", from)}
	}
	if to.IsTerminal() {
		now := time.Now()
		_, _ = s.pool.Exec(ctx, `UPDATE trials SET end_time=$1 WHERE id=$2`, now, id)
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
	_, err = s.pool.Exec(ctx, `UPDATE trials SET results=$1 WHERE id=$2`, string(merged), id)
	return err
}

func (s *Storage) UpdateHeartbeat(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE trials SET heartbeat=$1 WHERE id=$2`, time.Now(), id)
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
	_, err = s.pool.Exec(ctx, `INSERT INTO lies (id, experiment_id, params, results) VALUES ($1,$2,$3,$4)`,
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
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM trials WHERE experiment_id=$1 AND status=$2`,
		experimentID, string(status)).Scan(&n)
	return n, err
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if ok := scanAsPgError(err, &pgErr); ok {
		return pgErr.SQLState() == "23505"
	}
	return false
}

func scanAsPgError(err error, target *interface{ SQLState() string }) bool {
	type sqlStater interface{ SQLState() string }
	for err != nil {
		if s, ok := err.(sqlStater); ok {
			*target = s
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

var _ storage.Backend = (*Storage)(nil)
