package dispatch

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/HerbHall/fleetscope/internal/store"
	"github.com/HerbHall/fleetscope/pkg/models"
)

// AuditLog records finished dispatch runs.
type AuditLog interface {
	Record(ctx context.Context, run models.DispatchRun) error
	Recent(ctx context.Context, limit int) ([]models.DispatchRun, error)
}

// nopAudit discards runs.
type nopAudit struct{}

func (nopAudit) Record(context.Context, models.DispatchRun) error { return nil }
func (nopAudit) Recent(context.Context, int) ([]models.DispatchRun, error) {
	return []models.DispatchRun{}, nil
}

// SQLiteAudit stores runs and per-host outcomes in SQLite.
type SQLiteAudit struct {
	db *store.SQLiteStore
}

// Compile-time interface guard.
var _ AuditLog = (*SQLiteAudit)(nil)

// auditComponent keys the audit schema in schema_migrations.
const auditComponent = "dispatch"

// NewSQLiteAudit migrates the audit schema in db.
func NewSQLiteAudit(ctx context.Context, db *store.SQLiteStore) (*SQLiteAudit, error) {
	if err := db.Migrate(ctx, auditComponent, migrations()); err != nil {
		return nil, fmt.Errorf("migrate dispatch audit: %w", err)
	}
	return &SQLiteAudit{db: db}, nil
}

func migrations() []store.Migration {
	return []store.Migration{
		{
			Version:     1,
			Description: "create dispatch runs and outcomes",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE dispatch_runs (
						id         TEXT PRIMARY KEY,
						command    TEXT NOT NULL,
						started_at DATETIME NOT NULL,
						ended_at   DATETIME NOT NULL,
						hosts      INTEGER NOT NULL,
						failed     INTEGER NOT NULL
					)`,
					`CREATE TABLE dispatch_outcomes (
						run_id      TEXT NOT NULL REFERENCES dispatch_runs(id) ON DELETE CASCADE,
						position    INTEGER NOT NULL,
						host        TEXT NOT NULL,
						stdout      TEXT NOT NULL,
						error       TEXT NOT NULL,
						duration_ns INTEGER NOT NULL,
						PRIMARY KEY (run_id, position)
					)`,
					`CREATE INDEX idx_dispatch_runs_started ON dispatch_runs(started_at)`,
				}
				for _, s := range stmts {
					if _, err := tx.Exec(s); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}

// Record stores run and its outcomes in one transaction.
func (a *SQLiteAudit) Record(ctx context.Context, run models.DispatchRun) error {
	return a.db.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO dispatch_runs (id, command, started_at, ended_at, hosts, failed)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, run.Command, run.StartedAt.UTC(), run.EndedAt.UTC(), len(run.Outcomes), run.FailedCount(),
		)
		if err != nil {
			return fmt.Errorf("insert run %s: %w", run.ID, err)
		}
		for i, o := range run.Outcomes {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO dispatch_outcomes (run_id, position, host, stdout, error, duration_ns)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				run.ID, i, o.Host, o.Stdout, o.Error, int64(o.Duration),
			)
			if err != nil {
				return fmt.Errorf("insert outcome %s/%s: %w", run.ID, o.Host, err)
			}
		}
		return nil
	})
}

// Recent returns up to limit runs, newest first, each with its outcomes in
// dispatch order.
func (a *SQLiteAudit) Recent(ctx context.Context, limit int) ([]models.DispatchRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.DB().QueryContext(ctx,
		`SELECT id, command, started_at, ended_at FROM dispatch_runs
		 ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	runs := []models.DispatchRun{}
	for rows.Next() {
		var r models.DispatchRun
		if err := rows.Scan(&r.ID, &r.Command, &r.StartedAt, &r.EndedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// The store has a single connection, so outcomes are read after the
	// run cursor is closed.
	for i := range runs {
		outcomes, err := a.outcomes(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Outcomes = outcomes
	}
	return runs, nil
}

func (a *SQLiteAudit) outcomes(ctx context.Context, runID string) ([]models.CommandOutcome, error) {
	rows, err := a.db.DB().QueryContext(ctx,
		`SELECT host, stdout, error, duration_ns FROM dispatch_outcomes
		 WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes for %s: %w", runID, err)
	}
	defer rows.Close()

	out := []models.CommandOutcome{}
	for rows.Next() {
		var o models.CommandOutcome
		var ns int64
		if err := rows.Scan(&o.Host, &o.Stdout, &o.Error, &ns); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Duration = time.Duration(ns)
		out = append(out, o)
	}
	return out, rows.Err()
}
