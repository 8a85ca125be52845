package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEMA
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS students (
    id           VARCHAR(64) PRIMARY KEY,
    display_name VARCHAR(100) NOT NULL DEFAULT '',
    state        VARCHAR(32)  NOT NULL DEFAULT 'normal',
    created_at   TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_state CHECK (state IN ('normal', 'needs_intervention', 'remedial'))
);

CREATE INDEX IF NOT EXISTS idx_students_state ON students(state) WHERE state != 'normal';
`

const migration001Down = `
DROP TABLE IF EXISTS students;
`

const migration002Up = `
-- Append-only: rows are never updated or deleted by the service.
CREATE TABLE IF NOT EXISTS daily_logs (
    id            BIGSERIAL PRIMARY KEY,
    student_id    VARCHAR(64) NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    quiz_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
    focus_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
    outcome       VARCHAR(100) NOT NULL,
    created_at    TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_focus CHECK (focus_minutes >= 0)
);

CREATE INDEX IF NOT EXISTS idx_daily_logs_student_created ON daily_logs(student_id, created_at DESC, id DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS daily_logs;
`

const migration003Up = `
CREATE TABLE IF NOT EXISTS interventions (
    id               VARCHAR(64) PRIMARY KEY,
    student_id       VARCHAR(64) NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    task_description TEXT NOT NULL,
    status           VARCHAR(16) NOT NULL DEFAULT 'pending',
    assigned_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    completed_at     TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_status CHECK (status IN ('pending', 'completed')),
    CONSTRAINT completed_has_timestamp CHECK (status = 'pending' OR completed_at IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_interventions_pending
    ON interventions(student_id, assigned_at DESC) WHERE status = 'pending';
`

const migration003Down = `
DROP TABLE IF EXISTS interventions;
`

// Migration is one versioned schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// GetMigrations returns the embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_students", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_daily_logs", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_interventions", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migrator applies and reverts migrations, tracking them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator uses the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	migs := GetMigrations()
	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })
	return &Migrator{conn: conn, migrations: migs, tableName: "schema_migrations"}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`, m.tableName))
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var v int
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		out[v] = at
	}
	return out, rows.Err()
}

// Up applies every pending migration, each in its own transaction. It
// returns the versions applied.
func (m *Migrator) Up(ctx context.Context) ([]int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	var versions []int
	for _, mig := range m.migrations {
		if _, ok := done[mig.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName), mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return versions, fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		versions = append(versions, mig.Version)
	}
	return versions, nil
}

// Down reverts the most recently applied migration. It returns 0 when
// nothing was applied.
func (m *Migrator) Down(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	last := 0
	for v := range done {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return 0, nil
	}

	var mig *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			mig = &m.migrations[i]
			break
		}
	}
	if mig == nil || mig.DownSQL == "" {
		return 0, fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	err = m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: rollback %d: %v", ErrMigrationFailed, last, err)
	}
	return last, nil
}

// Status lists all known migrations with their applied time.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := done[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}
