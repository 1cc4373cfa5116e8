package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // pure Go SQLite driver, registered as "sqlite"

	"mercator-hq/sentinel/pkg/limits"
)

// SQLite driver names accepted by SQLiteStoreConfig.Driver.
const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

// SQLiteStore implements Store using SQLite for persistence.
// Each request timestamp is one row, so a log survives process restarts and
// is visible to every process sharing the database file. It suits
// single-node deployments; use Redis when counters must be shared between
// hosts.
//
// SQLiteStore uses a write-ahead log (WAL) and a single connection, which
// serializes every transaction and makes each increment atomic.
type SQLiteStore struct {
	db        *sql.DB
	dbPath    string
	closeOnce sync.Once

	// preparedStatements contains pre-compiled SQL statements for performance
	trimStmt   *sql.Stmt
	insertStmt *sql.Stmt
	countStmt  *sql.Stmt
	peekStmt   *sql.Stmt
	keysStmt   *sql.Stmt
	resetStmt  *sql.Stmt
	sweepStmt  *sql.Stmt
}

// SQLiteStoreConfig configures the SQLite store.
type SQLiteStoreConfig struct {
	// Path is the path to the SQLite database file.
	Path string

	// Driver selects the database/sql driver: "sqlite" (modernc.org/sqlite,
	// pure Go) or "sqlite3" (github.com/mattn/go-sqlite3, requires cgo).
	// Default: "sqlite"
	Driver string

	// BusyTimeout is how long to wait for locks held by other processes.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteStore creates a new SQLite store with default settings.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteStoreConfig{Path: path})
}

// NewSQLiteStoreWithConfig creates a new SQLite store with custom configuration.
func NewSQLiteStoreWithConfig(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverModernc
	}
	if cfg.Driver != DriverModernc && cfg.Driver != DriverMattn {
		return nil, fmt.Errorf("unsupported sqlite driver %q", cfg.Driver)
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		dbPath: cfg.Path,
	}

	if err := store.initSchema(cfg.BusyTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return store, nil
}

// initSchema applies connection pragmas and creates the schema if it doesn't exist.
func (s *SQLiteStore) initSchema(busyTimeout time.Duration) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS window_events (
		window_key TEXT NOT NULL,
		client_id TEXT NOT NULL,
		ts INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_window_events_key_ts ON window_events(window_key, ts);
	CREATE INDEX IF NOT EXISTS idx_window_events_client ON window_events(client_id);
	CREATE INDEX IF NOT EXISTS idx_window_events_expires ON window_events(expires_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.trimStmt, err = s.db.Prepare(`DELETE FROM window_events WHERE window_key = ? AND ts <= ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare trim statement: %w", err)
	}

	s.insertStmt, err = s.db.Prepare(`
		INSERT INTO window_events (window_key, client_id, ts, expires_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	s.countStmt, err = s.db.Prepare(`SELECT COUNT(*), MIN(ts) FROM window_events WHERE window_key = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare count statement: %w", err)
	}

	s.peekStmt, err = s.db.Prepare(`SELECT COUNT(*), MIN(ts) FROM window_events WHERE window_key = ? AND ts > ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare peek statement: %w", err)
	}

	s.keysStmt, err = s.db.Prepare(`SELECT COUNT(DISTINCT window_key) FROM window_events WHERE client_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare keys statement: %w", err)
	}

	s.resetStmt, err = s.db.Prepare(`DELETE FROM window_events WHERE client_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare reset statement: %w", err)
	}

	s.sweepStmt, err = s.db.Prepare(`DELETE FROM window_events WHERE expires_at <= ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare sweep statement: %w", err)
	}

	return nil
}

// Increment trims and appends to one log inside a transaction.
func (s *SQLiteStore) Increment(ctx context.Context, key limits.WindowKey, now time.Time, duration time.Duration) (Count, error) {
	counts, err := s.IncrementBatch(ctx, now, []Increment{{Key: key, Duration: duration}})
	if err != nil {
		return Count{}, err
	}
	return counts[0], nil
}

// IncrementBatch applies every increment in one transaction.
func (s *SQLiteStore) IncrementBatch(ctx context.Context, now time.Time, batch []Increment) ([]Count, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeError("increment", "", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	counts := make([]Count, len(batch))
	for i, inc := range batch {
		k := inc.Key.String()
		cutoff := now.Add(-inc.Duration)

		if _, err := tx.StmtContext(ctx, s.trimStmt).ExecContext(ctx, k, cutoff.UnixNano()); err != nil {
			return nil, storeError("increment", k, fmt.Errorf("failed to trim: %w", err))
		}
		if _, err := tx.StmtContext(ctx, s.insertStmt).ExecContext(ctx,
			k, string(inc.Key.Client), now.UnixNano(), now.Add(inc.Duration).UnixNano(),
		); err != nil {
			return nil, storeError("increment", k, fmt.Errorf("failed to insert: %w", err))
		}

		c, err := scanCount(tx.StmtContext(ctx, s.countStmt).QueryRowContext(ctx, k))
		if err != nil {
			return nil, storeError("increment", k, err)
		}
		counts[i] = c
	}

	if err := tx.Commit(); err != nil {
		return nil, storeError("increment", "", fmt.Errorf("failed to commit: %w", err))
	}
	return counts, nil
}

// Peek counts the live rows of one log.
func (s *SQLiteStore) Peek(ctx context.Context, key limits.WindowKey, now time.Time, duration time.Duration) (Count, error) {
	k := key.String()
	c, err := scanCount(s.peekStmt.QueryRowContext(ctx, k, now.Add(-duration).UnixNano()))
	if err != nil {
		return Count{}, storeError("peek", k, err)
	}
	return c, nil
}

// Reset deletes every row of the client and returns the number of logs removed.
func (s *SQLiteStore) Reset(ctx context.Context, client limits.ClientID) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeError("reset", string(client), fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	var keys int
	if err := tx.StmtContext(ctx, s.keysStmt).QueryRowContext(ctx, string(client)).Scan(&keys); err != nil {
		return 0, storeError("reset", string(client), fmt.Errorf("failed to count keys: %w", err))
	}
	if _, err := tx.StmtContext(ctx, s.resetStmt).ExecContext(ctx, string(client)); err != nil {
		return 0, storeError("reset", string(client), fmt.Errorf("failed to delete: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return 0, storeError("reset", string(client), fmt.Errorf("failed to commit: %w", err))
	}
	return keys, nil
}

// Sweep deletes expired rows and returns how many were removed.
func (s *SQLiteStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	result, err := s.sweepStmt.ExecContext(ctx, now.UnixNano())
	if err != nil {
		return 0, storeError("sweep", "", fmt.Errorf("failed to sweep: %w", err))
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, storeError("sweep", "", fmt.Errorf("failed to get rows affected: %w", err))
	}

	// Keep the WAL from growing without bound between sweeps
	_, _ = s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)")

	return int(deleted), nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return storeError("ping", "", s.db.PingContext(ctx))
}

// Close releases any resources held by the store.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteStore) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{
			s.trimStmt, s.insertStmt, s.countStmt, s.peekStmt,
			s.keysStmt, s.resetStmt, s.sweepStmt,
		} {
			if stmt != nil {
				stmt.Close()
			}
		}

		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

func scanCount(row *sql.Row) (Count, error) {
	var (
		n      int
		oldest sql.NullInt64
	)
	if err := row.Scan(&n, &oldest); err != nil {
		return Count{}, fmt.Errorf("failed to count: %w", err)
	}

	c := Count{Count: n}
	if oldest.Valid {
		c.Oldest = time.Unix(0, oldest.Int64)
	}
	return c, nil
}
