package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/sluice/pkg/control"
)

// SQLiteStore implements Store on a SQLite database file.
//
// The database runs in WAL mode with a single connection, which serializes
// writers and keeps version allocation race-free.
type SQLiteStore struct {
	db *sql.DB

	verifyStmt *sql.Stmt
	fetchStmt  *sql.Stmt
}

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteConfig{Path: path})
}

// NewSQLiteStoreWithConfig opens the database described by cfg.
func NewSQLiteStoreWithConfig(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS api_keys (
		key_hash   TEXT PRIMARY KEY,
		id         TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL,
		team       TEXT NOT NULL DEFAULT '',
		active     INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS config_documents (
		name       TEXT NOT NULL,
		version    INTEGER NOT NULL,
		document   TEXT NOT NULL,
		active     INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (name, version)
	);

	CREATE INDEX IF NOT EXISTS idx_config_active ON config_documents(name, active, version);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.verifyStmt, err = s.db.Prepare(`
		SELECT id, name, team, active FROM api_keys WHERE key_hash = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare verify statement: %w", err)
	}

	s.fetchStmt, err = s.db.Prepare(`
		SELECT document FROM config_documents
		WHERE name = ? AND active = 1
		ORDER BY version DESC
		LIMIT 1
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare fetch statement: %w", err)
	}
	return nil
}

// Verify implements control.CredentialStore.
func (s *SQLiteStore) Verify(ctx context.Context, value string) (control.Credential, control.CredentialStatus, error) {
	var rec KeyRecord
	err := s.verifyStmt.QueryRowContext(ctx, HashKey(value)).Scan(&rec.ID, &rec.Name, &rec.Team, &rec.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return control.Credential{}, control.CredentialNotFound, nil
	}
	if err != nil {
		return control.Credential{}, control.CredentialNotFound, fmt.Errorf("verify key: %w", err)
	}
	cred, st := status(rec)
	return cred, st, nil
}

// Fetch implements control.ConfigStore.
func (s *SQLiteStore) Fetch(ctx context.Context, name string) (control.Document, error) {
	var data string
	err := s.fetchStmt.QueryRowContext(ctx, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch config %q: %w", name, err)
	}
	return decodeDocument([]byte(data))
}

// AddKey implements Store.
func (s *SQLiteStore) AddKey(ctx context.Context, value string, rec KeyRecord) error {
	if err := validateKey(value, rec); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM api_keys WHERE key_hash = ? OR id = ?`,
		HashKey(value), rec.ID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check key: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: id %q", ErrKeyExists, rec.ID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, id, name, team, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		HashKey(value), rec.ID, rec.Name, rec.Team, rec.Active, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert key: %w", err)
	}
	return tx.Commit()
}

// SetKeyActive implements Store.
func (s *SQLiteStore) SetKeyActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("update key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, id)
	}
	return nil
}

// ListKeys implements Store.
func (s *SQLiteStore) ListKeys(ctx context.Context) ([]KeyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, team, active, created_at FROM api_keys ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var out []KeyRecord
	for rows.Next() {
		var (
			rec     KeyRecord
			created int64
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Team, &rec.Active, &created); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		rec.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PutConfig implements Store.
func (s *SQLiteStore) PutConfig(ctx context.Context, name string, doc control.Document) (int, error) {
	if err := validateConfigName(name); err != nil {
		return 0, err
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var version int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM config_documents WHERE name = ?`, name,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("allocate version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO config_documents (name, version, document, active, created_at) VALUES (?, ?, ?, 1, ?)`,
		name, version, string(data), time.Now().UTC().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert config: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return version, nil
}

// DeactivateConfig implements Store.
func (s *SQLiteStore) DeactivateConfig(ctx context.Context, name string, version int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE config_documents SET active = 0 WHERE name = ? AND version = ?`, name, version)
	if err != nil {
		return fmt.Errorf("deactivate config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s@%d", ErrVersionNotFound, name, version)
	}
	return nil
}

// ConfigVersions implements Store.
func (s *SQLiteStore) ConfigVersions(ctx context.Context, name string) ([]ConfigVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, document, active, created_at FROM config_documents WHERE name = ? ORDER BY version`, name)
	if err != nil {
		return nil, fmt.Errorf("list config versions: %w", err)
	}
	defer rows.Close()

	var out []ConfigVersion
	for rows.Next() {
		var (
			v       = ConfigVersion{Name: name}
			data    string
			created int64
		)
		if err := rows.Scan(&v.Version, &data, &v.Active, &created); err != nil {
			return nil, fmt.Errorf("scan config version: %w", err)
		}
		if v.Document, err = decodeDocument([]byte(data)); err != nil {
			return nil, err
		}
		v.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, v)
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s.verifyStmt != nil {
		s.verifyStmt.Close()
	}
	if s.fetchStmt != nil {
		s.fetchStmt.Close()
	}
	return s.db.Close()
}
