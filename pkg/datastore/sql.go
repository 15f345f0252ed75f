package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/gorelay/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05.000"

// SQLStore is the SQLite-backed DataStore.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens (or creates) a SQLite database and runs migrations.
func NewSQLStore(dbPath string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("datastore: open db: %w", err)
	}

	ctx := context.Background()

	// WAL keeps catalog reads from blocking on audit-log writes
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set busy_timeout: %w", err)
	}

	s := &SQLStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS channels (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT    NOT NULL UNIQUE CHECK(length(name) > 1 AND length(name) <= 50),
		created_at TEXT    NOT NULL
	);

	CREATE TABLE IF NOT EXISTS connections (
		id              TEXT PRIMARY KEY,
		remote_addr     TEXT NOT NULL DEFAULT '',
		transport       TEXT NOT NULL DEFAULT 'tcp',
		nickname        TEXT NOT NULL DEFAULT '',
		connected_at    TEXT NOT NULL,
		disconnected_at TEXT
	);
	`
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version      int
		statements   []string
		ignoreErrors bool
	}{
		{
			version:    1,
			statements: []string{schema},
		},
		{
			version: 2,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS idx_connections_connected_at ON connections (connected_at)",
			},
			ignoreErrors: true,
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if err := s.execMigration(ctx, stmt, m.ignoreErrors); err != nil {
				return err
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("datastore: create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("datastore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("datastore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("datastore: read schema version: %w", err)
	}
	return version, nil
}

func (s *SQLStore) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("datastore: update schema version: %w", err)
	}
	return nil
}

func (s *SQLStore) execMigration(ctx context.Context, stmt string, ignoreErrors bool) error {
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		if ignoreErrors {
			return nil
		}
		return fmt.Errorf("datastore: migrate: %w", err)
	}
	return nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

// ---- Channels ----

// EnsureChannel records a channel name if it is not present yet.
func (s *SQLStore) EnsureChannel(ctx context.Context, name string) (*model.Channel, bool, error) {
	if err := model.ValidateChannelName(name); err != nil {
		return nil, false, fmt.Errorf("datastore: ensure channel: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO channels (name, created_at) VALUES (?, ?)",
		name, formatDBTime(now))
	if err != nil {
		return nil, false, fmt.Errorf("datastore: ensure channel: %w", err)
	}
	n, _ := res.RowsAffected()

	ch, err := s.GetChannelByName(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if ch == nil {
		return nil, false, fmt.Errorf("datastore: ensure channel: %q vanished after insert", name)
	}
	return ch, n > 0, nil
}

// GetChannelByName retrieves a channel by name.
func (s *SQLStore) GetChannelByName(ctx context.Context, name string) (*model.Channel, error) {
	ch := &model.Channel{}
	var createdAt string
	err := s.db.QueryRowContext(ctx, "SELECT id, name, created_at FROM channels WHERE name = ?", name).
		Scan(&ch.ID, &ch.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get channel: %w", err)
	}
	if ch.CreatedAt, err = parseDBTime(createdAt); err != nil {
		return nil, fmt.Errorf("datastore: get channel: %w", err)
	}
	return ch, nil
}

// ListChannels returns all catalogued channels.
func (s *SQLStore) ListChannels(ctx context.Context) ([]model.Channel, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at FROM channels ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("datastore: list channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channels []model.Channel
	for rows.Next() {
		var ch model.Channel
		var createdAt string
		if err := rows.Scan(&ch.ID, &ch.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan channel: %w", err)
		}
		if ch.CreatedAt, err = parseDBTime(createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan channel: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// ---- Connections ----

// OpenConnection inserts a new audit record.
func (s *SQLStore) OpenConnection(ctx context.Context, rec *model.ConnectionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("datastore: open connection: empty id")
	}
	if rec.ConnectedAt.IsZero() {
		rec.ConnectedAt = time.Now().UTC()
	}
	if rec.Transport == "" {
		rec.Transport = "tcp"
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO connections (id, remote_addr, transport, nickname, connected_at) VALUES (?, ?, ?, ?, ?)",
		rec.ID, rec.RemoteAddr, rec.Transport, rec.Nickname, formatDBTime(rec.ConnectedAt))
	if err != nil {
		return fmt.Errorf("datastore: open connection: %w", err)
	}
	return nil
}

// SetConnectionNickname stores the latest nickname claimed on a connection.
func (s *SQLStore) SetConnectionNickname(ctx context.Context, id, nickname string) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE connections SET nickname = ? WHERE id = ?", nickname, id); err != nil {
		return fmt.Errorf("datastore: set connection nickname: %w", err)
	}
	return nil
}

// CloseConnection stamps the disconnect time of a record.
func (s *SQLStore) CloseConnection(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE connections SET disconnected_at = ? WHERE id = ? AND disconnected_at IS NULL",
		formatDBTime(at), id); err != nil {
		return fmt.Errorf("datastore: close connection: %w", err)
	}
	return nil
}

// GetConnection retrieves one audit record.
func (s *SQLStore) GetConnection(ctx context.Context, id string) (*model.ConnectionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, remote_addr, transport, nickname, connected_at, disconnected_at FROM connections WHERE id = ?", id)
	rec, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get connection: %w", err)
	}
	return rec, nil
}

// ListConnections returns audit records, newest first.
func (s *SQLStore) ListConnections(ctx context.Context, limit int) ([]model.ConnectionRecord, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, remote_addr, transport, nickname, connected_at, disconnected_at FROM connections ORDER BY connected_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("datastore: list connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.ConnectionRecord
	for rows.Next() {
		rec, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan connection: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConnection(row scanner) (*model.ConnectionRecord, error) {
	var rec model.ConnectionRecord
	var connectedAt string
	var disconnectedAt sql.NullString
	if err := row.Scan(&rec.ID, &rec.RemoteAddr, &rec.Transport, &rec.Nickname, &connectedAt, &disconnectedAt); err != nil {
		return nil, err
	}
	var err error
	if rec.ConnectedAt, err = parseDBTime(connectedAt); err != nil {
		return nil, err
	}
	if disconnectedAt.Valid {
		if rec.DisconnectedAt, err = parseDBTime(disconnectedAt.String); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}
