// Package storage is the persistence gateway: a single current-config
// snapshot plus an append-only usage log with rotation, backed by SQLite.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"gametime-keeper/internal/models"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// Store wraps a sql.DB connection.
type Store struct {
	conn      *sql.DB
	retention int
	logger    *zap.Logger
}

// Open opens the database at path (":memory:" for tests), creates the schema
// and returns the store. retention is the usage-log rotation ceiling.
func Open(path string, retention int, logger *zap.Logger) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, models.PersistenceError(err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, models.PersistenceError(err)
	}

	s := &Store{conn: conn, retention: retention, logger: logger}
	if err := s.createSchema(); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS app_config (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL,
			document TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS usage_logs (
			id TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL,
			kind TEXT NOT NULL,
			delta_minutes INTEGER NOT NULL,
			note TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_logs_started_at ON usage_logs(started_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.conn.Exec(stmt); err != nil {
			return models.PersistenceError(err)
		}
	}
	return nil
}

// LoadConfig returns the current config snapshot. On first run it seeds and
// persists the default config. Legacy snapshots are migrated in place; log
// entries that predate the profile list are back-filled with the lifted
// profile's id.
func (s *Store) LoadConfig() (models.AppConfig, error) {
	var (
		version  int
		document []byte
	)
	err := s.conn.QueryRow(
		"SELECT schema_version, document FROM app_config WHERE id = 1",
	).Scan(&version, &document)

	if errors.Is(err, sql.ErrNoRows) {
		cfg := models.DefaultConfig()
		if err := s.SaveConfig(cfg); err != nil {
			return models.AppConfig{}, err
		}
		return cfg, nil
	}
	if err != nil {
		return models.AppConfig{}, models.PersistenceError(err)
	}

	cfg, migrated, err := Migrate(version, document)
	if err != nil {
		return models.AppConfig{}, err
	}
	if migrated {
		if err := s.applyMigration(cfg); err != nil {
			return models.AppConfig{}, err
		}
		s.logger.Info("migrated stored config",
			zap.Int("from_version", version),
			zap.Int("to_version", cfg.SchemaVersion),
		)
	}
	return cfg, nil
}

// applyMigration persists a migrated snapshot and back-fills profile-less
// log entries in one transaction, so an interrupted migration re-runs on
// the next load instead of stranding half-written state.
func (s *Store) applyMigration(cfg models.AppConfig) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return models.PersistenceError(err)
	}
	defer tx.Rollback()

	if err := upsertConfig(tx, cfg); err != nil {
		return err
	}
	if len(cfg.Profiles) > 0 {
		if err := backfillLogs(tx, cfg.Profiles[0].ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.PersistenceError(err)
	}
	return nil
}

// SaveConfig replaces the single current snapshot atomically.
func (s *Store) SaveConfig(cfg models.AppConfig) error {
	return upsertConfig(s.conn, cfg)
}

// execer abstracts *sql.DB and *sql.Tx so config writes and log back-fills
// can run standalone or inside a transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertConfig(db execer, cfg models.AppConfig) error {
	document, err := json.Marshal(cfg)
	if err != nil {
		return models.PersistenceError(err)
	}
	_, err = db.Exec(`
		INSERT INTO app_config (id, schema_version, document) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET schema_version = excluded.schema_version,
			document = excluded.document
	`, cfg.SchemaVersion, document)
	if err != nil {
		return models.PersistenceError(err)
	}
	return nil
}

func backfillLogs(db execer, profileID string) error {
	_, err := db.Exec(
		"UPDATE usage_logs SET profile_id = ? WHERE profile_id = ''",
		profileID,
	)
	if err != nil {
		return models.PersistenceError(err)
	}
	return nil
}

// AppendLog appends an entry and rotates out the oldest entries past the
// retention ceiling. Rotation failures are logged and do not fail the append.
func (s *Store) AppendLog(entry models.UsageLogEntry) error {
	_, err := s.conn.Exec(`
		INSERT INTO usage_logs (id, profile_id, started_at, ended_at, kind, delta_minutes, note)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.ProfileID, entry.StartedAt, entry.EndedAt, string(entry.Kind), entry.DeltaMinutes, entry.Note)
	if err != nil {
		return models.PersistenceError(err)
	}

	if err := s.rotate(); err != nil {
		s.logger.Warn("usage log rotation failed", zap.Error(err))
	}
	return nil
}

func (s *Store) rotate() error {
	var count int
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM usage_logs").Scan(&count); err != nil {
		return err
	}
	if count <= s.retention {
		return nil
	}
	_, err := s.conn.Exec(`
		DELETE FROM usage_logs WHERE id IN (
			SELECT id FROM usage_logs ORDER BY started_at ASC, id ASC LIMIT ?
		)
	`, count-s.retention)
	return err
}

// ListLogs returns the most recent limit entries, newest first, optionally
// filtered to one profile (empty profileID means all).
func (s *Store) ListLogs(limit int, profileID string) ([]models.UsageLogEntry, error) {
	query := "SELECT id, profile_id, started_at, ended_at, kind, delta_minutes, note FROM usage_logs"
	args := []any{}
	if profileID != "" {
		query += " WHERE profile_id = ?"
		args = append(args, profileID)
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, models.PersistenceError(err)
	}
	defer rows.Close()

	return scanLogs(rows)
}

// AllLogs returns every stored entry in chronological order, for export.
func (s *Store) AllLogs() ([]models.UsageLogEntry, error) {
	rows, err := s.conn.Query(
		"SELECT id, profile_id, started_at, ended_at, kind, delta_minutes, note FROM usage_logs ORDER BY started_at ASC, id ASC",
	)
	if err != nil {
		return nil, models.PersistenceError(err)
	}
	defer rows.Close()

	return scanLogs(rows)
}

func scanLogs(rows *sql.Rows) ([]models.UsageLogEntry, error) {
	var entries []models.UsageLogEntry
	for rows.Next() {
		var (
			e    models.UsageLogEntry
			kind string
		)
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.StartedAt, &e.EndedAt, &kind, &e.DeltaMinutes, &e.Note); err != nil {
			return nil, models.PersistenceError(err)
		}
		e.Kind = models.LogKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, models.PersistenceError(err)
	}
	return entries, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
