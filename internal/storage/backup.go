package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"gametime-keeper/internal/models"
)

// ExportBackup bundles the current config and the full log history into a
// UTF-8 JSON document stamped with the export instant and format version.
func (s *Store) ExportBackup(now time.Time) ([]byte, error) {
	cfg, err := s.LoadConfig()
	if err != nil {
		return nil, err
	}
	logs, err := s.AllLogs()
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []models.UsageLogEntry{}
	}

	doc := models.BackupDocument{
		Config:        cfg,
		Logs:          logs,
		ExportedAt:    now.UnixMilli(),
		FormatVersion: models.SchemaVersion,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, models.PersistenceError(err)
	}
	return data, nil
}

// ImportBackup validates and applies a backup document, fully replacing the
// current config and log store (no merge). Validation happens before any
// write: a malformed or too-new document leaves existing state untouched.
// Returns the config now in effect.
func (s *Store) ImportBackup(data []byte) (models.AppConfig, error) {
	var doc struct {
		Config        json.RawMessage        `json:"config"`
		Logs          []models.UsageLogEntry `json:"logs"`
		FormatVersion *int                   `json:"formatVersion"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.AppConfig{}, fmt.Errorf("%w: %w", models.ErrInvalidFormat, err)
	}
	if len(doc.Config) == 0 || string(doc.Config) == "null" || doc.FormatVersion == nil {
		return models.AppConfig{}, models.ErrInvalidFormat
	}
	if *doc.FormatVersion > models.SchemaVersion {
		return models.AppConfig{}, models.ErrUnsupportedVersion
	}

	cfg, migrated, err := Migrate(*doc.FormatVersion, doc.Config)
	if err != nil {
		return models.AppConfig{}, err
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return models.AppConfig{}, models.PersistenceError(err)
	}
	defer tx.Rollback()

	if err := upsertConfig(tx, cfg); err != nil {
		return models.AppConfig{}, err
	}

	if _, err := tx.Exec("DELETE FROM usage_logs"); err != nil {
		return models.AppConfig{}, models.PersistenceError(err)
	}
	for _, e := range doc.Logs {
		if _, err := tx.Exec(`
			INSERT INTO usage_logs (id, profile_id, started_at, ended_at, kind, delta_minutes, note)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.ProfileID, e.StartedAt, e.EndedAt, string(e.Kind), e.DeltaMinutes, e.Note); err != nil {
			return models.AppConfig{}, models.PersistenceError(err)
		}
	}

	// Older documents carry profile-less log entries; attach them to the
	// profile lifted by the migration, inside the same transaction so a
	// failure rolls back the whole import.
	if migrated && len(cfg.Profiles) > 0 {
		if err := backfillLogs(tx, cfg.Profiles[0].ID); err != nil {
			return models.AppConfig{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.AppConfig{}, models.PersistenceError(err)
	}
	return cfg, nil
}

// ClearAll wipes config and logs, then re-seeds the first-run default.
// Returns the default config now in effect.
func (s *Store) ClearAll() (models.AppConfig, error) {
	tx, err := s.conn.Begin()
	if err != nil {
		return models.AppConfig{}, models.PersistenceError(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM app_config"); err != nil {
		return models.AppConfig{}, models.PersistenceError(err)
	}
	if _, err := tx.Exec("DELETE FROM usage_logs"); err != nil {
		return models.AppConfig{}, models.PersistenceError(err)
	}
	if err := tx.Commit(); err != nil {
		return models.AppConfig{}, models.PersistenceError(err)
	}

	cfg := models.DefaultConfig()
	if err := s.SaveConfig(cfg); err != nil {
		return models.AppConfig{}, err
	}
	return cfg, nil
}
