package storage

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"gametime-keeper/internal/models"
)

// legacyConfigV1 is the original single-child snapshot layout: the balance
// fields live at the top level and logs carry no profile reference.
type legacyConfigV1 struct {
	PIN              string `json:"pin"`
	RemainingMinutes int    `json:"remainingMinutes"`
	StartTimestamp   int64  `json:"startTimestamp"` // epoch ms, 0 = idle
	Version          int    `json:"version"`
}

// Migrate transforms a stored config document at the given schema version
// into the current shape. It is pure with respect to storage (no engine
// required) and chainable across version steps. The returned bool reports
// whether any transformation was applied; re-running against current-version
// data is a no-op.
func Migrate(version int, document []byte) (models.AppConfig, bool, error) {
	if version > models.SchemaVersion {
		return models.AppConfig{}, false, models.ErrUnsupportedVersion
	}
	if version < 1 {
		return models.AppConfig{}, false, fmt.Errorf("%w: unknown schema version %d", models.ErrInvalidFormat, version)
	}

	migrated := false
	for v := version; v < models.SchemaVersion; v++ {
		var err error
		switch v {
		case 1:
			document, err = migrateV1toV2(document)
		default:
			err = fmt.Errorf("%w: no migration from schema version %d", models.ErrInvalidFormat, v)
		}
		if err != nil {
			return models.AppConfig{}, false, err
		}
		migrated = true
	}

	var cfg models.AppConfig
	if err := json.Unmarshal(document, &cfg); err != nil {
		return models.AppConfig{}, false, fmt.Errorf("%w: %w", models.ErrInvalidFormat, err)
	}
	cfg.SchemaVersion = models.SchemaVersion
	return cfg, migrated, nil
}

// migrateV1toV2 lifts the implicit single child into an explicit one-entry
// profile list and selects it. The profile gets a fresh id; callers are
// responsible for back-filling that id onto profile-less log entries.
func migrateV1toV2(document []byte) ([]byte, error) {
	var legacy legacyConfigV1
	if err := json.Unmarshal(document, &legacy); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidFormat, err)
	}

	profile := models.Profile{
		ID:                 uuid.NewString(),
		Name:               "Child 1",
		RemainingMinutes:   legacy.RemainingMinutes,
		ActiveSessionStart: legacy.StartTimestamp,
	}
	cfg := models.AppConfig{
		PIN:               legacy.PIN,
		Profiles:          []models.Profile{profile},
		SelectedProfileID: profile.ID,
		SchemaVersion:     2,
	}
	return json.Marshal(cfg)
}
