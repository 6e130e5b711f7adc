package storage

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"gametime-keeper/internal/models"
)

// StoreTestSuite provides a test suite for persistence gateway operations
type StoreTestSuite struct {
	suite.Suite
	store *Store
}

// SetupTest runs before each test
func (suite *StoreTestSuite) SetupTest() {
	store, err := Open(":memory:", 100, zap.NewNop())
	require.NoError(suite.T(), err, "failed to create test store")
	suite.store = store
}

// TearDownTest runs after each test
func (suite *StoreTestSuite) TearDownTest() {
	if suite.store != nil {
		suite.store.Close()
	}
}

func (suite *StoreTestSuite) TestLoadConfigSeedsFirstRun() {
	cfg, err := suite.store.LoadConfig()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.DefaultPIN, cfg.PIN)
	assert.Empty(suite.T(), cfg.Profiles)
	assert.Equal(suite.T(), models.SchemaVersion, cfg.SchemaVersion)

	// The seeded default is persisted, not just returned.
	again, err := suite.store.LoadConfig()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), cfg, again)
}

func (suite *StoreTestSuite) TestSaveConfigRoundTrip() {
	cfg := models.AppConfig{
		PIN: "4321",
		Profiles: []models.Profile{
			{ID: "p1", Name: "Aki", RemainingMinutes: 45},
			{ID: "p2", Name: "Yuu", RemainingMinutes: 10, ActiveSessionStart: 1700000000000},
		},
		SelectedProfileID: "p2",
		SchemaVersion:     models.SchemaVersion,
	}
	require.NoError(suite.T(), suite.store.SaveConfig(cfg))

	loaded, err := suite.store.LoadConfig()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), cfg, loaded)
}

func (suite *StoreTestSuite) TestSaveConfigReplacesSingleRecord() {
	first := models.DefaultConfig()
	require.NoError(suite.T(), suite.store.SaveConfig(first))

	second := first
	second.PIN = "9999"
	require.NoError(suite.T(), suite.store.SaveConfig(second))

	loaded, err := suite.store.LoadConfig()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "9999", loaded.PIN)

	var count int
	require.NoError(suite.T(), suite.store.conn.QueryRow("SELECT COUNT(*) FROM app_config").Scan(&count))
	assert.Equal(suite.T(), 1, count, "exactly one config record must exist")
}

func (suite *StoreTestSuite) TestLoadConfigMigratesLegacySnapshot() {
	legacy := `{"pin":"5678","remainingMinutes":42,"startTimestamp":1700000000000,"version":1}`
	_, err := suite.store.conn.Exec(
		"INSERT INTO app_config (id, schema_version, document) VALUES (1, 1, ?)", legacy,
	)
	require.NoError(suite.T(), err)

	// Two profile-less entries that must be back-filled.
	for i := 0; i < 2; i++ {
		require.NoError(suite.T(), suite.store.AppendLog(models.UsageLogEntry{
			ID:           fmt.Sprintf("legacy-%d", i),
			StartedAt:    int64(1000 + i),
			EndedAt:      int64(1000 + i),
			Kind:         models.KindGrant,
			DeltaMinutes: 10,
		}))
	}

	cfg, err := suite.store.LoadConfig()
	require.NoError(suite.T(), err)
	require.Len(suite.T(), cfg.Profiles, 1)
	assert.Equal(suite.T(), "5678", cfg.PIN)
	assert.Equal(suite.T(), 42, cfg.Profiles[0].RemainingMinutes)
	assert.Equal(suite.T(), int64(1700000000000), cfg.Profiles[0].ActiveSessionStart)
	assert.Equal(suite.T(), cfg.Profiles[0].ID, cfg.SelectedProfileID)
	assert.Equal(suite.T(), models.SchemaVersion, cfg.SchemaVersion)

	logs, err := suite.store.AllLogs()
	require.NoError(suite.T(), err)
	require.Len(suite.T(), logs, 2)
	for _, e := range logs {
		assert.Equal(suite.T(), cfg.Profiles[0].ID, e.ProfileID)
	}

	// Loading again is a no-op: same profile id, no further changes.
	again, err := suite.store.LoadConfig()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), cfg, again)
}

func (suite *StoreTestSuite) TestAppendLogRotation() {
	store, err := Open(":memory:", 5, zap.NewNop())
	require.NoError(suite.T(), err)
	defer store.Close()

	for i := 0; i < 8; i++ {
		err := store.AppendLog(models.UsageLogEntry{
			ID:           fmt.Sprintf("entry-%d", i),
			ProfileID:    "p1",
			StartedAt:    int64(i * 1000),
			EndedAt:      int64(i * 1000),
			Kind:         models.KindGrant,
			DeltaMinutes: 5,
		})
		require.NoError(suite.T(), err)
	}

	logs, err := store.AllLogs()
	require.NoError(suite.T(), err)
	require.Len(suite.T(), logs, 5, "rotation keeps only the retention ceiling")

	// Oldest entries (by started_at) were purged.
	assert.Equal(suite.T(), "entry-3", logs[0].ID)
	assert.Equal(suite.T(), "entry-7", logs[4].ID)
}

func (suite *StoreTestSuite) TestListLogs() {
	entries := []models.UsageLogEntry{
		{ID: "a", ProfileID: "p1", StartedAt: 1000, EndedAt: 1000, Kind: models.KindGrant, DeltaMinutes: 30},
		{ID: "b", ProfileID: "p2", StartedAt: 2000, EndedAt: 2000, Kind: models.KindGrant, DeltaMinutes: 15},
		{ID: "c", ProfileID: "p1", StartedAt: 3000, EndedAt: 4000, Kind: models.KindConsume, DeltaMinutes: -10},
	}
	for _, e := range entries {
		require.NoError(suite.T(), suite.store.AppendLog(e))
	}

	logs, err := suite.store.ListLogs(10, "")
	require.NoError(suite.T(), err)
	require.Len(suite.T(), logs, 3)
	assert.Equal(suite.T(), "c", logs[0].ID, "newest first")
	assert.Equal(suite.T(), "a", logs[2].ID)

	logs, err = suite.store.ListLogs(10, "p1")
	require.NoError(suite.T(), err)
	require.Len(suite.T(), logs, 2)
	assert.Equal(suite.T(), "c", logs[0].ID)
	assert.Equal(suite.T(), "a", logs[1].ID)

	logs, err = suite.store.ListLogs(1, "")
	require.NoError(suite.T(), err)
	require.Len(suite.T(), logs, 1)
	assert.Equal(suite.T(), "c", logs[0].ID)
}

func (suite *StoreTestSuite) TestBackupRoundTrip() {
	cfg := models.AppConfig{
		PIN: "2468",
		Profiles: []models.Profile{
			{ID: "p1", Name: "Aki", RemainingMinutes: 60},
		},
		SelectedProfileID: "p1",
		SchemaVersion:     models.SchemaVersion,
	}
	require.NoError(suite.T(), suite.store.SaveConfig(cfg))
	require.NoError(suite.T(), suite.store.AppendLog(models.UsageLogEntry{
		ID: "g1", ProfileID: "p1", StartedAt: 1000, EndedAt: 1000,
		Kind: models.KindGrant, DeltaMinutes: 60, Note: "granted +60 min",
	}))

	exportedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	data, err := suite.store.ExportBackup(exportedAt)
	require.NoError(suite.T(), err)

	var doc models.BackupDocument
	require.NoError(suite.T(), json.Unmarshal(data, &doc))
	assert.Equal(suite.T(), models.SchemaVersion, doc.FormatVersion)
	assert.Equal(suite.T(), exportedAt.UnixMilli(), doc.ExportedAt)

	// Mutate current state, then import the backup: everything is restored.
	_, err = suite.store.ClearAll()
	require.NoError(suite.T(), err)

	restored, err := suite.store.ImportBackup(data)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), cfg, restored)

	loaded, err := suite.store.LoadConfig()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), cfg, loaded)

	logs, err := suite.store.AllLogs()
	require.NoError(suite.T(), err)
	require.Len(suite.T(), logs, 1)
	assert.Equal(suite.T(), "g1", logs[0].ID)
	assert.Equal(suite.T(), "granted +60 min", logs[0].Note)
}

func (suite *StoreTestSuite) TestImportBackupRejectsNewerVersion() {
	cfg := models.DefaultConfig()
	cfg.PIN = "1111"
	require.NoError(suite.T(), suite.store.SaveConfig(cfg))

	doc := fmt.Sprintf(`{"config":{"pin":"0000","schemaVersion":%d},"logs":[],"exportedAt":0,"formatVersion":%d}`,
		models.SchemaVersion+1, models.SchemaVersion+1)
	_, err := suite.store.ImportBackup([]byte(doc))
	assert.ErrorIs(suite.T(), err, models.ErrUnsupportedVersion)

	// Existing state untouched.
	loaded, err := suite.store.LoadConfig()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "1111", loaded.PIN)
}

func (suite *StoreTestSuite) TestImportBackupRejectsMalformed() {
	cases := map[string]string{
		"not json":       `{"config":`,
		"missing config": `{"logs":[],"formatVersion":2}`,
		"null config":    `{"config":null,"logs":[],"formatVersion":2}`,
		"missing format": `{"config":{"pin":"0000"},"logs":[]}`,
	}
	for name, doc := range cases {
		_, err := suite.store.ImportBackup([]byte(doc))
		assert.ErrorIs(suite.T(), err, models.ErrInvalidFormat, name)
	}
}

func (suite *StoreTestSuite) TestImportBackupLegacyDocument() {
	doc := `{
		"config": {"pin":"5678","remainingMinutes":25,"startTimestamp":0,"version":1},
		"logs": [{"id":"old1","startedAt":1000,"endedAt":1000,"kind":"grant","deltaMinutes":25}],
		"exportedAt": 1700000000000,
		"formatVersion": 1
	}`
	cfg, err := suite.store.ImportBackup([]byte(doc))
	require.NoError(suite.T(), err)
	require.Len(suite.T(), cfg.Profiles, 1)
	assert.Equal(suite.T(), 25, cfg.Profiles[0].RemainingMinutes)

	logs, err := suite.store.AllLogs()
	require.NoError(suite.T(), err)
	require.Len(suite.T(), logs, 1)
	assert.Equal(suite.T(), cfg.Profiles[0].ID, logs[0].ProfileID, "legacy log back-filled")
}

func (suite *StoreTestSuite) TestImportBackupIsAllOrNothing() {
	cfg := models.DefaultConfig()
	cfg.PIN = "1111"
	require.NoError(suite.T(), suite.store.SaveConfig(cfg))
	require.NoError(suite.T(), suite.store.AppendLog(models.UsageLogEntry{
		ID: "keep", ProfileID: "p1", StartedAt: 1, EndedAt: 1, Kind: models.KindGrant, DeltaMinutes: 5,
	}))

	// Duplicate log ids make the insert fail after the config and the first
	// entry were already written inside the transaction.
	doc := fmt.Sprintf(`{
		"config": {"pin":"2222","profiles":[],"schemaVersion":%d},
		"logs": [
			{"id":"dup","startedAt":1000,"endedAt":1000,"kind":"grant","deltaMinutes":10},
			{"id":"dup","startedAt":2000,"endedAt":2000,"kind":"grant","deltaMinutes":10}
		],
		"exportedAt": 0,
		"formatVersion": %d
	}`, models.SchemaVersion, models.SchemaVersion)
	_, err := suite.store.ImportBackup([]byte(doc))
	assert.ErrorIs(suite.T(), err, models.ErrPersistence)

	// Everything rolled back: old config and logs still in place.
	loaded, err := suite.store.LoadConfig()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "1111", loaded.PIN)

	logs, err := suite.store.AllLogs()
	require.NoError(suite.T(), err)
	require.Len(suite.T(), logs, 1)
	assert.Equal(suite.T(), "keep", logs[0].ID)
}

func (suite *StoreTestSuite) TestClearAllReseedsDefault() {
	cfg := models.AppConfig{
		PIN:           "7777",
		Profiles:      []models.Profile{{ID: "p1", Name: "Aki", RemainingMinutes: 30}},
		SchemaVersion: models.SchemaVersion,
	}
	require.NoError(suite.T(), suite.store.SaveConfig(cfg))
	require.NoError(suite.T(), suite.store.AppendLog(models.UsageLogEntry{
		ID: "g1", ProfileID: "p1", StartedAt: 1, EndedAt: 1, Kind: models.KindGrant, DeltaMinutes: 30,
	}))

	cleared, err := suite.store.ClearAll()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.DefaultConfig(), cleared)

	logs, err := suite.store.AllLogs()
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), logs)
}

// Test suite runner
func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
