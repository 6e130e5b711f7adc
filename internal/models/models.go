package models

import "time"

// Schema and format versioning. Version 1 was the single-child layout with
// the balance fields at the top level; version 2 introduced the profile list.
const (
	SchemaVersion = 2

	DefaultPIN = "0000"
)

// LogKind labels a usage log entry.
type LogKind string

const (
	KindGrant   LogKind = "grant"
	KindConsume LogKind = "consume"
)

// Profile represents one child's allowance state.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// RemainingMinutes is the committed balance. While a session runs the
	// displayed balance is derived from this value and the session start;
	// the decreasing number is never stored.
	RemainingMinutes int `json:"remainingMinutes"`
	// ActiveSessionStart is epoch milliseconds; 0 means no session running.
	ActiveSessionStart int64 `json:"activeSessionStart"`
}

// SessionRunning reports whether the profile has an active session.
func (p *Profile) SessionRunning() bool {
	return p.ActiveSessionStart > 0
}

// SessionStart returns the session start as a time.Time. Only meaningful
// when SessionRunning is true.
func (p *Profile) SessionStart() time.Time {
	return time.UnixMilli(p.ActiveSessionStart)
}

// AppConfig is the single persisted state snapshot.
type AppConfig struct {
	PIN               string    `json:"pin"`
	Profiles          []Profile `json:"profiles"`
	SelectedProfileID string    `json:"selectedProfileId,omitempty"`
	SchemaVersion     int       `json:"schemaVersion"`
}

// FindProfile returns the profile with the given id, or nil.
func (c *AppConfig) FindProfile(id string) *Profile {
	for i := range c.Profiles {
		if c.Profiles[i].ID == id {
			return &c.Profiles[i]
		}
	}
	return nil
}

// SelectedProfile returns the currently selected profile, or nil if no
// selection is set.
func (c *AppConfig) SelectedProfile() *Profile {
	if c.SelectedProfileID == "" {
		return nil
	}
	return c.FindProfile(c.SelectedProfileID)
}

// DefaultConfig returns the first-run state: default PIN, no profiles,
// current schema version.
func DefaultConfig() AppConfig {
	return AppConfig{
		PIN:           DefaultPIN,
		SchemaVersion: SchemaVersion,
	}
}

// UsageLogEntry is an immutable audit record. Grants have StartedAt equal to
// EndedAt and a positive delta; consumes span the session and carry a
// negative delta.
type UsageLogEntry struct {
	ID           string  `json:"id"`
	ProfileID    string  `json:"profileId"`
	StartedAt    int64   `json:"startedAt"` // epoch ms
	EndedAt      int64   `json:"endedAt"`   // epoch ms
	Kind         LogKind `json:"kind"`
	DeltaMinutes int     `json:"deltaMinutes"`
	Note         string  `json:"note,omitempty"`
}

// BackupDocument is the export/import transport format.
type BackupDocument struct {
	Config        AppConfig       `json:"config"`
	Logs          []UsageLogEntry `json:"logs"`
	ExportedAt    int64           `json:"exportedAt"` // epoch ms
	FormatVersion int             `json:"formatVersion"`
}
