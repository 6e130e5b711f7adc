// Package engine owns the session and allowance accounting state machine.
// All operations run against a single in-memory config snapshot and persist
// through the storage gateway as one unit; a mutex serializes them (single
// logical writer).
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"gametime-keeper/internal/models"
	"gametime-keeper/internal/pin"
	"gametime-keeper/internal/storage"
	"gametime-keeper/internal/timeutil"
)

// Options tunes the engine. Zero fields fall back to the standard defaults.
type Options struct {
	SessionCapMinutes int
	MaxProfiles       int
	MaxGrantMinutes   int
	PINMaxAttempts    int
	PINLockout        time.Duration

	// Clock overrides the wall clock, for tests. Nil means time.Now.
	Clock func() time.Time
}

// DefaultOptions returns the standard configuration: 120 minute session cap,
// 2 profiles, grants up to 999 minutes, 5 PIN attempts then a 30 second
// lockout.
func DefaultOptions() Options {
	return Options{
		SessionCapMinutes: 120,
		MaxProfiles:       2,
		MaxGrantMinutes:   999,
		PINMaxAttempts:    5,
		PINLockout:        30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.SessionCapMinutes <= 0 {
		o.SessionCapMinutes = def.SessionCapMinutes
	}
	if o.MaxProfiles <= 0 {
		o.MaxProfiles = def.MaxProfiles
	}
	if o.MaxGrantMinutes <= 0 {
		o.MaxGrantMinutes = def.MaxGrantMinutes
	}
	if o.PINMaxAttempts <= 0 {
		o.PINMaxAttempts = def.PINMaxAttempts
	}
	if o.PINLockout <= 0 {
		o.PINLockout = def.PINLockout
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Engine is the accounting engine plus profile directory. Construct one at
// process start and hand it to all collaborators.
type Engine struct {
	mu     sync.Mutex
	store  *storage.Store
	gate   *pin.Gate
	logger *zap.Logger
	opts   Options
	now    func() time.Time

	cfg models.AppConfig
}

// New loads the current snapshot and returns a ready engine. A storage
// failure falls back to an in-memory default snapshot instead of failing:
// the engine stays usable and later saves may still succeed. Any other load
// error (an unreadable or too-new snapshot) is returned unchanged so the
// caller never silently overwrites data it could not load.
func New(store *storage.Store, opts Options, logger *zap.Logger) (*Engine, error) {
	opts = opts.withDefaults()

	cfg, err := store.LoadConfig()
	if err != nil {
		if !errors.Is(err, models.ErrPersistence) {
			return nil, err
		}
		logger.Error("loading config failed, starting from in-memory default", zap.Error(err))
		cfg = models.DefaultConfig()
	}

	e := &Engine{
		store:  store,
		gate:   pin.NewGate(opts.PINMaxAttempts, opts.PINLockout),
		logger: logger,
		opts:   opts,
		now:    opts.Clock,
		cfg:    cfg,
	}
	return e, nil
}

// Config returns a copy of the current snapshot for display.
func (e *Engine) Config() models.AppConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneConfig(e.cfg)
}

// EffectiveRemaining returns the balance the profile should display right
// now, derived from the committed balance and any running session.
func (e *Engine) EffectiveRemaining(profileID string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.cfg.FindProfile(profileID)
	if p == nil {
		return 0, models.ErrProfileNotFound
	}
	return timeutil.EffectiveRemaining(p.RemainingMinutes, p.ActiveSessionStart, e.opts.SessionCapMinutes, e.now()), nil
}

// Grant adds minutes to the profile's balance and appends a grant log entry.
// Valid whether or not a session is running.
func (e *Engine) Grant(profileID string, minutes int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if minutes < 1 || minutes > e.opts.MaxGrantMinutes {
		return fmt.Errorf("%w: want 1-%d, got %d", models.ErrInvalidMinutes, e.opts.MaxGrantMinutes, minutes)
	}

	next := cloneConfig(e.cfg)
	p := next.FindProfile(profileID)
	if p == nil {
		return models.ErrProfileNotFound
	}
	p.RemainingMinutes += minutes

	if err := e.persist(next); err != nil {
		return err
	}

	now := e.now().UnixMilli()
	e.appendLog(models.UsageLogEntry{
		ID:           newLogID(),
		ProfileID:    profileID,
		StartedAt:    now,
		EndedAt:      now,
		Kind:         models.KindGrant,
		DeltaMinutes: minutes,
		Note:         fmt.Sprintf("granted +%d min", minutes),
	})
	e.logger.Info("granted minutes", zap.String("profile_id", profileID), zap.Int("minutes", minutes))
	return nil
}

// StartSession begins consuming the profile's balance. Fails with
// ErrAlreadyRunning if a session is active and ErrNoTimeRemaining when the
// effective balance is zero.
func (e *Engine) StartSession(profileID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := cloneConfig(e.cfg)
	p := next.FindProfile(profileID)
	if p == nil {
		return models.ErrProfileNotFound
	}
	if p.SessionRunning() {
		return models.ErrAlreadyRunning
	}
	now := e.now()
	if timeutil.EffectiveRemaining(p.RemainingMinutes, p.ActiveSessionStart, e.opts.SessionCapMinutes, now) <= 0 {
		return models.ErrNoTimeRemaining
	}

	p.ActiveSessionStart = now.UnixMilli()
	if err := e.persist(next); err != nil {
		return err
	}
	e.logger.Info("session started", zap.String("profile_id", profileID))
	return nil
}

// StopSession ends the profile's session, commits the consumed minutes
// (clamped to the session cap, floored at a zero balance) and appends a
// consume log entry. A profile with no running session is a no-op. Returns
// the minutes consumed.
func (e *Engine) StopSession(profileID string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked(profileID, false)
}

func (e *Engine) stopLocked(profileID string, auto bool) (int, error) {
	next := cloneConfig(e.cfg)
	p := next.FindProfile(profileID)
	if p == nil {
		return 0, models.ErrProfileNotFound
	}
	if !p.SessionRunning() {
		return 0, nil
	}

	now := e.now()
	startedAt := p.ActiveSessionStart
	consumed := timeutil.MinutesBetween(p.SessionStart(), now)
	if consumed > e.opts.SessionCapMinutes {
		consumed = e.opts.SessionCapMinutes
	}

	p.RemainingMinutes -= consumed
	if p.RemainingMinutes < 0 {
		p.RemainingMinutes = 0
	}
	p.ActiveSessionStart = 0

	if err := e.persist(next); err != nil {
		return 0, err
	}

	e.appendLog(models.UsageLogEntry{
		ID:           newLogID(),
		ProfileID:    profileID,
		StartedAt:    startedAt,
		EndedAt:      now.UnixMilli(),
		Kind:         models.KindConsume,
		DeltaMinutes: -consumed,
		Note:         fmt.Sprintf("consumed -%d min", consumed),
	})
	e.logger.Info("session stopped",
		zap.String("profile_id", profileID),
		zap.Int("consumed_minutes", consumed),
		zap.Bool("auto", auto),
	)
	return consumed, nil
}

// Reset zeroes the profile's balance and clears any running session. By
// product decision it appends no log entry.
func (e *Engine) Reset(profileID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := cloneConfig(e.cfg)
	p := next.FindProfile(profileID)
	if p == nil {
		return models.ErrProfileNotFound
	}
	p.RemainingMinutes = 0
	p.ActiveSessionStart = 0

	if err := e.persist(next); err != nil {
		return err
	}
	e.logger.Info("balance reset", zap.String("profile_id", profileID))
	return nil
}

// TickResult reports what a reconciliation tick observed or did.
type TickResult struct {
	// Running is true when a session is still active after the tick.
	Running bool
	// AutoStopped is true when this tick force-stopped the session, as
	// opposed to a manual StopSession.
	AutoStopped bool
	// ConsumedMinutes is the amount committed by an auto-stop.
	ConsumedMinutes int
	// RemainingMinutes is the effective balance to display.
	RemainingMinutes int
	// ElapsedSeconds is the raw session age, for the HH:MM:SS display.
	ElapsedSeconds int
}

// ReconcileTick re-evaluates the profile's session against the wall clock.
// Drive it on a fixed cadence (once per second is typical); it is
// idempotent and safe to call at any rate because elapsed time is always
// recomputed from the absolute session start, never accumulated. When the
// effective balance hits zero or the raw elapsed time reaches the session
// cap, the session is force-stopped and the result says so.
func (e *Engine) ReconcileTick(profileID string) (TickResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.cfg.FindProfile(profileID)
	if p == nil {
		return TickResult{}, models.ErrProfileNotFound
	}
	if !p.SessionRunning() {
		return TickResult{RemainingMinutes: p.RemainingMinutes}, nil
	}

	now := e.now()
	elapsedSeconds := int(now.Sub(p.SessionStart()) / time.Second)
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	remaining := timeutil.EffectiveRemaining(p.RemainingMinutes, p.ActiveSessionStart, e.opts.SessionCapMinutes, now)

	if remaining <= 0 || elapsedSeconds >= e.opts.SessionCapMinutes*60 {
		consumed, err := e.stopLocked(profileID, true)
		if err != nil {
			return TickResult{}, err
		}
		stopped := e.cfg.FindProfile(profileID)
		return TickResult{
			AutoStopped:      true,
			ConsumedMinutes:  consumed,
			RemainingMinutes: stopped.RemainingMinutes,
		}, nil
	}

	return TickResult{
		Running:          true,
		RemainingMinutes: remaining,
		ElapsedSeconds:   elapsedSeconds,
	}, nil
}

// VerifyPIN checks a parent-mode entry attempt against the stored PIN,
// applying the lockout state machine.
func (e *Engine) VerifyPIN(input string) (pin.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gate.Verify(input, e.cfg.PIN, e.now())
}

// ResetPINGate clears the failure count, e.g. when the PIN screen closes.
func (e *Engine) ResetPINGate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate.Reset()
}

// ChangePIN replaces the stored PIN after validating the current PIN, the
// new PIN's syntax and its confirmation.
func (e *Engine) ChangePIN(current, newPIN, confirm string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := pin.ValidateChange(current, e.cfg.PIN, newPIN, confirm); err != nil {
		return err
	}

	next := cloneConfig(e.cfg)
	next.PIN = newPIN
	if err := e.persist(next); err != nil {
		return err
	}
	e.logger.Info("pin changed")
	return nil
}

// Logs returns the most recent limit log entries, newest first, optionally
// filtered to one profile.
func (e *Engine) Logs(limit int, profileID string) ([]models.UsageLogEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ListLogs(limit, profileID)
}

// ExportBackup serializes the current config and full log history.
func (e *Engine) ExportBackup() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ExportBackup(e.now())
}

// ImportBackup destructively replaces all state with the document's. The
// in-memory snapshot is refreshed on success; a rejected document changes
// nothing.
func (e *Engine) ImportBackup(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.store.ImportBackup(data)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.gate.Reset()
	e.logger.Info("backup imported", zap.Int("profiles", len(cfg.Profiles)))
	return nil
}

// ClearAll wipes everything and reseeds the first-run default.
func (e *Engine) ClearAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.store.ClearAll()
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.gate.Reset()
	e.logger.Info("all data cleared")
	return nil
}

// Flush persists the current snapshot. Call it on lifecycle signals such as
// visibility loss. Best effort: failures are logged, and correctness does
// not depend on this write because elapsed time is recomputed from absolute
// timestamps on the next load.
func (e *Engine) Flush() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.SaveConfig(e.cfg); err != nil {
		e.logger.Warn("best-effort flush failed", zap.Error(err))
	}
}

func (e *Engine) persist(next models.AppConfig) error {
	if err := e.store.SaveConfig(next); err != nil {
		return err
	}
	e.cfg = next
	return nil
}

func (e *Engine) appendLog(entry models.UsageLogEntry) {
	if err := e.store.AppendLog(entry); err != nil {
		// Log history is best effort; the committed balance is not.
		e.logger.Warn("failed to append usage log", zap.Error(err), zap.String("kind", string(entry.Kind)))
	}
}

func cloneConfig(cfg models.AppConfig) models.AppConfig {
	out := cfg
	out.Profiles = make([]models.Profile, len(cfg.Profiles))
	copy(out.Profiles, cfg.Profiles)
	return out
}

func newLogID() string {
	return ulid.Make().String()
}
