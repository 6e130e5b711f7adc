package engine

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gametime-keeper/internal/models"
)

const maxNameLength = 10

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 1 || n > maxNameLength {
		return "", models.ErrInvalidName
	}
	return name, nil
}

// AddProfile creates a child profile with a fresh id, zero balance and no
// session, appends it to the ordered list and selects it. Fails with
// ErrLimitExceeded once the configured maximum is reached.
func (e *Engine) AddProfile(name string) (models.Profile, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	name, err := validateName(name)
	if err != nil {
		return models.Profile{}, err
	}
	if len(e.cfg.Profiles) >= e.opts.MaxProfiles {
		return models.Profile{}, models.ErrLimitExceeded
	}

	p := models.Profile{
		ID:   uuid.NewString(),
		Name: name,
	}
	next := cloneConfig(e.cfg)
	next.Profiles = append(next.Profiles, p)
	next.SelectedProfileID = p.ID

	if err := e.persist(next); err != nil {
		return models.Profile{}, err
	}
	e.logger.Info("profile added", zap.String("profile_id", p.ID), zap.String("name", name))
	return p, nil
}

// RenameProfile changes a profile's display name.
func (e *Engine) RenameProfile(id, newName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newName, err := validateName(newName)
	if err != nil {
		return err
	}

	next := cloneConfig(e.cfg)
	p := next.FindProfile(id)
	if p == nil {
		return models.ErrProfileNotFound
	}
	p.Name = newName

	if err := e.persist(next); err != nil {
		return err
	}
	e.logger.Info("profile renamed", zap.String("profile_id", id), zap.String("name", newName))
	return nil
}

// SelectProfile sets the currently observed profile. An empty id clears the
// selection without touching any stored balances.
func (e *Engine) SelectProfile(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := cloneConfig(e.cfg)
	if id != "" && next.FindProfile(id) == nil {
		return models.ErrProfileNotFound
	}
	next.SelectedProfileID = id

	return e.persist(next)
}
