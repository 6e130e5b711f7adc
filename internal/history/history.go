// Package history turns usage log snapshots into display-ready view models
// for the presentation layer's history screen.
package history

import (
	"fmt"

	"gametime-keeper/internal/models"
	"gametime-keeper/internal/timeutil"
)

// Item is one rendered log row.
type Item struct {
	ID    string
	When  string // formatted start instant
	Kind  models.LogKind
	Delta string // signed, e.g. "+30 min" / "-2 min"
	Note  string
}

// Summary aggregates a sequence of log entries for one history view.
type Summary struct {
	GrantedMinutes  int
	ConsumedMinutes int
	GrantCount      int
	SessionCount    int
	Items           []Item
}

// Summarize builds a Summary from entries as returned by the gateway
// (newest first). Pure; safe to call on every render.
func Summarize(entries []models.UsageLogEntry) Summary {
	s := Summary{Items: make([]Item, 0, len(entries))}
	for _, e := range entries {
		switch e.Kind {
		case models.KindGrant:
			s.GrantedMinutes += e.DeltaMinutes
			s.GrantCount++
		case models.KindConsume:
			s.ConsumedMinutes += -e.DeltaMinutes
			s.SessionCount++
		}
		s.Items = append(s.Items, Item{
			ID:    e.ID,
			When:  timeutil.FormatDateTime(e.StartedAt),
			Kind:  e.Kind,
			Delta: fmt.Sprintf("%+d min", e.DeltaMinutes),
			Note:  e.Note,
		})
	}
	return s
}
