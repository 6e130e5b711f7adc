// Package timeutil holds the pure time arithmetic behind balance accounting
// plus the display helpers used by the presentation layer.
package timeutil

import (
	"fmt"
	"time"
)

// MinutesBetween converts the duration from start to end into whole minutes,
// rounded to the nearest minute with ties rounding up (90.4s elapsed counts
// as 2 minutes). Never negative: an end before start yields 0.
func MinutesBetween(start, end time.Time) int {
	ms := end.Sub(start).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int((ms + 30_000) / 60_000)
}

// EffectiveRemaining computes the balance a running profile should display at
// instant now, without mutating anything. sessionStartMillis of 0 means no
// session; the stored balance is returned unchanged. Elapsed minutes are
// clamped to [0, capMinutes] and the result never drops below 0 nor exceeds
// balance.
func EffectiveRemaining(balance int, sessionStartMillis int64, capMinutes int, now time.Time) int {
	if sessionStartMillis == 0 {
		return balance
	}
	elapsed := MinutesBetween(time.UnixMilli(sessionStartMillis), now)
	if elapsed > capMinutes {
		elapsed = capMinutes
	}
	if remaining := balance - elapsed; remaining > 0 {
		return remaining
	}
	return 0
}

// FormatMinutes renders a minute count as "2h 30m", "2h", "45m" or "0m".
func FormatMinutes(minutes int) string {
	if minutes <= 0 {
		return "0m"
	}
	h := minutes / 60
	m := minutes % 60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

// FormatClock renders elapsed seconds as HH:MM:SS.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

// FormatDateTime renders an epoch-millisecond timestamp for history views.
func FormatDateTime(millis int64) string {
	return time.UnixMilli(millis).Format("2006/01/02 15:04")
}

// BackupFileName returns the dated file name suggested for a backup export.
func BackupFileName(now time.Time) string {
	return fmt.Sprintf("game-time-backup_%s.json", now.Format("2006-01-02"))
}
