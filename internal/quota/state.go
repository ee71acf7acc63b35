// Package quota implements the persistent weekly quota ledger and
// upstream-error classification that drives native→legacy failover,
// per spec.md §4.4-§4.5. Grounded directly on
// original_source/codebuddy_proxy/quota_manager.py, the Python
// reference this spec was distilled from.
package quota

import "time"

// State is the weekly quota ledger for the native upstream.
type State struct {
	Exhausted      bool      `json:"exhausted"`
	ExhaustedAt    time.Time `json:"exhaustedAt,omitzero"`
	ResetAt        time.Time `json:"resetAt,omitzero"`
	RequestCount   int64     `json:"requestCount"`
	LastRequestAt  time.Time `json:"lastRequestAt,omitzero"`
}

func freshState() State {
	return State{}
}

// nextMondayMidnight returns the next Monday 00:00 in now's location.
// If now already falls on Monday 00:00:00, the result is exactly
// seven days later — matching _get_next_monday_midnight's
// `days_until = (7 - weekday) % 7; if 0: 7` (spec.md §4.4, §8).
func nextMondayMidnight(now time.Time) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	// time.Weekday: Sunday=0 ... Saturday=6. The Python reference uses
	// Monday=0 ... Sunday=6; convert to that convention.
	weekday := (int(now.Weekday()) + 6) % 7
	daysUntil := (7 - weekday) % 7
	if daysUntil == 0 {
		daysUntil = 7
	}
	return midnight.AddDate(0, 0, daysUntil)
}
