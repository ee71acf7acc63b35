package quota

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextMondayMidnight_OnMondayReturnsSevenDaysOut(t *testing.T) {
	monday := time.Date(2026, time.July, 27, 0, 0, 0, 0, time.UTC) // a Monday
	require.Equal(t, time.Monday, monday.Weekday())

	got := nextMondayMidnight(monday)
	assert.Equal(t, monday.AddDate(0, 0, 7), got)
}

func TestNextMondayMidnight_MidweekRollsToComingMonday(t *testing.T) {
	wednesday := time.Date(2026, time.July, 29, 15, 30, 0, 0, time.UTC)
	got := nextMondayMidnight(wednesday)
	assert.Equal(t, time.Monday, got.Weekday())
	assert.True(t, got.After(wednesday))
	assert.True(t, got.Before(wednesday.AddDate(0, 0, 7)))
}

func TestLedger_MarkExhausted_ThenAutoResetsAfterResetAt(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLedger(filepath.Join(dir, "quota.json"))
	require.NoError(t, err)

	frozen := time.Date(2026, time.July, 29, 12, 0, 0, 0, time.UTC)
	l.nowFunc = func() time.Time { return frozen }

	require.NoError(t, l.MarkNativeExhausted("rate limit"))
	assert.False(t, l.IsNativeAvailable())

	l.nowFunc = func() time.Time { return l.state.ResetAt.Add(time.Second) }
	assert.True(t, l.IsNativeAvailable())

	status := l.Status()
	assert.False(t, status.Exhausted)
	assert.Zero(t, status.RequestCount)
}

func TestLedger_PersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quota.json")

	l1, err := NewLedger(path)
	require.NoError(t, err)
	l1.nowFunc = func() time.Time { return time.Date(2026, time.July, 29, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, l1.MarkNativeExhausted("quota exceeded"))

	l2, err := NewLedger(path)
	require.NoError(t, err)
	l2.nowFunc = l1.nowFunc
	assert.True(t, l2.Status().Exhausted)
}

func TestIsQuotaExhaustedError(t *testing.T) {
	assert.True(t, IsQuotaExhaustedError(429, ""))
	assert.True(t, IsQuotaExhaustedError(200, "Rate Limit exceeded, try later"))
	assert.True(t, IsQuotaExhaustedError(400, "本周额度已用尽"))
	assert.False(t, IsQuotaExhaustedError(500, "internal server error"))
}
