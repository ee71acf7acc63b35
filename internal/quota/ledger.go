package quota

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"relay/internal/logging"
)

// Ledger is the persistent "native exhausted / reset_at" state
// machine described in spec.md §4.4. All mutators persist
// synchronously via temp-file-and-rename (improving on the Python
// reference's plain json.dump, per SPEC_FULL.md §C.6).
type Ledger struct {
	mu        sync.Mutex
	path      string
	state     State
	nowFunc   func() time.Time
}

// NewLedger loads (or initializes) the ledger backed by path.
func NewLedger(path string) (*Ledger, error) {
	l := &Ledger{path: path, nowFunc: time.Now}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.state = freshState()
			return nil
		}
		return fmt.Errorf("quota: reading %s: %w", l.path, err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("quota: parsing %s: %w", l.path, err)
	}
	l.state = s
	return nil
}

// persist must be called with mu held.
func (l *Ledger) persist() error {
	data, err := json.Marshal(l.state)
	if err != nil {
		return fmt.Errorf("quota: marshaling state: %w", err)
	}
	if err := renameio.WriteFile(l.path, data, 0o600); err != nil {
		return fmt.Errorf("quota: writing %s: %w", l.path, err)
	}
	return nil
}

// checkAutoReset clears exhaustion once wall-clock has crossed
// reset_at. Must be called with mu held; persists if it mutates.
func (l *Ledger) checkAutoReset() {
	if !l.state.Exhausted {
		return
	}
	if l.nowFunc().Before(l.state.ResetAt) {
		return
	}
	l.state = freshState()
	if err := l.persist(); err != nil {
		logging.Warn("quota: failed to persist auto-reset", "error", err.Error())
	}
}

// IsNativeAvailable performs the weekly auto-reset check, then
// reports whether the native upstream may currently be used.
func (l *Ledger) IsNativeAvailable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkAutoReset()
	return !l.state.Exhausted
}

// MarkNativeExhausted records a quota-exhaustion signal, setting
// reset_at to the next Monday 00:00 local (spec.md §4.4).
func (l *Ledger) MarkNativeExhausted(msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	l.state.Exhausted = true
	l.state.ExhaustedAt = now
	l.state.ResetAt = nextMondayMidnight(now)
	if err := l.persist(); err != nil {
		return err
	}
	logging.Warn("native upstream marked quota-exhausted", "message", msg, "reset_at", l.state.ResetAt)
	return nil
}

// RecordRequest bumps observability counters for a served request. The
// router calls it on both the native and the legacy path.
func (l *Ledger) RecordRequest() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.RequestCount++
	l.state.LastRequestAt = l.nowFunc()
	return l.persist()
}

// ResetNative manually clears exhaustion (POST /v1/quota/reset).
func (l *Ledger) ResetNative() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state = freshState()
	return l.persist()
}

// Status performs the auto-reset check and returns a snapshot.
func (l *Ledger) Status() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkAutoReset()
	return l.state
}
