package credential

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"relay/internal/logging"
)

const (
	maxConsecutiveFailures = 5
	maxBackoff             = 60 * time.Second
	noKeySleep             = 60 * time.Second
	jitterSpread           = 30 * time.Second
)

// Refresher runs the single background worker that keeps a Store's
// key fresh, per spec.md §4.2: proactive refresh ahead of expiry with
// jittered wake-ups and exponential backoff on failure.
type Refresher struct {
	Store      *Store
	Client     *RefreshClient
	Buffer     time.Duration
	PersistTo  string // file path to persist the refreshed key to; empty disables persistence
	retryCount int
}

// NewRefresher wires a Refresher with the teacher's default buffer.
func NewRefresher(store *Store, client *RefreshClient, persistTo string) *Refresher {
	return &Refresher{
		Store:     store,
		Client:    client,
		Buffer:    DefaultRefreshBuffer,
		PersistTo: persistTo,
	}
}

// Run blocks, refreshing until ctx is cancelled. Intended to be
// launched as a daemon goroutine; it does not need to be joined on
// shutdown (spec.md §5 Cancellation).
func (r *Refresher) Run(ctx context.Context) {
	for {
		sleep := r.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// tick performs one iteration and returns how long to sleep before the next.
func (r *Refresher) tick(ctx context.Context) time.Duration {
	key := r.Store.Get()
	if key == nil {
		return noKeySleep
	}
	if !NeedsRefresh(key, r.Buffer) {
		return r.nextWake(*key)
	}

	if !r.Store.beginRefresh() {
		// Another goroutine already owns the in-flight refresh; this
		// call is skipped, not queued (spec.md §4.2 Concurrency).
		return time.Second
	}
	defer r.Store.endRefresh()

	refreshed, err := r.Client.Refresh(ctx, *key)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			logging.Warn("credential refresh unauthorized, clearing store")
			r.Store.Clear()
			r.retryCount = 0
			return noKeySleep
		}
		r.retryCount++
		logging.Warn("credential refresh failed", "attempt", r.retryCount, "error", err.Error())
		if r.retryCount >= maxConsecutiveFailures {
			logging.Warn("credential refresh exhausted retries, clearing store")
			r.Store.Clear()
			r.retryCount = 0
			return noKeySleep
		}
		backoff := time.Duration(1<<uint(r.retryCount)) * time.Second
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		return backoff
	}

	r.retryCount = 0
	if r.PersistTo != "" {
		if err := SaveFile(r.PersistTo, refreshed); err != nil {
			logging.Warn("credential persist failed", "error", err.Error())
		}
	}
	r.Store.SetIfNewer(refreshed)
	logging.Info("credential refreshed", "expires_at", refreshed.ExpiresAt)

	return r.nextWake(refreshed)
}

// nextWake computes the jittered sleep until key is next due for
// refresh, desynchronising multiple instances (spec.md §4.2 step 3).
func (r *Refresher) nextWake(key OAuthKey) time.Duration {
	if key.IsStatic() {
		return noKeySleep
	}
	refreshAtMs := key.ExpiresAt - r.Buffer.Milliseconds()
	nowMs := time.Now().UnixMilli()
	jitterMs := rand.Int63n(2*jitterSpread.Milliseconds()+1) - jitterSpread.Milliseconds()
	sleepMs := refreshAtMs - nowMs + jitterMs
	if sleepMs < 1000 {
		sleepMs = 1000
	}
	return time.Duration(sleepMs) * time.Millisecond
}
