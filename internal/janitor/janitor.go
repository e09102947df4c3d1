// Package janitor runs the periodic backstop sweeps: old blobs whose
// deletion timers were lost to a restart, and store keys whose TTL never
// fired. Both sweeps are idempotent and tolerate concurrent deletes.
package janitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/REZ3X/ghostchat-backend/internal/blob"
	"github.com/REZ3X/ghostchat-backend/internal/metrics"
	"github.com/REZ3X/ghostchat-backend/internal/store"
)

// MaxBlobAge is the hard retention ceiling for uploaded blobs. Every
// legitimate TTL is at most 24 hours, so anything older was orphaned.
const MaxBlobAge = 25 * time.Hour

// Janitor sweeps the blob store and the durable store on an interval.
type Janitor struct {
	store    store.MessageStore
	blobs    blob.Store
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates a janitor. msgStore may be nil; the store sweep is then
// skipped.
func New(msgStore store.MessageStore, blobs blob.Store, interval time.Duration, logger zerolog.Logger) *Janitor {
	return &Janitor{
		store:    msgStore,
		blobs:    blobs,
		interval: interval,
		logger:   logger.With().Str("component", "janitor").Logger(),
		now:      time.Now,
	}
}

// SetClock overrides the janitor's time source. Test use only.
func (j *Janitor) SetClock(now func() time.Time) { j.now = now }

// Run sweeps on the configured interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.SweepBlobs()
			j.SweepStore(ctx)
		}
	}
}

// SweepBlobs deletes every blob older than the retention ceiling.
func (j *Janitor) SweepBlobs() {
	names, err := j.blobs.List()
	if err != nil {
		j.logger.Warn().Err(err).Msg("blob sweep list failed")
		return
	}

	cutoff := j.now().Add(-MaxBlobAge)
	cleaned := 0
	for _, name := range names {
		mtime, err := j.blobs.ModTime(name)
		if err != nil {
			// Already deleted by a timer or another sweep.
			continue
		}
		if mtime.After(cutoff) {
			continue
		}
		removed, err := j.blobs.Delete(name)
		if err != nil {
			j.logger.Warn().Err(err).Str("filename", name).Msg("blob sweep delete failed")
			continue
		}
		if !removed {
			continue
		}
		metrics.BlobsDeleted.WithLabelValues("janitor").Inc()
		cleaned++
	}
	if cleaned > 0 {
		j.logger.Info().Int("cleaned", cleaned).Msg("removed orphaned blobs")
	}
}

// SweepStore deletes message keys whose store-reported remaining TTL is
// zero or negative, covering store restarts that lost expiry state.
func (j *Janitor) SweepStore(ctx context.Context) {
	if j.store == nil {
		return
	}

	keys, err := j.store.ScanPrefix(ctx, store.AllMessagesPrefix)
	if err != nil {
		j.logger.Warn().Err(err).Msg("store sweep scan failed")
		return
	}

	swept := 0
	for _, key := range keys {
		ttl, err := j.store.TTL(ctx, key)
		if err != nil {
			j.logger.Warn().Err(err).Str("key", key).Msg("store sweep ttl check failed")
			continue
		}
		if ttl > 0 {
			continue
		}
		if err := j.store.Delete(ctx, key); err != nil {
			j.logger.Warn().Err(err).Str("key", key).Msg("store sweep delete failed")
			continue
		}
		metrics.StoreKeysSwept.Inc()
		swept++
	}
	if swept > 0 {
		j.logger.Info().Int("swept", swept).Msg("removed stale store keys")
	}
}
