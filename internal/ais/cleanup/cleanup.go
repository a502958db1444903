// Package cleanup runs the periodic purge of expired alert cooldown
// entries, both from the in-memory cooldown store a running replay
// session consults and from the persisted alert_cooldowns table.
package cleanup

import (
	"context"
	"time"

	"github.com/aegisais/detector/internal/ais/cooldown"
	"github.com/aegisais/detector/internal/monitoring"
	"github.com/aegisais/detector/internal/timeutil"
)

// PersistentStore is the subset of aisdb.DB the cleanup loop needs.
type PersistentStore interface {
	PurgeCooldownsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Run purges cooldown entries older than maxAge every interval, until ctx
// is cancelled. It is meant to run as its own goroutine for the lifetime
// of the service process.
func Run(ctx context.Context, clock timeutil.Clock, interval time.Duration, maxAge time.Duration, mem *cooldown.Store, store PersistentStore) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			purgeOnce(ctx, clock, maxAge, mem, store)
		}
	}
}

func purgeOnce(ctx context.Context, clock timeutil.Clock, maxAge time.Duration, mem *cooldown.Store, store PersistentStore) {
	cutoff := clock.Now().Add(-maxAge)

	if mem != nil {
		removed := mem.PurgeOlderThan(cutoff)
		if removed > 0 {
			monitoring.Logf("cleanup: purged %d expired in-memory cooldown entries", removed)
		}
	}

	if store != nil {
		removed, err := store.PurgeCooldownsOlderThan(ctx, cutoff)
		if err != nil {
			monitoring.Logf("cleanup: purge persisted cooldowns failed: %v", err)
			return
		}
		if removed > 0 {
			monitoring.Logf("cleanup: purged %d expired persisted cooldown rows", removed)
		}
	}
}
