package bridge

import (
	"context"
	"time"

	"uantap/pkg/log"
	"uantap/pkg/uanaddr"
)

// CleanupStaleNeighbours forgets every neighbour that has not been the source
// of a frame within expiry, freeing its short address. Local stations are
// kept. It returns how many were removed.
func (b *Bridge) CleanupStaleNeighbours(expiry time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var stale []uanaddr.Long
	for l, n := range b.neighbours {
		if !n.Local && now.Sub(n.LastHeard) > expiry {
			stale = append(stale, l)
		}
	}
	for _, l := range stale {
		short := b.neighbours[l].Short
		b.removeLocked(l)
		b.stats.NeighboursExpired.Add(1)
		log.Info().Str("bridge", b.name).Str("long", l.String()).Uint8("short", uint8(short)).Msg("bridge: -neighbour expired")
	}
	b.stats.LastCleanupTime = now
	b.stats.LastCleanupCount = len(stale)
	return len(stale)
}

func (b *Bridge) cleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(b.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.CleanupStaleNeighbours(b.expiry)
		case <-ctx.Done():
			return
		}
	}
}
