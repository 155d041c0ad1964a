package bridge

import (
	"sync/atomic"
	"time"
)

// Stats holds runtime counters.
type Stats struct {
	FramesOut         atomic.Uint64
	FramesIn          atomic.Uint64
	FramesDropped     atomic.Uint64
	NeighboursLearned atomic.Uint64
	NeighboursExpired atomic.Uint64
	LastCleanupTime   time.Time // guarded by Bridge.mu
	LastCleanupCount  int       // guarded by Bridge.mu
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Name              string    `json:"name"`
	FramesOut         uint64    `json:"framesOut"`
	FramesIn          uint64    `json:"framesIn"`
	FramesDropped     uint64    `json:"framesDropped"`
	NeighboursLearned uint64    `json:"neighboursLearned"`
	NeighboursExpired uint64    `json:"neighboursExpired"`
	Translations      int       `json:"translations"`
	LastCleanupTime   time.Time `json:"lastCleanupTime"`
	LastCleanupCount  int       `json:"lastCleanupCount"`
}

func (b *Bridge) Stats() StatsSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return StatsSnapshot{
		Name:              b.name,
		FramesOut:         b.stats.FramesOut.Load(),
		FramesIn:          b.stats.FramesIn.Load(),
		FramesDropped:     b.stats.FramesDropped.Load(),
		NeighboursLearned: b.stats.NeighboursLearned.Load(),
		NeighboursExpired: b.stats.NeighboursExpired.Load(),
		Translations:      b.tr.Len(),
		LastCleanupTime:   b.stats.LastCleanupTime,
		LastCleanupCount:  b.stats.LastCleanupCount,
	}
}
