package queue

import (
	"math/rand"
	"time"

	"autotrader/internal/core"
)

// DefaultSchedules holds the per-type base retry delays. The delay for attempt
// n (0-indexed) is schedule[min(n, len-1)] plus uniform jitter in [0, 0.2*base].
var DefaultSchedules = map[core.WorkItemType][]time.Duration{
	core.WorkItemOrderSubmit:        {1 * time.Second, 5 * time.Second, 15 * time.Second},
	core.WorkItemOrderCancel:        {1 * time.Second, 3 * time.Second, 10 * time.Second},
	core.WorkItemOrderSync:          {5 * time.Second, 15 * time.Second, 60 * time.Second},
	core.WorkItemPositionClose:      {1 * time.Second, 5 * time.Second, 15 * time.Second},
	core.WorkItemKillSwitch:         {500 * time.Millisecond, 2 * time.Second, 5 * time.Second},
	core.WorkItemDecisionEvaluation: {2 * time.Second, 10 * time.Second, 30 * time.Second},
	core.WorkItemAssetUniverseSync:  {1 * time.Minute, 5 * time.Minute, 10 * time.Minute},
}

// Backoff computes retry delays from per-type schedules
type Backoff struct {
	schedules map[core.WorkItemType][]time.Duration
}

// NewBackoff creates a backoff policy; nil schedules means the defaults
func NewBackoff(schedules map[core.WorkItemType][]time.Duration) *Backoff {
	if schedules == nil {
		schedules = DefaultSchedules
	}
	return &Backoff{schedules: schedules}
}

// Delay returns the jittered delay before attempt n (0-indexed) of typ
func (b *Backoff) Delay(typ core.WorkItemType, attempt int) time.Duration {
	schedule, ok := b.schedules[typ]
	if !ok || len(schedule) == 0 {
		schedule = []time.Duration{1 * time.Second, 5 * time.Second, 15 * time.Second}
	}

	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(schedule) {
		attempt = len(schedule) - 1
	}

	base := schedule[attempt]
	jitter := time.Duration(rand.Int63n(int64(base) / 5))
	return base + jitter
}
