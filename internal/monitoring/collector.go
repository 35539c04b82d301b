package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/philgeps-cli/internal/model"
	"github.com/sells-group/philgeps-cli/internal/store"
)

// historyLimit bounds how many logged sessions a collection reads.
const historyLimit = 500

// KindHealth summarizes the logged sessions of one record kind.
type KindHealth struct {
	Kind model.RecordKind `json:"kind"`

	// Counts within the lookback window.
	Sessions   int     `json:"sessions"`
	Succeeded  int     `json:"succeeded"`
	Failed     int     `json:"failed"`
	FailRate   float64 `json:"fail_rate"`
	NewRecords int     `json:"new_records"`
	Errors     int     `json:"errors"`

	// Over the whole readable history.
	Logged              int        `json:"logged"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
}

// MetricsSnapshot holds a point-in-time view of scrape health.
type MetricsSnapshot struct {
	Kinds         []KindHealth `json:"kinds"`
	LookbackHours int          `json:"lookback_hours"`
	CollectedAt   time.Time    `json:"collected_at"`
}

// SessionLister reads the session log.
type SessionLister interface {
	ListSessions(ctx context.Context, filter store.SessionFilter) ([]model.ScrapeSession, error)
}

// Collector gathers session metrics from the store.
type Collector struct {
	sessions SessionLister
	now      func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(sessions SessionLister) *Collector {
	return &Collector{sessions: sessions, now: time.Now}
}

// Collect gathers a snapshot of session health over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	for _, kind := range model.AllKinds() {
		sessions, err := c.sessions.ListSessions(ctx, store.SessionFilter{Kind: kind, Limit: historyLimit})
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: list %s sessions", kind)
		}
		snap.Kinds = append(snap.Kinds, summarize(kind, sessions, cutoff))
	}
	return snap, nil
}

// summarize folds sessions, newest first, into a KindHealth.
func summarize(kind model.RecordKind, sessions []model.ScrapeSession, cutoff time.Time) KindHealth {
	h := KindHealth{Kind: kind, Logged: len(sessions)}
	streak := true
	for _, s := range sessions {
		if s.Success && h.LastSuccess == nil {
			t := s.StartedAt
			h.LastSuccess = &t
		}
		if streak {
			if s.Success {
				streak = false
			} else {
				h.ConsecutiveFailures++
			}
		}

		if s.StartedAt.Before(cutoff) {
			continue
		}
		h.Sessions++
		h.NewRecords += s.NewRecords
		h.Errors += s.Errors
		if s.Success {
			h.Succeeded++
		} else {
			h.Failed++
		}
	}
	if h.Sessions > 0 {
		h.FailRate = float64(h.Failed) / float64(h.Sessions)
	}
	return h
}
