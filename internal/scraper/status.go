package scraper

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/philgeps-cli/internal/model"
)

// Phase is an orchestrator state.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseBrowserInit    Phase = "browser_init"
	PhaseAuthenticating Phase = "authenticating"
	PhaseListingCrawl   Phase = "listing_crawl"
	PhaseDedup          Phase = "dedup"
	PhasePartition      Phase = "partition"
	PhaseScraping       Phase = "scraping"
	PhaseAggregating    Phase = "aggregating"
	PhaseCleanup        Phase = "cleanup"
	PhaseDone           Phase = "done"
)

var (
	// ErrBusy is returned by Begin while another session is running.
	ErrBusy = eris.New("scraper: a session is already running")
	// ErrStopped is returned by Begin after RequestStop until Resume.
	ErrStopped = eris.New("scraper: stop requested, new sessions are refused")
)

// Status is the run state owned by whoever triggers sessions (the CLI or the
// server). The orchestrator writes it at state checkpoints; pollers read
// copies through Snapshot.
type Status struct {
	mu            sync.Mutex
	running       bool
	stopRequested bool
	kind          model.RecordKind
	phase         Phase
	processed     int
	total         int
	startedAt     time.Time
	finishedAt    time.Time
	last          *model.RunSummary
}

// StatusSnapshot is a point-in-time copy of Status.
type StatusSnapshot struct {
	Running       bool              `json:"running"`
	StopRequested bool              `json:"stop_requested"`
	Kind          model.RecordKind  `json:"kind,omitempty"`
	Phase         Phase             `json:"phase"`
	Processed     int               `json:"processed"`
	Total         int               `json:"total"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	FinishedAt    *time.Time        `json:"finished_at,omitempty"`
	LastRun       *model.RunSummary `json:"last_run,omitempty"`
}

// NewStatus returns an idle Status.
func NewStatus() *Status {
	return &Status{phase: PhaseIdle}
}

// CanStart reports why a new session would be refused, or nil.
func (s *Status) CanStart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canStartLocked()
}

func (s *Status) canStartLocked() error {
	if s.stopRequested {
		return ErrStopped
	}
	if s.running {
		return ErrBusy
	}
	return nil
}

// Begin marks a session of kind as running.
func (s *Status) Begin(kind model.RecordKind, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.canStartLocked(); err != nil {
		return err
	}
	s.running = true
	s.kind = kind
	s.phase = PhaseBrowserInit
	s.processed, s.total = 0, 0
	s.startedAt = now
	return nil
}

// SetPhase records the current orchestrator state.
func (s *Status) SetPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// SetTotal records how many records the workers were handed.
func (s *Status) SetTotal(n int) {
	s.mu.Lock()
	s.total = n
	s.mu.Unlock()
}

// Advance counts one processed record, successful or not.
func (s *Status) Advance() {
	s.mu.Lock()
	s.processed++
	s.mu.Unlock()
}

// Finish marks the session done and keeps its summary for pollers.
func (s *Status) Finish(summary model.RunSummary, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.phase = PhaseDone
	s.finishedAt = now
	s.last = &summary
}

// RequestStop refuses further sessions. An active session is not preempted.
func (s *Status) RequestStop() {
	s.mu.Lock()
	s.stopRequested = true
	s.mu.Unlock()
}

// Resume clears a stop request.
func (s *Status) Resume() {
	s.mu.Lock()
	s.stopRequested = false
	s.mu.Unlock()
}

// StopRequested reports whether RequestStop is in effect.
func (s *Status) StopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRequested
}

// Snapshot returns a copy safe to hand to another goroutine.
func (s *Status) Snapshot() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := StatusSnapshot{
		Running:       s.running,
		StopRequested: s.stopRequested,
		Kind:          s.kind,
		Phase:         s.phase,
		Processed:     s.processed,
		Total:         s.total,
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		snap.StartedAt = &t
	}
	if !s.finishedAt.IsZero() {
		t := s.finishedAt
		snap.FinishedAt = &t
	}
	if s.last != nil {
		last := *s.last
		last.Failed = append([]model.FailedRecord(nil), s.last.Failed...)
		snap.LastRun = &last
	}
	return snap
}
