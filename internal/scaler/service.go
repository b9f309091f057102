package scaler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mtorres/runnerfleet/internal/condor"
	"github.com/mtorres/runnerfleet/internal/github"
)

// Targets is the fleet's declared sizing, immutable for the service's
// lifetime. Everything else is derived fresh from queried state on each
// iteration.
type Targets struct {
	FleetName  string
	Org        string
	Repo       string
	IdleTarget int
	TotalSlots int
}

// Service is the per-fleet supervisory loop. Each poll it deletes dead
// registrations, trims idle surplus, and pushes a new concurrency ceiling to
// the scheduler so the pool tracks demand.
type Service struct {
	targets Targets
	gh      github.API
	sched   condor.Scheduler

	interval time.Duration

	mu   sync.Mutex
	snap Snapshot
}

// Snapshot is the outcome of the most recent reconciliation, served by the
// status endpoint.
type Snapshot struct {
	Busy      int       `json:"busy"`
	Idle      int       `json:"idle"`
	Offline   int       `json:"offline"`
	Ceiling   int       `json:"ceiling"`
	LastPoll  time.Time `json:"lastPoll"`
	LastError string    `json:"lastError,omitempty"`
}

func New(targets Targets, gh github.API, sched condor.Scheduler) *Service {
	return &Service{
		targets:  targets,
		gh:       gh,
		sched:    sched,
		interval: 60 * time.Second,
	}
}

// SetInterval overrides the poll interval (tests use a short one).
func (s *Service) SetInterval(d time.Duration) { s.interval = d }

// Run loops until the context is cancelled. A failed iteration is logged and
// the loop continues; one bad API response must never kill the supervisor.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Autoscaler for fleet %s shutting down", s.targets.FleetName)
			return
		case <-ticker.C:
			if err := s.iterate(ctx); err != nil {
				log.Printf("Warning: reconciliation for fleet %s failed: %v", s.targets.FleetName, err)
				s.mu.Lock()
				s.snap.LastError = err.Error()
				s.mu.Unlock()
			}
		}
	}
}

// iterate performs one reconciliation pass.
func (s *Service) iterate(ctx context.Context) error {
	runners, err := s.gh.ListRunners(ctx, s.targets.Org, s.targets.Repo)
	if err != nil {
		return err
	}
	sets := github.PartitionRunners(runners, s.targets.FleetName)

	// Offline means permanently dead: these VMs are gone, only the stale
	// registration remains. No grace period.
	for _, id := range sets.Offline {
		if err := s.gh.DeleteRunner(ctx, s.targets.Org, s.targets.Repo, id); err != nil {
			log.Printf("Warning: deleting offline runner %d: %v", id, err)
		}
	}

	// Trim idle surplus in iteration order. A runner may pick up a job
	// between listing and delete; the platform is authoritative, so a
	// delete refusal is expected noise.
	if surplus := len(sets.Idle) - s.targets.IdleTarget; surplus > 0 {
		for _, id := range sets.Idle[:surplus] {
			if err := s.gh.DeleteRunner(ctx, s.targets.Org, s.targets.Repo, id); err != nil {
				log.Printf("Warning: deleting idle runner %d: %v", id, err)
			}
		}
	}

	ceiling := Ceiling(len(sets.Busy), s.targets.IdleTarget, s.targets.TotalSlots)
	if err := s.sched.SetMaxRunning(ctx, s.targets.FleetName, ceiling); err != nil {
		return err
	}

	s.mu.Lock()
	s.snap = Snapshot{
		Busy:     len(sets.Busy),
		Idle:     len(sets.Idle),
		Offline:  len(sets.Offline),
		Ceiling:  ceiling,
		LastPoll: time.Now().UTC(),
	}
	s.mu.Unlock()

	log.Printf("Fleet %s: busy=%d idle=%d offline=%d ceiling=%d",
		s.targets.FleetName, len(sets.Busy), len(sets.Idle), len(sets.Offline), ceiling)
	return nil
}

// Ceiling is the desired cap on concurrently running slots: enough for
// everything busy plus the idle reserve, never above the fleet's total.
func Ceiling(busy, idleTarget, totalSlots int) int {
	c := busy + idleTarget
	if c > totalSlots {
		c = totalSlots
	}
	return c
}

func (s *Service) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}
