// Package scheduler implements the Scheduler (C7): converts Agent.schedule
// cron strings into timed dispatches to the Task Runner, grounded on
// github.com/robfig/cron/v3 (the teacher has no cron-expression scheduler,
// only the fixed-interval queue-drain in internal/orchestrator/scheduler).
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/orchcore/orchcore/internal/common/logger"
	"github.com/orchcore/orchcore/internal/domain"
)

// AgentLister is the subset of C1's AgentRepository the scheduler needs on
// startup (spec §4.7 load_from_storage).
type AgentLister interface {
	ListScheduled(ctx context.Context) ([]*domain.Agent, error)
}

// BusyChecker reports whether an agent already has a run in flight, used
// for the skip-on-busy dispatch policy (spec §4.7: "no queue-up").
type BusyChecker interface {
	IsHeld(agentID string) bool
}

// Scheduler owns a robfig/cron/v3 registry of agent schedules.
type Scheduler struct {
	cron  *cron.Cron
	log   *logger.Logger
	agent AgentLister
	run   func(ctx context.Context, agentID string)
	busy  BusyChecker

	mu      sync.Mutex
	entries map[string]cron.EntryID // agent id -> cron entry
}

// New constructs a Scheduler. run is invoked on each cron fire and is
// expected to call C6's execute_agent_task; it is a plain func rather than
// an interface to sidestep the parameter-shape coupling
// while still letting callers wire in taskrunner.Runner.Execute directly.
func New(location string, agents AgentLister, busy BusyChecker, run func(ctx context.Context, agentID string), log *logger.Logger) (*Scheduler, error) {
	loc, err := timeLocation(location)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc), cron.WithParser(cronParser)),
		log:     log.WithFields(zap.String("component", "scheduler")),
		agent:   agents,
		run:     run,
		busy:    busy,
		entries: make(map[string]cron.EntryID),
	}, nil
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// LoadFromStorage registers every agent with a non-null schedule found in
// storage (spec §4.7). Invalid cron strings are logged and skipped, never
// fatal — defense in depth alongside C1's write-time validation.
func (s *Scheduler) LoadFromStorage(ctx context.Context) error {
	agents, err := s.agent.ListScheduled(ctx)
	if err != nil {
		return err
	}
	for _, a := range agents {
		if err := s.ScheduleAgent(a); err != nil {
			s.log.Warn("skipping agent with invalid schedule",
				zap.String("agent_id", a.ID), zap.Error(err))
		}
	}
	return nil
}

// ScheduleAgent registers (or replaces) a cron job for an agent.
func (s *Scheduler) ScheduleAgent(a *domain.Agent) error {
	if !a.IsScheduled() {
		s.UnscheduleAgent(a.ID)
		return nil
	}
	if _, err := cronParser.Parse(*a.Schedule); err != nil {
		return err
	}

	s.UnscheduleAgent(a.ID)

	agentID := a.ID
	entryID, err := s.cron.AddFunc(*a.Schedule, func() { s.fire(agentID) })
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[a.ID] = entryID
	s.mu.Unlock()
	return nil
}

// UnscheduleAgent removes an agent's cron job, if any.
func (s *Scheduler) UnscheduleAgent(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[agentID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, agentID)
	}
}

// RefreshAgent re-registers an agent's schedule after an update (spec §4.7:
// called by repositories after writes).
func (s *Scheduler) RefreshAgent(a *domain.Agent) error {
	return s.ScheduleAgent(a)
}

// NextRunAt implements taskrunner.NextRunComputer: it reparses schedule
// through the same parser ScheduleAgent registers jobs with and reports its
// next fire time strictly after from (spec §8's cron_next(s, now) property).
func (s *Scheduler) NextRunAt(schedule string, from time.Time) (time.Time, bool) {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return time.Time{}, false
	}
	return sched.Next(from), true
}

func (s *Scheduler) fire(agentID string) {
	if s.busy != nil && s.busy.IsHeld(agentID) {
		s.log.Info("skipping tick, agent busy", zap.String("agent_id", agentID))
		return
	}
	s.run(context.Background(), agentID)
}

// Start begins the cron scheduler's own goroutine (spec §4.7 "Concurrency:
// scheduler runs on its own coroutine").
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler, waiting for any in-progress fire to complete.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }
