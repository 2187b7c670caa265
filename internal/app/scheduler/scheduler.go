package scheduler

import (
	"context"
	"errors"
	"fabtracker/internal/app/guild"
	"fabtracker/internal/app/lock"
	"fabtracker/internal/app/logger"
	"fabtracker/internal/app/metrics"
	"fabtracker/internal/app/statemachine"
	"sort"
	"sync"
	"time"
)

const (
	StateIdle    statemachine.State = statemachine.StateIdle
	StateDue     statemachine.State = "Due"
	StateRunning statemachine.State = "Running"

	EventDue      statemachine.Event = "due"
	EventRun      statemachine.Event = "run"
	EventComplete statemachine.Event = "complete"
	EventCancel   statemachine.Event = "cancel"
)

var transitions = statemachine.TransitionsList{
	EventDue:      {From: []statemachine.State{StateIdle}, To: StateDue},
	EventRun:      {From: []statemachine.State{StateIdle, StateDue}, To: StateRunning},
	EventComplete: {From: []statemachine.State{StateRunning}, To: StateIdle},
	EventCancel:   {From: []statemachine.State{StateDue}, To: StateIdle},
}

const releaseTimeout = 10 * time.Second

// Cycles started by the same poll share a tick, so work can be deduplicated across guilds.
type Tick struct {
	Id        uint64
	StartedAt time.Time
}

type Runner interface {
	RunCycle(ctx context.Context, tick Tick, guildId string) error
	// Called once every cycle of the tick has finished.
	CloseTick(tick Tick)
}

type ConfigSource interface {
	FindAll(ctx context.Context) ([]guild.Config, error)
}

type entry struct {
	config    guild.Config
	nextDueAt time.Time
	machine   *statemachine.StateMachine
}

type Scheduler struct {
	mutex        sync.Mutex
	entries      map[string]*entry
	ticks        map[uint64]int
	lastTickId   uint64
	running      sync.WaitGroup
	locker       lock.Locker
	runner       Runner
	logger       logger.LoggerInterface
	pollInterval time.Duration
	now          func() time.Time
	// Context of manual cycles, outlives the request that started them.
	cycleContext context.Context
}

func NewScheduler(locker lock.Locker, runner Runner, logger logger.LoggerInterface, pollInterval time.Duration) *Scheduler {
	return &Scheduler{
		entries:      map[string]*entry{},
		ticks:        map[uint64]int{},
		locker:       locker,
		runner:       runner,
		logger:       logger,
		pollInterval: pollInterval,
		now:          time.Now,
		cycleContext: context.Background(),
	}
}

// Replace time source.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Schedule every stored guild.
func (s *Scheduler) Load(ctx context.Context, source ConfigSource) error {
	configs, err := source.FindAll(ctx)
	if err != nil {
		return err
	}

	for _, config := range configs {
		s.Reschedule(ctx, config)
	}

	s.logger.Println("Scheduled", len(configs), "guild(s)")

	return nil
}

// Apply changed guild config and recompute next due time right away.
func (s *Scheduler) Reschedule(ctx context.Context, config guild.Config) time.Time {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	item := s.getOrCreate(config)
	item.config = config
	item.nextDueAt = config.NextDueAt(s.now())

	if item.machine.IsInOneOfStates(StateDue) {
		s.trigger(ctx, config.Id, item, EventCancel)
	}

	return item.nextDueAt
}

func (s *Scheduler) Remove(guildId string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.entries, guildId)
}

func (s *Scheduler) NextDueAt(guildId string) (time.Time, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	item, ok := s.entries[guildId]
	if !ok {
		return time.Time{}, false
	}

	return item.nextDueAt, true
}

func (s *Scheduler) State(guildId string) (statemachine.State, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	item, ok := s.entries[guildId]
	if !ok {
		return "", false
	}

	return item.machine.GetCurrentState(), true
}

// Poll schedules until context is done, then wait for running cycles.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Println("Scheduler started, polling every", s.pollInterval)

	s.mutex.Lock()
	s.cycleContext = ctx
	s.mutex.Unlock()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		s.Tick(ctx)

		select {
		case <-ctx.Done():
			s.Wait()
			s.logger.Println("Scheduler stopped")

			return nil
		case <-ticker.C:
		}
	}
}

// Mark guilds past their due time and start those whose lock is free.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	currentTime := s.now()
	tick := s.newTick(currentTime)

	for _, guildId := range s.sortedIds() {
		item := s.entries[guildId]

		if item.machine.IsInOneOfStates(StateIdle) && !currentTime.Before(item.nextDueAt) {
			s.trigger(ctx, guildId, item, EventDue)
		}

		if !item.machine.IsInOneOfStates(StateDue) {
			continue
		}

		handle, err := s.locker.TryAcquire(ctx, lock.GuildKey(guildId))
		if errors.Is(err, lock.ErrBusy) {
			s.logger.Println("Guild", guildId, "is busy, retrying next poll")
			metrics.CheckCycles.WithLabelValues(metrics.ResultBusy).Inc()
			continue
		}

		if err != nil {
			s.logger.Error("Unable to acquire lock of guild", guildId, err)
			continue
		}

		s.start(ctx, tick, guildId, item, handle)
	}

	if s.ticks[tick.Id] == 0 {
		delete(s.ticks, tick.Id)
		s.runner.CloseTick(tick)
	}
}

// Start manual check now, lock contention is returned as lock.ErrBusy.
func (s *Scheduler) ForceCheck(ctx context.Context, config guild.Config) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	item := s.getOrCreate(config)
	item.config = config

	if item.machine.IsInOneOfStates(StateRunning) {
		return lock.ErrBusy
	}

	handle, err := s.locker.TryAcquire(ctx, lock.GuildKey(config.Id))
	if err != nil {
		return err
	}

	s.start(s.cycleContext, s.newTick(s.now()), config.Id, item, handle)

	return nil
}

// Block until every started cycle has finished.
func (s *Scheduler) Wait() {
	s.running.Wait()
}

func (s *Scheduler) start(ctx context.Context, tick Tick, guildId string, item *entry, handle lock.Handle) {
	s.trigger(ctx, guildId, item, EventRun)
	s.ticks[tick.Id]++
	s.running.Add(1)

	go s.execute(ctx, tick, guildId, item, handle)
}

func (s *Scheduler) execute(ctx context.Context, tick Tick, guildId string, item *entry, handle lock.Handle) {
	defer s.running.Done()

	s.logger.Println("Check of guild", guildId, "started")

	if err := s.runner.RunCycle(ctx, tick, guildId); err != nil {
		s.logger.Error("Check of guild", guildId, "failed:", err)
		metrics.CheckCycles.WithLabelValues(metrics.ResultFailure).Inc()
	} else {
		s.logger.Println("Check of guild", guildId, "complete")
		metrics.CheckCycles.WithLabelValues(metrics.ResultSuccess).Inc()
	}

	releaseContext, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := s.locker.Release(releaseContext, handle); err != nil {
		s.logger.Warn("Unable to release lock of guild", guildId, err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	// removed or replaced entries keep their own schedule
	if current, ok := s.entries[guildId]; ok && current == item {
		item.nextDueAt = item.config.NextDueAt(s.now())
		s.trigger(ctx, guildId, item, EventComplete)
	}

	s.ticks[tick.Id]--
	if s.ticks[tick.Id] <= 0 {
		delete(s.ticks, tick.Id)
		s.runner.CloseTick(tick)
	}
}

func (s *Scheduler) getOrCreate(config guild.Config) *entry {
	item, ok := s.entries[config.Id]
	if !ok {
		item = &entry{
			config:    config,
			nextDueAt: config.NextDueAt(s.now()),
			machine:   statemachine.NewFSM(StateIdle, transitions),
		}

		s.entries[config.Id] = item
	}

	return item
}

func (s *Scheduler) newTick(startedAt time.Time) Tick {
	s.lastTickId++

	return Tick{Id: s.lastTickId, StartedAt: startedAt}
}

func (s *Scheduler) trigger(ctx context.Context, guildId string, item *entry, event statemachine.Event) {
	if _, err := item.machine.TriggerEvent(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("Guild", guildId, "can't handle", event, "event:", err, "resetting to", StateIdle)
		item.machine.Reset()
	}
}

func (s *Scheduler) sortedIds() []string {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}
