package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AnshRaj112/physiq-backend/internal/clock"
	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/repository"
	"github.com/AnshRaj112/physiq-backend/internal/services"
)

const (
	machinePruneInterval = 5 * time.Minute
	machineIdleTTL       = 30 * time.Minute
)

// Service keeps one Machine per active member and writes a snapshot back to
// the repository after every mutation. Machines idle for machineIdleTTL are
// dropped on access; the next call reloads them.
type Service struct {
	repo        repository.OnboardingRepository
	clock       clock.Clock
	celebration time.Duration

	mu        sync.Mutex
	machines  map[string]*entry
	lastPrune time.Time
	// removals counts entries dropped from machines; a load that started
	// before a removal may hold a stale snapshot.
	removals uint64
}

type entry struct {
	// op serializes mutate-then-save so snapshots are saved in order.
	op sync.Mutex
	m  *Machine

	// Guarded by Service.mu.
	lastUse time.Time
	// evicted is set under op once the entry has left the registry.
	evicted bool
}

func NewService(repo repository.OnboardingRepository, clk clock.Clock, celebration time.Duration) *Service {
	if repo == nil {
		panic("onboarding: NewService with nil repository")
	}
	return &Service{
		repo:        repo,
		clock:       clk,
		celebration: celebration,
		machines:    make(map[string]*entry),
		lastPrune:   clk.Now(),
	}
}

// Machine returns the member's machine, loading it or starting a fresh flow.
func (s *Service) Machine(ctx context.Context, userID string) (*Machine, error) {
	e, err := s.entry(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.m, nil
}

// lookup returns the registered entry for userID, or nil with the current
// removal count, and prunes idle entries.
func (s *Service) lookup(userID string) (*entry, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if now.Sub(s.lastPrune) > machinePruneInterval {
		s.pruneLocked(now)
		s.lastPrune = now
	}
	e, ok := s.machines[userID]
	if ok {
		e.lastUse = now
	}
	return e, s.removals
}

// pruneLocked drops idle entries. Entries with an operation in flight are
// skipped and picked up by a later pass.
func (s *Service) pruneLocked(now time.Time) {
	for id, e := range s.machines {
		if now.Sub(e.lastUse) <= machineIdleTTL || !e.op.TryLock() {
			continue
		}
		delete(s.machines, id)
		s.removals++
		e.evicted = true
		e.m.Close()
		e.op.Unlock()
	}
}

func (s *Service) entry(ctx context.Context, userID string) (*entry, error) {
	if userID == "" {
		return nil, &services.Error{Kind: services.KindNotAuthenticated, Message: "please log in to continue onboarding"}
	}
	for {
		e, err := s.load(ctx, userID)
		if e != nil || err != nil {
			return e, err
		}
	}
}

// load returns the member's entry, or nil when the registry changed under a
// repository read and the load has to start over.
func (s *Service) load(ctx context.Context, userID string) (*entry, error) {
	e, removals := s.lookup(userID)
	if e != nil {
		return e, nil
	}

	// Load without holding s.mu so first loads of different members overlap.
	state, err := s.repo.GetOnboarding(ctx, userID)
	fresh := errors.Is(err, repository.ErrNotFound)
	if err != nil && !fresh {
		return nil, fmt.Errorf("load onboarding: %w", err)
	}
	if fresh {
		state = NewState(userID)
	}
	m := NewMachine(state, s.clock, s.celebration)

	e = &entry{m: m}
	e.op.Lock()
	s.mu.Lock()
	if existing, ok := s.machines[userID]; ok || s.removals != removals {
		if ok {
			existing.lastUse = s.clock.Now()
		}
		s.mu.Unlock()
		e.op.Unlock()
		m.Close()
		return existing, nil
	}
	e.lastUse = s.clock.Now()
	s.machines[userID] = e
	s.mu.Unlock()
	defer e.op.Unlock()

	if fresh {
		m.Begin()
		snap := m.State()
		if err := s.repo.SaveOnboarding(ctx, &snap); err != nil {
			s.forget(userID, e)
			e.evicted = true
			m.Close()
			return nil, fmt.Errorf("save onboarding: %w", err)
		}
	}
	return e, nil
}

// forget unregisters e if it is still the member's entry.
func (s *Service) forget(userID string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machines[userID] == e {
		delete(s.machines, userID)
		s.removals++
	}
}

// Active reports how many member machines are loaded.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.machines)
}

// acquire returns the member's live entry with op held.
func (s *Service) acquire(ctx context.Context, userID string) (*entry, error) {
	for {
		e, err := s.entry(ctx, userID)
		if err != nil {
			return nil, err
		}
		e.op.Lock()
		if !e.evicted {
			return e, nil
		}
		// Evicted while we waited; its last snapshot is saved, so reload.
		e.op.Unlock()
	}
}

// State returns the member's current snapshot.
func (s *Service) State(ctx context.Context, userID string) (models.OnboardingState, error) {
	e, err := s.acquire(ctx, userID)
	if err != nil {
		return models.OnboardingState{}, err
	}
	defer e.op.Unlock()
	return e.m.State(), nil
}

// Do runs fn against the member's machine and persists the result. The
// returned snapshot is saved even when fn reports an error, since invalid
// jumps still move the machine.
func (s *Service) Do(ctx context.Context, userID string, fn func(m *Machine) error) (models.OnboardingState, error) {
	e, err := s.acquire(ctx, userID)
	if err != nil {
		return models.OnboardingState{}, err
	}
	defer e.op.Unlock()

	fnErr := fn(e.m)
	snap := e.m.State()
	if err := s.repo.SaveOnboarding(ctx, &snap); err != nil {
		return snap, fmt.Errorf("save onboarding: %w", err)
	}
	return snap, fnErr
}

func (s *Service) NextStep(ctx context.Context, userID string) (models.OnboardingState, error) {
	return s.Do(ctx, userID, func(m *Machine) error {
		m.NextStep()
		return nil
	})
}

func (s *Service) GoToStep(ctx context.Context, userID string, step models.OnboardingStep) (models.OnboardingState, error) {
	return s.Do(ctx, userID, func(m *Machine) error {
		return m.GoToStep(step)
	})
}

func (s *Service) AddPoints(ctx context.Context, userID string, n int) (models.OnboardingState, error) {
	return s.Do(ctx, userID, func(m *Machine) error {
		m.AddPoints(n)
		return nil
	})
}

func (s *Service) AddBadge(ctx context.Context, userID string, id models.BadgeID) (models.OnboardingState, error) {
	return s.Do(ctx, userID, func(m *Machine) error {
		m.AddBadge(id)
		return nil
	})
}

func (s *Service) UpdateUserData(ctx context.Context, userID string, patch models.OnboardingDataPatch) (models.OnboardingState, error) {
	return s.Do(ctx, userID, func(m *Machine) error {
		m.UpdateUserData(patch)
		return nil
	})
}

func (s *Service) TriggerCelebration(ctx context.Context, userID string) (models.OnboardingState, error) {
	return s.Do(ctx, userID, func(m *Machine) error {
		m.TriggerCelebration()
		return nil
	})
}

func (s *Service) RecordActivity(ctx context.Context, userID string) (models.OnboardingState, error) {
	return s.Do(ctx, userID, func(m *Machine) error {
		m.RecordActivity(s.clock.Now())
		return nil
	})
}

// Evict closes and forgets the member's machine, waiting for any operation
// in flight. The next call reloads it from the repository.
func (s *Service) Evict(userID string) {
	s.mu.Lock()
	e, ok := s.machines[userID]
	s.mu.Unlock()
	if !ok {
		return
	}

	// The entry stays registered until op is held, so no reload can read
	// the repository before a pending save lands.
	e.op.Lock()
	defer e.op.Unlock()
	s.forget(userID, e)
	if !e.evicted {
		e.evicted = true
		e.m.Close()
	}
}

// Close evicts every machine.
func (s *Service) Close() {
	s.mu.Lock()
	entries := s.machines
	s.machines = make(map[string]*entry)
	s.removals++
	s.mu.Unlock()
	for _, e := range entries {
		e.op.Lock()
		e.evicted = true
		e.m.Close()
		e.op.Unlock()
	}
}
