// Package onboarding implements the gamified setup flow as a state machine.
//
// A Machine owns one member's OnboardingState and its transition table. The
// Service keeps one Machine per member and persists snapshots after every
// mutation.
package onboarding

import (
	"fmt"
	"sync"
	"time"

	"github.com/AnshRaj112/physiq-backend/internal/clock"
	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/services"
)

// DefaultCelebrationDuration is how long ShowCelebration stays set.
const DefaultCelebrationDuration = 3000 * time.Millisecond

// Steps is the flow in order. complete is terminal.
var Steps = []models.OnboardingStep{
	models.StepWelcome,
	models.StepCategory,
	models.StepProfile,
	models.StepEngagement,
	models.StepFirstPost,
	models.StepRewards,
	models.StepStreak,
	models.StepComplete,
}

// RecoveryStep is where invalid jumps land.
const RecoveryStep = models.StepCategory

var next = func() map[models.OnboardingStep]models.OnboardingStep {
	m := make(map[models.OnboardingStep]models.OnboardingStep, len(Steps)-1)
	for i := 0; i < len(Steps)-1; i++ {
		m[Steps[i]] = Steps[i+1]
	}
	return m
}()

// ValidStep reports whether step is part of the flow.
func ValidStep(step models.OnboardingStep) bool {
	_, ok := next[step]
	return ok || step == models.StepComplete
}

var badgeCatalog = map[models.BadgeID]models.Badge{
	models.BadgeEarlyAdopter: {
		ID:          models.BadgeEarlyAdopter,
		Name:        "Early Adopter",
		Description: "Joined physiq during launch season",
		Icon:        "🚀",
	},
	models.BadgeProfilePro: {
		ID:          models.BadgeProfilePro,
		Name:        "Profile Pro",
		Description: "Completed your athlete profile",
		Icon:        "🏅",
	},
	models.BadgeFirstPost: {
		ID:          models.BadgeFirstPost,
		Name:        "First Post",
		Description: "Shared your first physique update",
		Icon:        "📸",
	},
}

// awardOnLeave maps a step to the badge earned by finishing it.
var awardOnLeave = map[models.OnboardingStep]models.BadgeID{
	models.StepProfile:   models.BadgeProfilePro,
	models.StepFirstPost: models.BadgeFirstPost,
}

// NewState returns the initial state for a member who has not started yet.
func NewState(userID string) *models.OnboardingState {
	return &models.OnboardingState{
		UserID:         userID,
		CurrentStep:    models.StepWelcome,
		CompletedSteps: []models.OnboardingStep{},
		UserData:       models.OnboardingData{Badges: []models.Badge{}},
	}
}

// Machine is safe for concurrent use. Create it with NewMachine.
type Machine struct {
	mu    sync.Mutex
	clock clock.Clock
	state models.OnboardingState

	celebration time.Duration
	timer       *time.Timer
	generation  uint64
	closed      bool
}

// NewMachine takes ownership of state. A celebration duration <= 0 uses
// DefaultCelebrationDuration.
func NewMachine(state *models.OnboardingState, clk clock.Clock, celebration time.Duration) *Machine {
	if state == nil {
		panic("onboarding: NewMachine with nil state")
	}
	if celebration <= 0 {
		celebration = DefaultCelebrationDuration
	}
	st := *state
	if !ValidStep(st.CurrentStep) {
		st.CurrentStep = RecoveryStep
	}
	if st.CompletedSteps == nil {
		st.CompletedSteps = []models.OnboardingStep{}
	}
	if st.UserData.Badges == nil {
		st.UserData.Badges = []models.Badge{}
	}
	return &Machine{clock: clk, state: st, celebration: celebration}
}

// State returns a copy of the current state.
func (m *Machine) State() models.OnboardingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return snapshot(&m.state)
}

func (m *Machine) CurrentStep() models.OnboardingStep {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CurrentStep
}

// Begin records the first visit to the flow. The first call at welcome
// awards the early-adopter badge; later calls change nothing.
func (m *Machine) Begin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.CurrentStep != models.StepWelcome {
		return false
	}
	return m.awardLocked(models.BadgeEarlyAdopter, true)
}

// NextStep advances to the following step and marks the current one done.
// At complete it does nothing and returns false.
func (m *Machine) NextStep() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.state.CurrentStep
	to, ok := next[cur]
	if !ok {
		return false
	}

	m.markCompletedLocked(cur)
	if badge, ok := awardOnLeave[cur]; ok {
		m.awardLocked(badge, true)
	}
	m.enterLocked(to)
	return true
}

// GoToStep jumps to step. An unknown step moves the machine to RecoveryStep
// and returns an InvalidStep error.
func (m *Machine) GoToStep(step models.OnboardingStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !ValidStep(step) {
		m.state.CurrentStep = RecoveryStep
		return &services.Error{Kind: services.KindInvalidStep, Message: fmt.Sprintf("unknown onboarding step %q", step)}
	}
	m.enterLocked(step)
	return nil
}

// AddPoints adds n points. Negative n is ignored.
func (m *Machine) AddPoints(n int) bool {
	if n < 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.UserData.Points += n
	return true
}

// AddBadge awards a badge by id. Unknown ids and badges already held are ignored.
func (m *Machine) AddBadge(id models.BadgeID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.awardLocked(id, false)
}

// UpdateUserData copies the non-nil fields of patch into the user data.
func (m *Machine) UpdateUserData(patch models.OnboardingDataPatch) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := &m.state.UserData
	if patch.Goals != nil {
		d.Goals = append([]string(nil), (*patch.Goals)...)
	}
	if patch.CompletedMissions != nil {
		d.CompletedMissions = append([]string(nil), (*patch.CompletedMissions)...)
	}
	if patch.TrainingStyles != nil {
		d.TrainingStyles = append([]string(nil), (*patch.TrainingStyles)...)
	}
	setString(&d.Category, patch.Category)
	setString(&d.GymType, patch.GymType)
	setString(&d.Username, patch.Username)
	setString(&d.Bio, patch.Bio)
	setString(&d.Gender, patch.Gender)
	setString(&d.ProfileImage, patch.ProfileImage)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// TriggerCelebration raises ShowCelebration and schedules it to drop after
// the celebration duration. A newer trigger supersedes an older timer.
func (m *Machine) TriggerCelebration() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.celebrateLocked()
}

// RecordActivity updates the daily streak for activity at now and returns it.
// Days are UTC calendar days.
func (m *Machine) RecordActivity(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := &m.state.UserData
	now = now.UTC()
	today := truncateDay(now)

	switch {
	case d.LastActive == nil:
		d.Streak = 1
	default:
		days := int(today.Sub(truncateDay(d.LastActive.UTC())) / (24 * time.Hour))
		switch {
		case days <= 0:
			if d.Streak == 0 {
				d.Streak = 1
			}
		case days == 1:
			d.Streak++
		default:
			d.Streak = 1
		}
	}
	d.LastActive = &now
	return d.Streak
}

func truncateDay(t time.Time) time.Time {
	y, mo, day := t.Date()
	return time.Date(y, mo, day, 0, 0, 0, 0, time.UTC)
}

// Close stops the celebration timer. Pending timers become no-ops.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.generation++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) enterLocked(step models.OnboardingStep) {
	m.state.CurrentStep = step
	if step != models.StepComplete {
		return
	}
	m.state.UserData.OnboardingCompleted = true
	if m.state.CompletedAt == nil {
		now := m.clock.Now()
		m.state.CompletedAt = &now
	}
}

func (m *Machine) markCompletedLocked(step models.OnboardingStep) {
	for _, s := range m.state.CompletedSteps {
		if s == step {
			return
		}
	}
	m.state.CompletedSteps = append(m.state.CompletedSteps, step)
}

func (m *Machine) awardLocked(id models.BadgeID, celebrate bool) bool {
	badge, ok := badgeCatalog[id]
	if !ok {
		return false
	}
	for _, b := range m.state.UserData.Badges {
		if b.ID == id {
			return false
		}
	}
	badge.EarnedAt = m.clock.Now()
	m.state.UserData.Badges = append(m.state.UserData.Badges, badge)
	if celebrate {
		m.celebrateLocked()
	}
	return true
}

func (m *Machine) celebrateLocked() {
	if m.closed {
		return
	}
	m.state.ShowCelebration = true
	m.generation++
	gen := m.generation
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.celebration, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed || m.generation != gen {
			return
		}
		m.state.ShowCelebration = false
		m.timer = nil
	})
}

func snapshot(s *models.OnboardingState) models.OnboardingState {
	out := *s
	out.CompletedSteps = append([]models.OnboardingStep{}, s.CompletedSteps...)
	out.UserData.Badges = append([]models.Badge{}, s.UserData.Badges...)
	out.UserData.Goals = append([]string(nil), s.UserData.Goals...)
	out.UserData.CompletedMissions = append([]string(nil), s.UserData.CompletedMissions...)
	out.UserData.TrainingStyles = append([]string(nil), s.UserData.TrainingStyles...)
	if s.UserData.LastActive != nil {
		t := *s.UserData.LastActive
		out.UserData.LastActive = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
