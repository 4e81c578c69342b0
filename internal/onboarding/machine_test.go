package onboarding

import (
	"testing"
	"time"

	"github.com/AnshRaj112/physiq-backend/internal/clock"
	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

func newMachine(t *testing.T, at models.OnboardingStep) (*Machine, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(start)
	st := NewState("u1")
	st.CurrentStep = at
	m := NewMachine(st, clk, 50*time.Millisecond)
	t.Cleanup(m.Close)
	return m, clk
}

func TestNextStep_FromCategoryReachesComplete(t *testing.T) {
	m, _ := newMachine(t, models.StepCategory)

	for i := 0; i < 6; i++ {
		require.True(t, m.NextStep(), "step %d", i)
	}
	st := m.State()
	assert.Equal(t, models.StepComplete, st.CurrentStep)
	assert.True(t, st.UserData.OnboardingCompleted)
	require.NotNil(t, st.CompletedAt)
	assert.Equal(t, start, *st.CompletedAt)
	assert.ElementsMatch(t, []models.OnboardingStep{
		models.StepCategory, models.StepProfile, models.StepEngagement,
		models.StepFirstPost, models.StepRewards, models.StepStreak,
	}, st.CompletedSteps)

	assert.False(t, m.NextStep())
	assert.Equal(t, models.StepComplete, m.CurrentStep())
}

func TestNextStep_AwardsBadges(t *testing.T) {
	m, _ := newMachine(t, models.StepProfile)

	m.NextStep()
	st := m.State()
	require.Len(t, st.UserData.Badges, 1)
	assert.Equal(t, models.BadgeProfilePro, st.UserData.Badges[0].ID)
	assert.True(t, st.ShowCelebration)

	m.NextStep() // engagement -> firstPost
	m.NextStep() // firstPost -> rewards
	st = m.State()
	require.Len(t, st.UserData.Badges, 2)
	assert.Equal(t, models.BadgeFirstPost, st.UserData.Badges[1].ID)
}

func TestBegin_AwardsEarlyAdopterOnce(t *testing.T) {
	m, _ := newMachine(t, models.StepWelcome)

	assert.True(t, m.Begin())
	assert.False(t, m.Begin())
	st := m.State()
	require.Len(t, st.UserData.Badges, 1)
	assert.Equal(t, models.BadgeEarlyAdopter, st.UserData.Badges[0].ID)
	assert.Equal(t, "Early Adopter", st.UserData.Badges[0].Name)

	m.NextStep()
	assert.False(t, m.Begin())
}

func TestGoToStep(t *testing.T) {
	m, _ := newMachine(t, models.StepWelcome)

	require.NoError(t, m.GoToStep(models.StepRewards))
	assert.Equal(t, models.StepRewards, m.CurrentStep())

	err := m.GoToStep("bogus")
	assert.True(t, services.IsKind(err, services.KindInvalidStep))
	assert.Equal(t, models.StepCategory, m.CurrentStep())
}

func TestComplete_KeepsFirstTimestamp(t *testing.T) {
	m, clk := newMachine(t, models.StepStreak)

	m.NextStep()
	first := *m.State().CompletedAt

	clk.Advance(time.Hour)
	require.NoError(t, m.GoToStep(models.StepProfile))
	require.NoError(t, m.GoToStep(models.StepComplete))

	st := m.State()
	assert.Equal(t, first, *st.CompletedAt)
	assert.True(t, st.UserData.OnboardingCompleted)
}

func TestAddPointsAndBadges(t *testing.T) {
	m, _ := newMachine(t, models.StepWelcome)

	assert.True(t, m.AddPoints(25))
	assert.True(t, m.AddPoints(0))
	assert.False(t, m.AddPoints(-10))
	assert.Equal(t, 25, m.State().UserData.Points)

	assert.True(t, m.AddBadge(models.BadgeFirstPost))
	assert.False(t, m.AddBadge(models.BadgeFirstPost))
	assert.False(t, m.AddBadge("legend"))
	assert.Len(t, m.State().UserData.Badges, 1)
	assert.False(t, m.State().ShowCelebration)
}

func TestUpdateUserData_ShallowMerge(t *testing.T) {
	m, _ := newMachine(t, models.StepProfile)

	gym := "commercial"
	goals := []string{"cut", "compete"}
	m.UpdateUserData(models.OnboardingDataPatch{GymType: &gym, Goals: &goals})

	bio := "Coming for the pro card"
	m.UpdateUserData(models.OnboardingDataPatch{Bio: &bio})

	d := m.State().UserData
	assert.Equal(t, "commercial", d.GymType)
	assert.Equal(t, []string{"cut", "compete"}, d.Goals)
	assert.Equal(t, bio, d.Bio)

	goals[0] = "bulk"
	assert.Equal(t, "cut", m.State().UserData.Goals[0])
}

func TestRecordActivity_Streak(t *testing.T) {
	m, _ := newMachine(t, models.StepStreak)

	assert.Equal(t, 1, m.RecordActivity(start))
	assert.Equal(t, 1, m.RecordActivity(start.Add(3*time.Hour)))
	assert.Equal(t, 2, m.RecordActivity(start.Add(24*time.Hour)))
	assert.Equal(t, 3, m.RecordActivity(start.Add(48*time.Hour)))
	assert.Equal(t, 1, m.RecordActivity(start.Add(5*24*time.Hour)))

	last := m.State().UserData.LastActive
	require.NotNil(t, last)
	assert.Equal(t, start.Add(5*24*time.Hour), *last)
}

func TestCelebration_ClearsAfterDuration(t *testing.T) {
	m, _ := newMachine(t, models.StepWelcome)

	m.TriggerCelebration()
	assert.True(t, m.State().ShowCelebration)
	require.Eventually(t, func() bool {
		return !m.State().ShowCelebration
	}, time.Second, 5*time.Millisecond)
}

func TestCelebration_CloseCancelsTimer(t *testing.T) {
	m, _ := newMachine(t, models.StepWelcome)

	m.TriggerCelebration()
	m.Close()
	time.Sleep(150 * time.Millisecond)

	// The stale timer must not touch the state after Close.
	assert.True(t, m.State().ShowCelebration)

	m.TriggerCelebration()
	assert.True(t, m.State().ShowCelebration)
}

func TestNewMachine_RecoversUnknownStep(t *testing.T) {
	st := NewState("u1")
	st.CurrentStep = "removed-step"
	m := NewMachine(st, clock.NewManual(start), 0)
	defer m.Close()
	assert.Equal(t, models.StepCategory, m.CurrentStep())

	assert.Panics(t, func() { NewMachine(nil, clock.NewManual(start), 0) })
}
