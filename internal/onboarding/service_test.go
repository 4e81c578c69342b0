package onboarding

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AnshRaj112/physiq-backend/internal/clock"
	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/repository"
	"github.com/AnshRaj112/physiq-backend/internal/repository/memory"
	"github.com/AnshRaj112/physiq-backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := NewService(store.Onboarding(), clock.NewManual(start), 20*time.Millisecond)
	t.Cleanup(svc.Close)
	return svc, store
}

func TestService_FreshStateIsPersisted(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	st, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StepWelcome, st.CurrentStep)
	require.Len(t, st.UserData.Badges, 1)
	assert.Equal(t, models.BadgeEarlyAdopter, st.UserData.Badges[0].ID)

	saved, err := store.Onboarding().GetOnboarding(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StepWelcome, saved.CurrentStep)
	assert.False(t, saved.ShowCelebration)
}

func TestService_MutationsSurviveEviction(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.NextStep(ctx, "u1")
	require.NoError(t, err)
	_, err = svc.AddPoints(ctx, "u1", 40)
	require.NoError(t, err)
	category := "bikini"
	_, err = svc.UpdateUserData(ctx, "u1", models.OnboardingDataPatch{Category: &category})
	require.NoError(t, err)

	svc.Evict("u1")

	st, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StepCategory, st.CurrentStep)
	assert.Equal(t, 40, st.UserData.Points)
	assert.Equal(t, "bikini", st.UserData.Category)
	assert.Len(t, st.UserData.Badges, 1)
}

func TestService_InvalidStepIsSavedAtRecovery(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	_, err := svc.GoToStep(ctx, "u1", models.StepStreak)
	require.NoError(t, err)

	st, err := svc.GoToStep(ctx, "u1", "nope")
	assert.True(t, services.IsKind(err, services.KindInvalidStep))
	assert.Equal(t, models.StepCategory, st.CurrentStep)

	saved, err := store.Onboarding().GetOnboarding(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StepCategory, saved.CurrentStep)
}

func TestService_BadgesAndCelebration(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	st, err := svc.AddBadge(ctx, "u1", models.BadgeFirstPost)
	require.NoError(t, err)
	assert.Len(t, st.UserData.Badges, 2)
	st, err = svc.AddBadge(ctx, "u1", models.BadgeFirstPost)
	require.NoError(t, err)
	assert.Len(t, st.UserData.Badges, 2)

	st, err = svc.TriggerCelebration(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, st.ShowCelebration)
	require.Eventually(t, func() bool {
		s, err := svc.State(ctx, "u1")
		return err == nil && !s.ShowCelebration
	}, time.Second, 5*time.Millisecond)
}

func TestService_RecordActivity(t *testing.T) {
	svc, _ := newService(t)
	st, err := svc.RecordActivity(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.UserData.Streak)
	require.NotNil(t, st.UserData.LastActive)
	assert.Equal(t, start, *st.UserData.LastActive)
}

func TestService_RequiresUser(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.NextStep(context.Background(), "")
	assert.True(t, services.IsKind(err, services.KindNotAuthenticated))
}

func TestService_PrunesIdleMachines(t *testing.T) {
	store := memory.New()
	clk := clock.NewManual(start)
	svc := NewService(store.Onboarding(), clk, 20*time.Millisecond)
	t.Cleanup(svc.Close)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		_, err := svc.State(ctx, fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
	}
	_, err := svc.AddPoints(ctx, "user-7", 15)
	require.NoError(t, err)
	assert.Equal(t, 1000, svc.Active())

	clk.Advance(machineIdleTTL + machinePruneInterval)
	st, err := svc.State(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, models.StepWelcome, st.CurrentStep)
	assert.Equal(t, 1, svc.Active())

	// A pruned member reloads from the repository.
	st, err = svc.State(ctx, "user-7")
	require.NoError(t, err)
	assert.Equal(t, 15, st.UserData.Points)
	assert.Equal(t, 2, svc.Active())
}

func TestService_RecentlyUsedMachinesSurvivePruning(t *testing.T) {
	store := memory.New()
	clk := clock.NewManual(start)
	svc := NewService(store.Onboarding(), clk, 20*time.Millisecond)
	t.Cleanup(svc.Close)
	ctx := context.Background()

	_, err := svc.State(ctx, "idle")
	require.NoError(t, err)
	clk.Advance(machineIdleTTL)
	_, err = svc.State(ctx, "busy")
	require.NoError(t, err)

	clk.Advance(machinePruneInterval + time.Second)
	_, err = svc.State(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, 1, svc.Active())
}

func TestService_ConcurrentFirstLoadBeginsOnce(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddPoints(ctx, "u1", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, svc.Active())
	saved, err := store.Onboarding().GetOnboarding(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 20, saved.UserData.Points)
	assert.Len(t, saved.UserData.Badges, 1)
}

func TestService_EvictDuringOperationsKeepsEveryMutation(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.AddPoints(ctx, "u1", 2)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			svc.Evict("u1")
		}()
	}
	wg.Wait()

	saved, err := store.Onboarding().GetOnboarding(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 100, saved.UserData.Points)
	st, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 100, st.UserData.Points)
}

// stallingRepo holds its first GetOnboarding call after the read until
// release is closed.
type stallingRepo struct {
	repository.OnboardingRepository
	stalled atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func (r *stallingRepo) GetOnboarding(ctx context.Context, userID string) (*models.OnboardingState, error) {
	st, err := r.OnboardingRepository.GetOnboarding(ctx, userID)
	if r.stalled.CompareAndSwap(false, true) {
		close(r.read)
		<-r.release
	}
	return st, err
}

func TestService_StaleLoadIsDiscardedAfterEviction(t *testing.T) {
	store := memory.New()
	repo := &stallingRepo{
		OnboardingRepository: store.Onboarding(),
		read:                 make(chan struct{}),
		release:              make(chan struct{}),
	}
	svc := NewService(repo, clock.NewManual(start), 20*time.Millisecond)
	t.Cleanup(svc.Close)
	ctx := context.Background()

	done := make(chan models.OnboardingState)
	go func() {
		st, err := svc.State(ctx, "u1")
		assert.NoError(t, err)
		done <- st
	}()
	<-repo.read

	// While the first load sits on its empty read, another caller creates,
	// changes and evicts the machine.
	_, err := svc.AddPoints(ctx, "u1", 25)
	require.NoError(t, err)
	svc.Evict("u1")
	close(repo.release)

	st := <-done
	assert.Equal(t, 25, st.UserData.Points)
	saved, err := store.Onboarding().GetOnboarding(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 25, saved.UserData.Points)
	assert.Len(t, saved.UserData.Badges, 1)
}
