// Package repotest is a conformance suite every repository.Store
// implementation runs in its own tests.
package repotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/repository"
)

// NewStore returns an empty store for one subtest.
type NewStore func(t *testing.T) repository.Store

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Run executes the full suite against stores built by newStore.
func Run(t *testing.T, newStore NewStore) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Votes", func(t *testing.T) { testVotes(t, newStore(t)) })
	t.Run("Messages", func(t *testing.T) { testMessages(t, newStore(t)) })
	t.Run("Blocks", func(t *testing.T) { testBlocks(t, newStore(t)) })
	t.Run("Rewards", func(t *testing.T) { testRewards(t, newStore(t)) })
	t.Run("Onboarding", func(t *testing.T) { testOnboarding(t, newStore(t)) })
	t.Run("AtomicallyCommits", func(t *testing.T) { testAtomicallyCommits(t, newStore(t)) })
	t.Run("AtomicallyRollsBack", func(t *testing.T) { testAtomicallyRollsBack(t, newStore(t)) })
	t.Run("AtomicallyRollsBackOnPanic", func(t *testing.T) { testAtomicallyPanics(t, newStore(t)) })
}

func user(id, username string, category models.PhysiqueCategory, offset int) *models.User {
	return &models.User{
		ID:               id,
		Username:         username,
		PhysiqueCategory: category,
		PasswordHash:     "hash-" + id,
		CreatedAt:        epoch.Add(time.Duration(offset) * time.Second),
	}
}

func mustUser(t *testing.T, s repository.Store, id string, offset int) *models.User {
	t.Helper()
	u := user(id, id, models.CategoryPhysique, offset)
	require.NoError(t, s.Users().InsertUser(context.Background(), u))
	return u
}

func testUsers(t *testing.T, s repository.Store) {
	ctx := context.Background()
	repo := s.Users()

	require.NoError(t, repo.InsertUser(ctx, user("u2", "bravo", models.CategoryBikini, 2)))
	require.NoError(t, repo.InsertUser(ctx, user("u1", "alpha", models.CategoryPhysique, 1)))
	require.NoError(t, repo.InsertUser(ctx, user("u3", "charlie", models.CategoryPhysique, 3)))

	assert.ErrorIs(t, repo.InsertUser(ctx, user("u1", "other", models.CategoryPhysique, 4)), repository.ErrConflict)
	assert.ErrorIs(t, repo.InsertUser(ctx, user("u9", "alpha", models.CategoryPhysique, 4)), repository.ErrConflict)

	got, err := repo.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Username)
	assert.Equal(t, "hash-u1", got.PasswordHash)
	assert.WithinDuration(t, epoch.Add(time.Second), got.CreatedAt, time.Millisecond)

	_, err = repo.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err = repo.GetUserByUsername(ctx, "bravo")
	require.NoError(t, err)
	assert.Equal(t, "u2", got.ID)
	_, err = repo.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	all, err := repo.ListUsers(ctx, repository.UserFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"u1", "u2", "u3"}, []string{all[0].ID, all[1].ID, all[2].ID})

	physique, err := repo.ListUsers(ctx, repository.UserFilter{Category: models.CategoryPhysique})
	require.NoError(t, err)
	require.Len(t, physique, 2)
	assert.Equal(t, "u1", physique[0].ID)
	assert.Equal(t, "u3", physique[1].ID)

	got, err = repo.GetUser(ctx, "u1")
	require.NoError(t, err)
	got.Bio = "Leg day every day"
	got.VoteCount = 4
	got.MonthlyVotes = 2
	require.NoError(t, repo.UpdateUser(ctx, got))
	got, err = repo.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Leg day every day", got.Bio)
	assert.Equal(t, 4, got.VoteCount)

	got.Username = "bravo"
	assert.ErrorIs(t, repo.UpdateUser(ctx, got), repository.ErrConflict)
	assert.ErrorIs(t, repo.UpdateUser(ctx, user("missing", "missing", models.CategoryPhysique, 0)), repository.ErrNotFound)

	n, err := repo.ResetMonthlyVotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err = repo.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.MonthlyVotes)
	assert.Equal(t, 4, got.VoteCount)

	n, err = repo.ResetMonthlyVotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func testVotes(t *testing.T, s repository.Store) {
	ctx := context.Background()
	mustUser(t, s, "a", 1)
	mustUser(t, s, "b", 2)
	mustUser(t, s, "c", 3)
	repo := s.Votes()

	has, err := repo.HasVote(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, repo.InsertVote(ctx, models.Vote{VoterID: "a", VotedForID: "c", CreatedAt: epoch.Add(2 * time.Second)}))
	require.NoError(t, repo.InsertVote(ctx, models.Vote{VoterID: "a", VotedForID: "b", CreatedAt: epoch.Add(time.Second)}))
	assert.ErrorIs(t, repo.InsertVote(ctx, models.Vote{VoterID: "a", VotedForID: "b", CreatedAt: epoch}), repository.ErrConflict)

	has, err = repo.HasVote(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, has)
	// Votes are directed.
	has, err = repo.HasVote(ctx, "b", "a")
	require.NoError(t, err)
	assert.False(t, has)

	votes, err := repo.VotesBy(ctx, "a")
	require.NoError(t, err)
	require.Len(t, votes, 2)
	assert.Equal(t, "b", votes[0].VotedForID)
	assert.Equal(t, "c", votes[1].VotedForID)

	votes, err = repo.VotesBy(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, votes)
}

func testMessages(t *testing.T, s repository.Store) {
	ctx := context.Background()
	repo := s.Messages()

	send := func(from, to, content string) *models.Message {
		m := &models.Message{SenderID: from, ReceiverID: to, Content: content, CreatedAt: epoch}
		require.NoError(t, repo.InsertMessage(ctx, m))
		return m
	}
	m1 := send("a", "b", "hi")
	m2 := send("b", "a", "hey")
	m3 := send("a", "c", "yo")
	assert.Greater(t, m2.ID, m1.ID)
	assert.Greater(t, m3.ID, m2.ID)

	got, err := repo.GetMessage(ctx, m2.ID)
	require.NoError(t, err)
	assert.Equal(t, "hey", got.Content)
	assert.False(t, got.Read)
	_, err = repo.GetMessage(ctx, m3.ID+100)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	between, err := repo.MessagesBetween(ctx, "b", "a")
	require.NoError(t, err)
	require.Len(t, between, 2)
	assert.Equal(t, m1.ID, between[0].ID)
	assert.Equal(t, m2.ID, between[1].ID)

	forA, err := repo.MessagesFor(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, forA, 3)
	forC, err := repo.MessagesFor(ctx, "c")
	require.NoError(t, err)
	require.Len(t, forC, 1)
	assert.Equal(t, m3.ID, forC[0].ID)

	require.NoError(t, repo.MarkMessageRead(ctx, m1.ID))
	require.NoError(t, repo.MarkMessageRead(ctx, m1.ID))
	got, err = repo.GetMessage(ctx, m1.ID)
	require.NoError(t, err)
	assert.True(t, got.Read)
	assert.ErrorIs(t, repo.MarkMessageRead(ctx, m3.ID+100), repository.ErrNotFound)
}

func testBlocks(t *testing.T, s repository.Store) {
	ctx := context.Background()
	repo := s.Blocks()

	require.NoError(t, repo.InsertBlock(ctx, models.BlockedUser{BlockerID: "a", BlockedID: "b", CreatedAt: epoch}))
	require.NoError(t, repo.InsertBlock(ctx, models.BlockedUser{BlockerID: "a", BlockedID: "c", CreatedAt: epoch.Add(time.Second)}))
	require.NoError(t, repo.InsertBlock(ctx, models.BlockedUser{BlockerID: "a", BlockedID: "b", CreatedAt: epoch.Add(2 * time.Second)}))

	blocked, err := repo.IsBlocked(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, blocked)
	blocked, err = repo.IsBlocked(ctx, "b", "a")
	require.NoError(t, err)
	assert.False(t, blocked)

	list, err := repo.ListBlocked(ctx, "a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].BlockedID)
	assert.Equal(t, "c", list[1].BlockedID)

	require.NoError(t, repo.DeleteBlock(ctx, "a", "b"))
	require.NoError(t, repo.DeleteBlock(ctx, "a", "b"))
	blocked, err = repo.IsBlocked(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, blocked)

	list, err = repo.ListBlocked(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testRewards(t *testing.T, s repository.Store) {
	ctx := context.Background()
	repo := s.Rewards()

	shaker := &models.Reward{ID: "shaker", Name: "Shaker", PointsRequired: 100, Stock: 3, Category: models.RewardProduct}
	trip := &models.Reward{ID: "trip", Name: "Bali Camp", PointsRequired: 5000, Stock: 1, Category: models.RewardTrip}
	require.NoError(t, repo.InsertReward(ctx, shaker))
	require.NoError(t, repo.InsertReward(ctx, trip))
	assert.ErrorIs(t, repo.InsertReward(ctx, shaker), repository.ErrConflict)

	list, err := repo.ListRewards(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "shaker", list[0].ID)
	assert.Equal(t, "trip", list[1].ID)

	got, err := repo.GetReward(ctx, "shaker")
	require.NoError(t, err)
	got.Stock--
	require.NoError(t, repo.UpdateReward(ctx, got))
	got, err = repo.GetReward(ctx, "shaker")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stock)

	_, err = repo.GetReward(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateReward(ctx, &models.Reward{ID: "missing", Name: "x", Category: models.RewardTrip}), repository.ErrNotFound)
}

func testOnboarding(t *testing.T, s repository.Store) {
	ctx := context.Background()
	repo := s.Onboarding()

	_, err := repo.GetOnboarding(ctx, "u1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	active := epoch.Add(time.Hour)
	state := &models.OnboardingState{
		UserID:         "u1",
		CurrentStep:    models.StepProfile,
		CompletedSteps: []models.OnboardingStep{models.StepWelcome, models.StepCategory},
		UserData: models.OnboardingData{
			Points:     25,
			Badges:     []models.Badge{{ID: models.BadgeEarlyAdopter, Name: "Early Adopter", EarnedAt: epoch}},
			Streak:     2,
			LastActive: &active,
			Goals:      []string{"cut"},
			GymType:    "commercial",
		},
		ShowCelebration: true,
	}
	require.NoError(t, repo.SaveOnboarding(ctx, state))

	got, err := repo.GetOnboarding(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StepProfile, got.CurrentStep)
	assert.Equal(t, state.CompletedSteps, got.CompletedSteps)
	assert.Equal(t, 25, got.UserData.Points)
	require.Len(t, got.UserData.Badges, 1)
	assert.Equal(t, models.BadgeEarlyAdopter, got.UserData.Badges[0].ID)
	assert.True(t, got.UserData.Badges[0].EarnedAt.Equal(epoch))
	require.NotNil(t, got.UserData.LastActive)
	assert.True(t, got.UserData.LastActive.Equal(active))
	assert.Equal(t, []string{"cut"}, got.UserData.Goals)
	// The celebration flag is transient.
	assert.False(t, got.ShowCelebration)
	assert.Nil(t, got.CompletedAt)

	// Saved snapshots do not alias the caller's state.
	state.CompletedSteps[0] = models.StepRewards
	got, err = repo.GetOnboarding(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StepWelcome, got.CompletedSteps[0])

	got.CurrentStep = models.StepComplete
	done := epoch.Add(2 * time.Hour)
	got.CompletedAt = &done
	require.NoError(t, repo.SaveOnboarding(ctx, got))
	got, err = repo.GetOnboarding(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StepComplete, got.CurrentStep)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))
}

func testAtomicallyCommits(t *testing.T, s repository.Store) {
	ctx := context.Background()
	mustUser(t, s, "a", 1)

	err := s.Atomically(ctx, func(tx repository.Store) error {
		u, err := tx.Users().GetUser(ctx, "a")
		if err != nil {
			return err
		}
		u.RewardPoints = 40
		if err := tx.Users().UpdateUser(ctx, u); err != nil {
			return err
		}
		// Nested calls join the open transaction.
		return tx.Atomically(ctx, func(inner repository.Store) error {
			return inner.Rewards().InsertReward(ctx, &models.Reward{ID: "r1", Name: "Towel", PointsRequired: 10, Stock: 1, Category: models.RewardProduct})
		})
	})
	require.NoError(t, err)

	u, err := s.Users().GetUser(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 40, u.RewardPoints)
	_, err = s.Rewards().GetReward(ctx, "r1")
	assert.NoError(t, err)
}

var errAbort = errors.New("abort")

func mutate(t *testing.T, ctx context.Context, tx repository.Store) {
	u, err := tx.Users().GetUser(ctx, "a")
	require.NoError(t, err)
	u.RewardPoints = 999
	u.Username = "renamed"
	require.NoError(t, tx.Users().UpdateUser(ctx, u))
	require.NoError(t, tx.Users().InsertUser(ctx, user("b", "bravo", models.CategoryBikini, 2)))
	require.NoError(t, tx.Votes().InsertVote(ctx, models.Vote{VoterID: "b", VotedForID: "a", CreatedAt: epoch}))
	require.NoError(t, tx.Blocks().InsertBlock(ctx, models.BlockedUser{BlockerID: "a", BlockedID: "b", CreatedAt: epoch}))
	require.NoError(t, tx.Onboarding().SaveOnboarding(ctx, &models.OnboardingState{UserID: "a", CurrentStep: models.StepStreak}))

	r, err := tx.Rewards().GetReward(ctx, "r1")
	require.NoError(t, err)
	r.Stock = 0
	require.NoError(t, tx.Rewards().UpdateReward(ctx, r))
}

func assertUntouched(t *testing.T, ctx context.Context, s repository.Store) {
	t.Helper()
	u, err := s.Users().GetUser(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, u.RewardPoints)
	assert.Equal(t, "a", u.Username)

	_, err = s.Users().GetUser(ctx, "b")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.Users().GetUserByUsername(ctx, "renamed")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	has, err := s.Votes().HasVote(ctx, "b", "a")
	require.NoError(t, err)
	assert.False(t, has)
	blocked, err := s.Blocks().IsBlocked(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, blocked)
	_, err = s.Onboarding().GetOnboarding(ctx, "a")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	r, err := s.Rewards().GetReward(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 5, r.Stock)
}

func testAtomicallyRollsBack(t *testing.T, s repository.Store) {
	ctx := context.Background()
	mustUser(t, s, "a", 1)
	require.NoError(t, s.Rewards().InsertReward(ctx, &models.Reward{ID: "r1", Name: "Towel", PointsRequired: 10, Stock: 5, Category: models.RewardProduct}))

	err := s.Atomically(ctx, func(tx repository.Store) error {
		mutate(t, ctx, tx)
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)
	assertUntouched(t, ctx, s)
}

func testAtomicallyPanics(t *testing.T, s repository.Store) {
	ctx := context.Background()
	mustUser(t, s, "a", 1)
	require.NoError(t, s.Rewards().InsertReward(ctx, &models.Reward{ID: "r1", Name: "Towel", PointsRequired: 10, Stock: 5, Category: models.RewardProduct}))

	assert.PanicsWithValue(t, "boom", func() {
		_ = s.Atomically(ctx, func(tx repository.Store) error {
			mutate(t, ctx, tx)
			panic("boom")
		})
	})
	assertUntouched(t, ctx, s)
}
