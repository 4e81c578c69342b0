package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/physiq-backend/internal/clock"
	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/repository"
	"github.com/AnshRaj112/physiq-backend/internal/repository/memory"
	"github.com/AnshRaj112/physiq-backend/pkg/utils"
)

func TestMongoDatabaseName(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"mongodb://localhost:27017/gymdb", "gymdb"},
		{"mongodb+srv://u:p@cluster.example.net/prod?retryWrites=true", "prod"},
		{"mongodb://localhost:27017/", "physiq"},
		{"mongodb://localhost:27017", "physiq"},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, mongoDatabaseName(tt.uri))
		})
	}
}

func TestDefaultSeed(t *testing.T) {
	seed := DefaultSeed()
	assert.Len(t, seed.Users, 5)
	assert.Len(t, seed.Rewards, 5)
}

func TestParseSeed_Rejects(t *testing.T) {
	_, err := ParseSeed([]byte("users: [\n"))
	assert.Error(t, err)

	_, err = ParseSeed([]byte(`
users:
  - username: zed
    password: password123
    physique_category: strongman
`))
	assert.ErrorContains(t, err, "strongman")

	_, err = ParseSeed([]byte(`
rewards:
  - id: spa
    name: Spa day
    points_required: 10
    stock: 1
    category: spa
`))
	assert.ErrorContains(t, err, "spa")

	_, err = ParseSeed([]byte(`
rewards:
  - id: shaker
    name: Shaker
    points_required: -1
    stock: 1
    category: product
`))
	assert.Error(t, err)
}

func TestSeed_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	seed, err := ParseSeed([]byte(`
users:
  - username: Marcus_Lift
    password: password123
    physique_category: Bodybuilding
    vote_count: 42
    reward_points: 150
rewards:
  - id: shaker
    name: Shaker
    points_required: 100
    stock: 3
    category: product
`))
	require.NoError(t, err)

	res, err := Seed(ctx, store, clk, seed)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Users: 1, Rewards: 1}, res)

	res, err = Seed(ctx, store, clk, seed)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{}, res)

	u, err := store.Users().GetUserByUsername(ctx, "marcus_lift")
	require.NoError(t, err)
	assert.Equal(t, models.CategoryBodybuilding, u.PhysiqueCategory)
	assert.Equal(t, 42, u.VoteCount)
	assert.Equal(t, 150, u.RewardPoints)
	ok, err := utils.VerifyPassword("password123", u.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	rewards, err := store.Rewards().ListRewards(ctx)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	assert.Equal(t, 3, rewards[0].Stock)

	_, err = store.Rewards().GetReward(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
