package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AnshRaj112/physiq-backend/internal/clock"
	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/repository"
	"github.com/AnshRaj112/physiq-backend/internal/repository/memory"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*memory.Store, *clock.Manual) {
	t.Helper()
	return memory.New(), clock.NewManual(epoch)
}

// addUser inserts a member directly, skipping password hashing.
func addUser(t *testing.T, store repository.Store, clk *clock.Manual, id string, mutate ...func(*models.User)) *models.User {
	t.Helper()
	u := &models.User{
		ID:               id,
		Username:         id,
		PhysiqueCategory: models.CategoryFitness,
		CreatedAt:        clk.Advance(time.Second),
	}
	for _, m := range mutate {
		m(u)
	}
	require.NoError(t, store.Users().InsertUser(context.Background(), u))
	return u
}

func getUser(t *testing.T, store repository.Store, id string) *models.User {
	t.Helper()
	u, err := store.Users().GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

var errBoom = errors.New("boom")

// failingRewardStore fails every reward update made inside a transaction.
type failingRewardStore struct {
	repository.Store
}

func (s failingRewardStore) Atomically(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.Atomically(ctx, func(tx repository.Store) error {
		return fn(failingRewardStore{Store: tx})
	})
}

func (s failingRewardStore) Rewards() repository.RewardRepository {
	return failingRewards{RewardRepository: s.Store.Rewards()}
}

type failingRewards struct {
	repository.RewardRepository
}

func (failingRewards) UpdateReward(context.Context, *models.Reward) error {
	return errBoom
}

// fakeCache is an in-process Cache.
type fakeCache struct {
	values  map[string]interface{}
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]interface{})}
}

func (c *fakeCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	v, ok := c.values[key]
	if !ok {
		return false, nil
	}
	*(dest.(*[]models.LeaderboardEntry)) = v.([]models.LeaderboardEntry)
	return true, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.values[key] = value
	return nil
}

func (c *fakeCache) DeletePrefix(context.Context, string) error {
	c.deletes++
	c.values = make(map[string]interface{})
	return nil
}
