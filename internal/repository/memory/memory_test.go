package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/repository"
	"github.com/AnshRaj112/physiq-backend/internal/repository/repotest"
)

func TestStoreConformance(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.Store { return New() })
}

func TestMessageIDsAreDense(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		m := &models.Message{SenderID: "a", ReceiverID: "b", Content: "x"}
		require.NoError(t, s.Messages().InsertMessage(ctx, m))
		assert.Equal(t, int64(i), m.ID)
	}

	// A rolled back insert gives its id back.
	err := s.Atomically(ctx, func(tx repository.Store) error {
		m := &models.Message{SenderID: "a", ReceiverID: "b", Content: "dropped"}
		require.NoError(t, tx.Messages().InsertMessage(ctx, m))
		assert.Equal(t, int64(4), m.ID)
		return fmt.Errorf("abort")
	})
	require.Error(t, err)

	m := &models.Message{SenderID: "a", ReceiverID: "b", Content: "kept"}
	require.NoError(t, s.Messages().InsertMessage(ctx, m))
	assert.Equal(t, int64(4), m.ID)
}

func TestAtomicallyHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := New().Atomically(ctx, func(tx repository.Store) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Users().InsertUser(ctx, &models.User{ID: "u1", Username: "alpha", CreatedAt: time.Now()}))

	u, err := s.Users().GetUser(ctx, "u1")
	require.NoError(t, err)
	u.VoteCount = 100

	again, err := s.Users().GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, again.VoteCount)
}

func TestConcurrentAtomicIncrements(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Users().InsertUser(ctx, &models.User{ID: "u1", Username: "alpha", CreatedAt: time.Now()}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Atomically(ctx, func(tx repository.Store) error {
				u, err := tx.Users().GetUser(ctx, "u1")
				if err != nil {
					return err
				}
				u.VoteCount++
				return tx.Users().UpdateUser(ctx, u)
			})
		}()
	}
	wg.Wait()

	u, err := s.Users().GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 50, u.VoteCount)
}
