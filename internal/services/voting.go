package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/AnshRaj112/physiq-backend/internal/clock"
	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/repository"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// VoteResult reports the outcome of a vote. Error is nil on success.
type VoteResult struct {
	Success bool   `json:"success"`
	Error   *Error `json:"error,omitempty"`
}

// Err returns the failure as an error value, or nil on success.
func (r VoteResult) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// VoteService records votes and ranks members by them.
type VoteService struct {
	store repository.Store
	clock clock.Clock
	cache Cache
}

func NewVoteService(store repository.Store, clk clock.Clock) *VoteService {
	return &VoteService{store: store, clock: clk}
}

// WithCache makes Leaderboard serve from cache. Votes and resets drop the
// cached boards.
func (s *VoteService) WithCache(c Cache) *VoteService {
	s.cache = c
	return s
}

const leaderboardCacheResource = "leaderboard"

func (s *VoteService) invalidateLeaderboard(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, leaderboardCacheResource+":"); err != nil {
		log.Printf("⚠️  Failed to invalidate leaderboard cache: %v", err)
	}
}

// Vote records voterID's vote for targetID and bumps the target's counters.
// The duplicate check and the writes happen in one transaction.
func (s *VoteService) Vote(ctx context.Context, voterID, targetID string) VoteResult {
	if voterID == targetID {
		return VoteResult{Error: newError(KindSelfVote, "you cannot vote for yourself")}
	}

	err := s.store.Atomically(ctx, func(tx repository.Store) error {
		if _, err := tx.Users().GetUser(ctx, voterID); err != nil {
			return lookupError(err, "voter")
		}
		target, err := tx.Users().GetUser(ctx, targetID)
		if err != nil {
			return lookupError(err, "user")
		}

		voted, err := tx.Votes().HasVote(ctx, voterID, targetID)
		if err != nil {
			return wrapError(KindVoteFailed, err)
		}
		if voted {
			return newError(KindAlreadyVoted, "you already voted for this user")
		}

		vote := models.Vote{VoterID: voterID, VotedForID: targetID, CreatedAt: s.clock.Now()}
		if err := tx.Votes().InsertVote(ctx, vote); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return newError(KindAlreadyVoted, "you already voted for this user")
			}
			return wrapError(KindVoteFailed, err)
		}

		target.VoteCount++
		target.MonthlyVotes++
		if err := tx.Users().UpdateUser(ctx, target); err != nil {
			return wrapError(KindVoteFailed, err)
		}
		return nil
	})
	if err != nil {
		if e := asError(err); e != nil {
			return VoteResult{Error: e}
		}
		return VoteResult{Error: wrapError(KindVoteFailed, err)}
	}
	s.invalidateLeaderboard(ctx)
	return VoteResult{Success: true}
}

// HasVoted reports whether voterID already voted for targetID.
func (s *VoteService) HasVoted(ctx context.Context, voterID, targetID string) (bool, error) {
	voted, err := s.store.Votes().HasVote(ctx, voterID, targetID)
	if err != nil {
		return false, fmt.Errorf("check vote: %w", err)
	}
	return voted, nil
}

// ResetMonthlyVotes zeroes every member's monthly counter. Deciding when a
// month rolls over is left to whoever schedules the call.
func (s *VoteService) ResetMonthlyVotes(ctx context.Context) (int, error) {
	n, err := s.store.Users().ResetMonthlyVotes(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset monthly votes: %w", err)
	}
	s.invalidateLeaderboard(ctx)
	return n, nil
}

// Leaderboard ranks members by votes for the given period. Ties go to the
// member who joined first.
func (s *VoteService) Leaderboard(ctx context.Context, period models.LeaderboardPeriod, limit int) ([]models.LeaderboardEntry, error) {
	if period == "" {
		period = models.PeriodAllTime
	}
	if period != models.PeriodAllTime && period != models.PeriodMonthly {
		return nil, newError(KindInvalidInput, "unknown leaderboard period")
	}
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}

	key := CacheKey(leaderboardCacheResource, fmt.Sprintf("%s:%d", period, limit))
	if s.cache != nil {
		var cached []models.LeaderboardEntry
		if ok, err := s.cache.Get(ctx, key, &cached); err == nil && ok {
			return cached, nil
		}
	}

	users, err := s.store.Users().ListUsers(ctx, repository.UserFilter{})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	score := func(u models.User) int {
		if period == models.PeriodMonthly {
			return u.MonthlyVotes
		}
		return u.VoteCount
	}
	sort.SliceStable(users, func(i, j int) bool {
		si, sj := score(users[i]), score(users[j])
		if si != sj {
			return si > sj
		}
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})

	if len(users) > limit {
		users = users[:limit]
	}
	entries := make([]models.LeaderboardEntry, len(users))
	for i, u := range users {
		entries[i] = models.LeaderboardEntry{
			Rank:             i + 1,
			UserID:           u.ID,
			Username:         u.Username,
			ProfileImage:     u.ProfileImage,
			PhysiqueCategory: u.PhysiqueCategory,
			Score:            score(u),
		}
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, entries, LeaderboardCacheTTL); err != nil {
			log.Printf("⚠️  Failed to cache leaderboard: %v", err)
		}
	}
	return entries, nil
}

// lookupError maps a failed user lookup inside a vote to a domain error.
func lookupError(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return newError(KindNotFound, what+" not found")
	}
	return wrapError(KindVoteFailed, err)
}
