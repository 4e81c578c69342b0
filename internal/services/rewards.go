package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/repository"
)

// ClaimResult reports the outcome of a reward claim.
type ClaimResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   *Error `json:"error,omitempty"`
	// Balance is the member's remaining points after a successful claim.
	Balance int `json:"balance,omitempty"`
}

func (r ClaimResult) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// RewardService lists the catalog and redeems rewards against member points.
type RewardService struct {
	store repository.Store
}

func NewRewardService(store repository.Store) *RewardService {
	return &RewardService{store: store}
}

// List returns the catalog filtered by category. "" and "all" match everything.
func (s *RewardService) List(ctx context.Context, category string) ([]models.Reward, error) {
	var want models.RewardCategory
	if c := strings.TrimSpace(category); c != "" && !strings.EqualFold(c, models.RewardCategoryAll) {
		parsed, ok := models.ParseRewardCategory(c)
		if !ok {
			return nil, newError(KindInvalidCategory, fmt.Sprintf("unknown reward category %q", category))
		}
		want = parsed
	}

	rewards, err := s.store.Rewards().ListRewards(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	if want == "" {
		return rewards, nil
	}
	out := rewards[:0]
	for _, r := range rewards {
		if r.Category == want {
			out = append(out, r)
		}
	}
	return out, nil
}

// Claim debits the reward's cost from the member and takes one unit of stock.
// Both writes land together or not at all.
func (s *RewardService) Claim(ctx context.Context, userID, rewardID string) ClaimResult {
	if userID == "" {
		return claimFailed(newError(KindNotAuthenticated, "please log in to claim rewards"))
	}

	var (
		rewardName string
		balance    int
	)
	err := s.store.Atomically(ctx, func(tx repository.Store) error {
		user, err := tx.Users().GetUser(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return newError(KindNotAuthenticated, "please log in to claim rewards")
		}
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}

		reward, err := tx.Rewards().GetReward(ctx, rewardID)
		if errors.Is(err, repository.ErrNotFound) {
			return newError(KindNotFound, "reward not found")
		}
		if err != nil {
			return fmt.Errorf("get reward: %w", err)
		}

		if reward.Stock <= 0 {
			return newError(KindOutOfStock, "this reward is out of stock")
		}
		if user.RewardPoints < reward.PointsRequired {
			return &Error{Kind: KindInsufficientPoints, Deficit: reward.PointsRequired - user.RewardPoints}
		}

		user.RewardPoints -= reward.PointsRequired
		reward.Stock--
		if err := tx.Users().UpdateUser(ctx, user); err != nil {
			return fmt.Errorf("debit points: %w", err)
		}
		if err := tx.Rewards().UpdateReward(ctx, reward); err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		rewardName = reward.Name
		balance = user.RewardPoints
		return nil
	})
	if err != nil {
		if e := asError(err); e != nil {
			return claimFailed(e)
		}
		return claimFailed(&Error{Kind: KindInternal, Message: "claim failed", Err: err})
	}

	return ClaimResult{
		Success: true,
		Message: fmt.Sprintf("Successfully claimed %s", rewardName),
		Balance: balance,
	}
}

func claimFailed(e *Error) ClaimResult {
	msg := e.Message
	if e.Kind == KindInsufficientPoints {
		msg = fmt.Sprintf("You need %d more points to claim this reward", e.Deficit)
	}
	return ClaimResult{Message: msg, Error: e}
}

// Balance returns the member's reward points.
func (s *RewardService) Balance(ctx context.Context, userID string) (int, error) {
	user, err := s.store.Users().GetUser(ctx, userID)
	if err != nil {
		return 0, notFoundOr(err, "user not found")
	}
	return user.RewardPoints, nil
}
