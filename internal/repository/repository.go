// Package repository defines the storage capabilities the domain services
// depend on. Implementations live in the memory, sqlstore and mongostore
// subpackages; every implementation must be safe for concurrent use.
package repository

import (
	"context"
	"errors"

	"github.com/AnshRaj112/physiq-backend/internal/models"
)

var (
	// ErrNotFound is returned when a lookup by id matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert would violate a uniqueness rule.
	ErrConflict = errors.New("conflict")
)

// UserFilter narrows ListUsers. Zero value matches every user.
type UserFilter struct {
	Category models.PhysiqueCategory
}

// UserRepository stores member profiles.
type UserRepository interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	InsertUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
	// ListUsers returns users ordered by created_at, then id.
	ListUsers(ctx context.Context, filter UserFilter) ([]models.User, error)
	// ResetMonthlyVotes zeroes monthly_votes for every user and returns how many changed.
	ResetMonthlyVotes(ctx context.Context) (int, error)
}

// VoteRepository stores votes. HasVote must cost at most O(votes cast by voter).
type VoteRepository interface {
	HasVote(ctx context.Context, voterID, targetID string) (bool, error)
	InsertVote(ctx context.Context, vote models.Vote) error
	VotesBy(ctx context.Context, voterID string) ([]models.Vote, error)
}

// MessageRepository stores direct messages. InsertMessage assigns msg.ID.
// Listing methods return messages in insertion (id) order.
type MessageRepository interface {
	InsertMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id int64) (*models.Message, error)
	MarkMessageRead(ctx context.Context, id int64) error
	MessagesBetween(ctx context.Context, a, b string) ([]models.Message, error)
	MessagesFor(ctx context.Context, userID string) ([]models.Message, error)
}

// BlockRepository stores (blocker, blocked) pairs with set semantics.
type BlockRepository interface {
	// InsertBlock is a no-op when the pair already exists.
	InsertBlock(ctx context.Context, block models.BlockedUser) error
	// DeleteBlock is a no-op when the pair does not exist.
	DeleteBlock(ctx context.Context, blockerID, blockedID string) error
	IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error)
	ListBlocked(ctx context.Context, blockerID string) ([]models.BlockedUser, error)
}

// RewardRepository stores the reward catalog. ListRewards keeps insertion order.
type RewardRepository interface {
	GetReward(ctx context.Context, id string) (*models.Reward, error)
	InsertReward(ctx context.Context, reward *models.Reward) error
	UpdateReward(ctx context.Context, reward *models.Reward) error
	ListRewards(ctx context.Context) ([]models.Reward, error)
}

// OnboardingRepository stores one onboarding snapshot per user.
type OnboardingRepository interface {
	GetOnboarding(ctx context.Context, userID string) (*models.OnboardingState, error)
	// SaveOnboarding inserts or replaces the snapshot for state.UserID.
	SaveOnboarding(ctx context.Context, state *models.OnboardingState) error
}

// Store aggregates every repository.
type Store interface {
	Users() UserRepository
	Votes() VoteRepository
	Messages() MessageRepository
	Blocks() BlockRepository
	Rewards() RewardRepository
	Onboarding() OnboardingRepository

	// Atomically runs fn against a transactional view of the store. Writes made
	// through tx are applied together when fn returns nil and discarded otherwise.
	// Calling Atomically on tx runs fn inline in the same transaction.
	Atomically(ctx context.Context, fn func(tx Store) error) error
}

// WithMessages returns a Store that serves messages from msgs and everything
// else from base. Messages are never part of a transaction, so tx views keep
// using msgs.
func WithMessages(base Store, msgs MessageRepository) Store {
	return &messageOverride{Store: base, msgs: msgs}
}

type messageOverride struct {
	Store
	msgs MessageRepository
}

func (s *messageOverride) Messages() MessageRepository {
	return s.msgs
}

func (s *messageOverride) Atomically(ctx context.Context, fn func(tx Store) error) error {
	return s.Store.Atomically(ctx, func(tx Store) error {
		return fn(&messageOverride{Store: tx, msgs: s.msgs})
	})
}
