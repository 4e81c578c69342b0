package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/AnshRaj112/physiq-backend/internal/clock"
	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/repository"
	"github.com/AnshRaj112/physiq-backend/pkg/utils"
)

//go:embed seed.yaml
var defaultSeed []byte

// SeedUser is one demo member in the seed file.
type SeedUser struct {
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	PhysiqueCategory string `yaml:"physique_category"`
	Gender           string `yaml:"gender"`
	Bio              string `yaml:"bio"`
	VoteCount        int    `yaml:"vote_count"`
	RewardPoints     int    `yaml:"reward_points"`
}

// SeedData is the parsed seed file.
type SeedData struct {
	Users   []SeedUser      `yaml:"users"`
	Rewards []models.Reward `yaml:"rewards"`
}

// SeedResult reports how many records were created.
type SeedResult struct {
	Users   int
	Rewards int
}

// ParseSeed decodes a seed document and validates its categories.
func ParseSeed(data []byte) (*SeedData, error) {
	var seed SeedData
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	for _, u := range seed.Users {
		if _, ok := models.ParsePhysiqueCategory(u.PhysiqueCategory); !ok {
			return nil, fmt.Errorf("seed user %q: unknown physique category %q", u.Username, u.PhysiqueCategory)
		}
	}
	for _, r := range seed.Rewards {
		if _, ok := models.ParseRewardCategory(string(r.Category)); !ok {
			return nil, fmt.Errorf("seed reward %q: unknown category %q", r.ID, r.Category)
		}
		if r.PointsRequired < 0 || r.Stock < 0 {
			return nil, fmt.Errorf("seed reward %q: points and stock must be non-negative", r.ID)
		}
	}
	return &seed, nil
}

// DefaultSeed returns the embedded demo data.
func DefaultSeed() *SeedData {
	seed, err := ParseSeed(defaultSeed)
	if err != nil {
		panic(err)
	}
	return seed
}

// Seed inserts the seed data into store. Records that already exist are
// skipped, so running it twice is harmless.
func Seed(ctx context.Context, store repository.Store, clk clock.Clock, seed *SeedData) (SeedResult, error) {
	var res SeedResult

	for _, su := range seed.Users {
		hash, err := utils.HashPassword(su.Password)
		if err != nil {
			return res, fmt.Errorf("hash password for %s: %w", su.Username, err)
		}
		category, _ := models.ParsePhysiqueCategory(su.PhysiqueCategory)
		user := &models.User{
			ID:               uuid.New().String(),
			Username:         utils.NormalizeUsername(su.Username),
			PhysiqueCategory: category,
			Gender:           su.Gender,
			Bio:              su.Bio,
			VoteCount:        su.VoteCount,
			RewardPoints:     su.RewardPoints,
			CreatedAt:        clk.Now(),
			PasswordHash:     hash,
		}
		err = store.Users().InsertUser(ctx, user)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("seed user %s: %w", su.Username, err)
		}
		res.Users++
	}

	for i := range seed.Rewards {
		reward := seed.Rewards[i]
		err := store.Rewards().InsertReward(ctx, &reward)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("seed reward %s: %w", reward.ID, err)
		}
		res.Rewards++
	}

	log.Printf("✅ Seeded %d users and %d rewards", res.Users, res.Rewards)
	return res, nil
}
