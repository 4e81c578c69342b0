package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AnshRaj112/physiq-backend/internal/clock"
	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/repository"
	"github.com/AnshRaj112/physiq-backend/pkg/utils"
	"github.com/google/uuid"
)

const MaxBioLength = 500

// SignupRequest carries the fields a new member provides.
type SignupRequest struct {
	Username         string `json:"username"`
	Password         string `json:"password"`
	PhysiqueCategory string `json:"physique_category"`
	Gender           string `json:"gender"`
}

// UserService manages member accounts and profiles.
type UserService struct {
	store repository.Store
	clock clock.Clock
}

func NewUserService(store repository.Store, clk clock.Clock) *UserService {
	return &UserService{store: store, clock: clk}
}

// Signup creates a member with a hashed password.
func (s *UserService) Signup(ctx context.Context, req SignupRequest) (*models.User, error) {
	if err := utils.ValidateUsername(req.Username); err != nil {
		return nil, newError(KindInvalidInput, err.Error())
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		return nil, newError(KindInvalidInput, err.Error())
	}
	category, ok := models.ParsePhysiqueCategory(req.PhysiqueCategory)
	if !ok {
		return nil, newError(KindInvalidCategory, fmt.Sprintf("unknown physique category %q", req.PhysiqueCategory))
	}

	username := utils.NormalizeUsername(req.Username)
	if _, err := s.store.Users().GetUserByUsername(ctx, username); err == nil {
		return nil, newError(KindUsernameTaken, "username is already taken")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check username: %w", err)
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:               uuid.NewString(),
		Username:         username,
		PhysiqueCategory: category,
		Gender:           strings.TrimSpace(req.Gender),
		CreatedAt:        s.clock.Now(),
		PasswordHash:     hash,
	}
	if err := s.store.Users().InsertUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, newError(KindUsernameTaken, "username is already taken")
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// Login checks credentials. Unknown usernames and wrong passwords fail the same way.
func (s *UserService) Login(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.store.Users().GetUserByUsername(ctx, utils.NormalizeUsername(username))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindInvalidCredentials, "invalid username or password")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	ok, err := utils.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, newError(KindInvalidCredentials, "invalid username or password")
	}
	return user, nil
}

// Get returns a member by id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.store.Users().GetUser(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "user not found")
	}
	return user, nil
}

// Browse lists members, optionally restricted to one physique category.
func (s *UserService) Browse(ctx context.Context, category string) ([]models.User, error) {
	var filter repository.UserFilter
	if strings.TrimSpace(category) != "" && !strings.EqualFold(category, "all") {
		c, ok := models.ParsePhysiqueCategory(category)
		if !ok {
			return nil, newError(KindInvalidCategory, fmt.Sprintf("unknown physique category %q", category))
		}
		filter.Category = c
	}
	users, err := s.store.Users().ListUsers(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateProfile applies the non-nil fields of patch.
func (s *UserService) UpdateProfile(ctx context.Context, id string, patch models.ProfilePatch) (*models.User, error) {
	var updated *models.User
	err := s.store.Atomically(ctx, func(tx repository.Store) error {
		user, err := tx.Users().GetUser(ctx, id)
		if err != nil {
			return notFoundOr(err, "user not found")
		}
		if patch.PhysiqueCategory != nil {
			c, ok := models.ParsePhysiqueCategory(string(*patch.PhysiqueCategory))
			if !ok {
				return newError(KindInvalidCategory, fmt.Sprintf("unknown physique category %q", *patch.PhysiqueCategory))
			}
			user.PhysiqueCategory = c
		}
		if patch.Gender != nil {
			user.Gender = strings.TrimSpace(*patch.Gender)
		}
		if patch.Bio != nil {
			bio := utils.NormalizeText(*patch.Bio)
			if len(bio) > MaxBioLength {
				return newError(KindInvalidInput, "bio is too long")
			}
			user.Bio = bio
		}
		if err := tx.Users().UpdateUser(ctx, user); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetProfileImage stores the URL of an uploaded profile picture.
func (s *UserService) SetProfileImage(ctx context.Context, id, url string) (*models.User, error) {
	var updated *models.User
	err := s.store.Atomically(ctx, func(tx repository.Store) error {
		user, err := tx.Users().GetUser(ctx, id)
		if err != nil {
			return notFoundOr(err, "user not found")
		}
		user.ProfileImage = url
		if err := tx.Users().UpdateUser(ctx, user); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
