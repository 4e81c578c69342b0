package models

import "time"

// OnboardingStep is one stage of the gamified setup flow.
type OnboardingStep string

const (
	StepWelcome    OnboardingStep = "welcome"
	StepCategory   OnboardingStep = "category"
	StepProfile    OnboardingStep = "profile"
	StepEngagement OnboardingStep = "engagement"
	StepFirstPost  OnboardingStep = "firstPost"
	StepRewards    OnboardingStep = "rewards"
	StepStreak     OnboardingStep = "streak"
	StepComplete   OnboardingStep = "complete"
)

// BadgeID identifies one of the known badges.
type BadgeID string

const (
	BadgeEarlyAdopter BadgeID = "early-adopter"
	BadgeProfilePro   BadgeID = "profile-pro"
	BadgeFirstPost    BadgeID = "first-post"
)

// Badge is an award held by a member. A badge set never holds the same ID twice.
type Badge struct {
	ID          BadgeID    `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	EarnedAt    time.Time  `json:"earned_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// OnboardingData accumulates everything the member provides or earns during onboarding.
type OnboardingData struct {
	Points              int        `json:"points"`
	Badges              []Badge    `json:"badges"`
	Streak              int        `json:"streak"`
	LastActive          *time.Time `json:"last_active"`
	Goals               []string   `json:"goals,omitempty"`
	CompletedMissions   []string   `json:"completed_missions,omitempty"`
	Category            string     `json:"category,omitempty"`
	GymType             string     `json:"gym_type,omitempty"`
	TrainingStyles      []string   `json:"training_styles,omitempty"`
	Username            string     `json:"username,omitempty"`
	Bio                 string     `json:"bio,omitempty"`
	Gender              string     `json:"gender,omitempty"`
	ProfileImage        string     `json:"profile_image,omitempty"`
	OnboardingCompleted bool       `json:"onboarding_completed"`
}

// OnboardingDataPatch is a shallow update; nil fields are left as they are.
type OnboardingDataPatch struct {
	Goals             *[]string `json:"goals,omitempty"`
	CompletedMissions *[]string `json:"completed_missions,omitempty"`
	Category          *string   `json:"category,omitempty"`
	GymType           *string   `json:"gym_type,omitempty"`
	TrainingStyles    *[]string `json:"training_styles,omitempty"`
	Username          *string   `json:"username,omitempty"`
	Bio               *string   `json:"bio,omitempty"`
	Gender            *string   `json:"gender,omitempty"`
	ProfileImage      *string   `json:"profile_image,omitempty"`
}

// OnboardingState is the persisted snapshot of a member's onboarding progress.
type OnboardingState struct {
	UserID          string           `json:"user_id"`
	CurrentStep     OnboardingStep   `json:"current_step"`
	CompletedSteps  []OnboardingStep `json:"completed_steps"`
	UserData        OnboardingData   `json:"user_data"`
	CompletedAt     *time.Time       `json:"completed_at"`
	ShowCelebration bool             `json:"show_celebration"`
}
