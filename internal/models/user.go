package models

import (
	"strings"
	"time"
)

// PhysiqueCategory is the competition division a member identifies with.
type PhysiqueCategory string

const (
	CategoryBodybuilding PhysiqueCategory = "bodybuilding"
	CategoryPhysique     PhysiqueCategory = "physique"
	CategoryBikini       PhysiqueCategory = "bikini"
	CategoryWellness     PhysiqueCategory = "wellness"
	CategoryFitness      PhysiqueCategory = "fitness"
)

// PhysiqueCategories lists every known category in display order.
var PhysiqueCategories = []PhysiqueCategory{
	CategoryBodybuilding,
	CategoryPhysique,
	CategoryBikini,
	CategoryWellness,
	CategoryFitness,
}

// ParsePhysiqueCategory normalizes s and reports whether it names a known category.
func ParsePhysiqueCategory(s string) (PhysiqueCategory, bool) {
	c := PhysiqueCategory(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range PhysiqueCategories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// User represents the public member profile
type User struct {
	ID               string           `json:"id"`
	Username         string           `json:"username"`
	PhysiqueCategory PhysiqueCategory `json:"physique_category"`
	Gender           string           `json:"gender,omitempty"`
	Bio              string           `json:"bio,omitempty"`
	ProfileImage     string           `json:"profile_image,omitempty"`
	VoteCount        int              `json:"vote_count"`
	MonthlyVotes     int              `json:"monthly_votes"`
	RewardPoints     int              `json:"reward_points"`
	CreatedAt        time.Time        `json:"created_at"`

	// Internal only - never returned in JSON
	PasswordHash string `json:"-"`
}

// ProfilePatch carries optional profile fields; nil fields are left untouched.
type ProfilePatch struct {
	PhysiqueCategory *PhysiqueCategory `json:"physique_category,omitempty"`
	Gender           *string           `json:"gender,omitempty"`
	Bio              *string           `json:"bio,omitempty"`
}
