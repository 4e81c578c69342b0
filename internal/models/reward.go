package models

import "strings"

// RewardCategory groups rewards in the catalog.
type RewardCategory string

const (
	RewardProduct      RewardCategory = "product"
	RewardTrip         RewardCategory = "trip"
	RewardConsultation RewardCategory = "consultation"
)

// RewardCategoryAll is the listing filter that matches every category.
const RewardCategoryAll = "all"

// ParseRewardCategory normalizes s and reports whether it names a known category.
func ParseRewardCategory(s string) (RewardCategory, bool) {
	c := RewardCategory(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case RewardProduct, RewardTrip, RewardConsultation:
		return c, true
	}
	return "", false
}

// Reward is a catalog item members redeem with reward points.
type Reward struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Description    string         `json:"description" yaml:"description"`
	PointsRequired int            `json:"points_required" yaml:"points_required"`
	Stock          int            `json:"stock" yaml:"stock"`
	Category       RewardCategory `json:"category" yaml:"category"`
	Image          string         `json:"image,omitempty" yaml:"image"`
}
