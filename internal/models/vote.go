package models

import "time"

// Vote records that VoterID voted for VotedForID. Votes are immutable.
type Vote struct {
	VoterID    string    `json:"voter_id"`
	VotedForID string    `json:"voted_for_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// LeaderboardPeriod selects which counter a leaderboard ranks by.
type LeaderboardPeriod string

const (
	PeriodAllTime LeaderboardPeriod = "all-time"
	PeriodMonthly LeaderboardPeriod = "monthly"
)

// LeaderboardEntry is one ranked row of the leaderboard.
type LeaderboardEntry struct {
	Rank             int              `json:"rank"`
	UserID           string           `json:"user_id"`
	Username         string           `json:"username"`
	ProfileImage     string           `json:"profile_image,omitempty"`
	PhysiqueCategory PhysiqueCategory `json:"physique_category"`
	Score            int              `json:"score"`
}
