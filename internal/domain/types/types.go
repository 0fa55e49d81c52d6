// Package types contains common types used across the application
package types

// Entry represents one row of a formatted leaderboard table.
type Entry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Score    int64  `json:"score"`
}
