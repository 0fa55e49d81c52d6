// Package loadtest drives a running highscore service over HTTP, submits a
// generated workload and checks the resulting leaderboards for consistency.
package loadtest

import (
	"errors"
	"runtime"
	"time"
)

// Defaults used when a Config field is left at its zero value.
const (
	DefaultBaseURL       = "http://localhost:9080"
	DefaultSubmissions   = 1000
	DefaultPlayers       = 100
	DefaultGames         = 5
	DefaultTimeout       = 10 * time.Second
	DefaultPersonalLimit = 10
	workerMultiplier     = 2
)

// ErrVerification is returned when a leaderboard read back from the service
// is inconsistent with what was submitted.
var ErrVerification = errors.New("verification failed")

// Config holds configuration for a load run.
type Config struct {
	BaseURL       string        // Base URL of the service
	Submissions   int           // Number of scores to submit
	Players       int           // Number of distinct players
	Games         int           // Number of distinct games
	Workers       int           // Number of concurrent submitters
	Timeout       time.Duration // HTTP request timeout
	PersonalLimit int           // Expected personal_limit of the server
	Verbose       bool          // Log every failed request
}

// withDefaults returns a copy of c with zero fields filled in.
func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Submissions <= 0 {
		c.Submissions = DefaultSubmissions
	}
	if c.Players <= 0 {
		c.Players = DefaultPlayers
	}
	if c.Games <= 0 {
		c.Games = DefaultGames
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU() * workerMultiplier
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PersonalLimit <= 0 {
		c.PersonalLimit = DefaultPersonalLimit
	}
	return c
}

// Submission is the body posted to /scores.
type Submission struct {
	RequestID string `json:"request_id"`
	PlayerID  string `json:"player_id"`
	GameID    string `json:"game_id"`
	Score     int64  `json:"score"`
}

// RankMap mirrors the per-period ranks returned by the service.
type RankMap struct {
	Daily   *int `json:"daily"`
	Weekly  *int `json:"weekly"`
	Monthly *int `json:"monthly"`
}

// Recorded is the 201 response of a score submission.
type Recorded struct {
	ID            string    `json:"id"`
	PlayerID      string    `json:"player_id"`
	GameID        string    `json:"game_id"`
	Score         int64     `json:"score"`
	CreatedAt     time.Time `json:"created_at"`
	PersonalRanks RankMap   `json:"personal_ranks"`
	GameRanks     RankMap   `json:"game_ranks"`
}

// Entry is one row of a leaderboard table.
type Entry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Score    int64  `json:"score"`
}

// Table is the body of GET /leaderboard.
type Table struct {
	Scope    string  `json:"scope"`
	Period   string  `json:"period"`
	GameID   string  `json:"game_id"`
	PlayerID string  `json:"player_id,omitempty"`
	Entries  []Entry `json:"entries"`
}

// Stats holds run statistics.
type Stats struct {
	Generated  int
	Submitted  int
	Successful int
	Duplicate  int
	Failed     int
	Boards     int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}

// Throughput returns submissions per second over the run.
func (s Stats) Throughput() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Submitted) / s.Duration.Seconds()
}
