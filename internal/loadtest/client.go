package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// Outcome classifies a single submission.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeCreated
	OutcomeDuplicate
)

// Client talks to the highscore HTTP API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{base: baseURL, http: hc}
}

// Health calls /healthz and fails on any non-200 status.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Submit posts one score. The returned Recorded is only populated for
// OutcomeCreated.
func (c *Client) Submit(ctx context.Context, s Submission) (Outcome, Recorded, error) {
	var rec Recorded
	body, err := json.Marshal(s)
	if err != nil {
		return OutcomeFailed, rec, fmt.Errorf("failed to marshal submission: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/scores", bytes.NewReader(body))
	if err != nil {
		return OutcomeFailed, rec, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return OutcomeFailed, rec, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			return OutcomeFailed, rec, fmt.Errorf("failed to decode response: %w", err)
		}
		return OutcomeCreated, rec, nil
	case http.StatusOK:
		return OutcomeDuplicate, rec, nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return OutcomeFailed, rec, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
}

// TableQuery selects a leaderboard. Empty fields use the server defaults.
type TableQuery struct {
	Scope    string
	Period   string
	GameID   string
	PlayerID string
	Limit    int
}

// Leaderboard fetches one leaderboard table.
func (c *Client) Leaderboard(ctx context.Context, q TableQuery) (Table, error) {
	var t Table
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("scope", q.Scope)
	set("period", q.Period)
	set("game_id", q.GameID)
	set("player_id", q.PlayerID)
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}

	u := c.base + "/leaderboard"
	if enc := v.Encode(); enc != "" {
		u += "?" + enc
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return t, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return t, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return t, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return t, fmt.Errorf("failed to decode leaderboard: %w", err)
	}
	return t, nil
}
