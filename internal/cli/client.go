package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
)

// Client talks to the bot's HTTP API.
type Client struct {
	BaseURL    string
	AdminToken string
	HTTP       *http.Client
}

func NewClient(baseURL, adminToken string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AdminToken: adminToken,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type Health struct {
	OK         bool `json:"ok"`
	QueueDepth int  `json:"queue_depth"`
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.jsonRequest(ctx, http.MethodGet, "/healthz", "", nil, &out)
	return out, err
}

func (c *Client) Settings(ctx context.Context, guildID string) (rpxp.Guild, error) {
	var out rpxp.Guild
	err := c.jsonRequest(ctx, http.MethodGet, guildPath(guildID)+"/", "", nil, &out)
	return out, err
}

func (c *Client) Summary(ctx context.Context, guildID string, scope rpxp.SummaryScope) (rpxp.Summary, error) {
	path := guildPath(guildID) + "/summary"
	if scope != "" {
		path += "?scope=" + url.QueryEscape(string(scope))
	}
	var out rpxp.Summary
	err := c.jsonRequest(ctx, http.MethodGet, path, "", nil, &out)
	return out, err
}

func (c *Client) Tuppers(ctx context.Context, guildID, userID string) (rpxp.TupperList, error) {
	var out rpxp.TupperList
	err := c.jsonRequest(ctx, http.MethodGet, guildPath(guildID)+"/users/"+url.PathEscape(userID)+"/tuppers", "", nil, &out)
	return out, err
}

func (c *Client) Rollover(ctx context.Context, guildID string) error {
	return c.jsonRequest(ctx, http.MethodPost, guildPath(guildID)+"/rollover", c.AdminToken, nil, nil)
}

func guildPath(guildID string) string {
	return "/v1/guilds/" + url.PathEscape(guildID)
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

func (c *Client) jsonRequest(ctx context.Context, method, path, token string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(raw))
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
