package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/chatwatch/chatwatch/internal/types"
)

// Client talks to the collector's HTTP API.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	pollClient *http.Client
}

// NewClient creates a collector client. The poll client carries a longer
// timeout than the server-side long-poll wait so the server always answers
// before the client gives up.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		pollClient: &http.Client{
			Timeout: 35 * time.Second,
		},
	}
}

// SetAuthToken sets the bearer token sent on admin requests.
func (c *Client) SetAuthToken(token string) {
	c.authToken = token
}

// Report submits an agent report and returns the collector's verdict.
func (c *Client) Report(ctx context.Context, report *types.Report) (*types.ReportResponse, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/report", c.baseURL), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var result types.ReportResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// TodayStats fetches the collector's durable counters for the current day,
// used to re-seed local counters after an agent restart.
func (c *Client) TodayStats(ctx context.Context, agentID string) (*types.TodayStats, error) {
	u := fmt.Sprintf("%s/stats?agentId=%s", c.baseURL, url.QueryEscape(agentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var stats types.TodayStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, err
	}

	return &stats, nil
}

// History fetches stored daily records for an agent over a named range.
func (c *Client) History(ctx context.Context, agentID, rangeName string) ([]types.HistoryRecord, error) {
	u := fmt.Sprintf("%s/history?agentId=%s&range=%s",
		c.baseURL, url.QueryEscape(agentID), url.QueryEscape(rangeName))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var records []types.HistoryRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, err
	}

	return records, nil
}

// PollMessages blocks until the collector delivers pending messages for the
// agent or its long-poll wait expires with an empty list.
func (c *Client) PollMessages(ctx context.Context, agentID string) ([]types.Message, error) {
	u := fmt.Sprintf("%s/messages/poll/%s", c.baseURL, url.PathEscape(agentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.pollClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var messages []types.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, err
	}

	return messages, nil
}

// SendMessage queues a message for an agent via the admin surface. The
// client's auth token must be set unless the collector runs with auth
// disabled.
func (c *Client) SendMessage(ctx context.Context, agentID, body string) error {
	payload, err := json.Marshal(map[string]string{
		"agentId": agentID,
		"message": body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/admin/messages", c.baseURL), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Health checks if the collector is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status code %d", resp.StatusCode)
	}

	return nil
}
