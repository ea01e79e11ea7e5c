package agentrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"yarad/internal/domain"
)

// Client speaks the dispatcher's agent API. The credential rides along on
// every call as a bearer token.
type Client struct {
	baseURL string
	auth    string
	http    *http.Client
}

func NewClient(baseURL, auth string) *Client {
	return &Client{
		baseURL: baseURL,
		auth:    auth,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) ListJobs(ctx context.Context) ([]domain.AvailableJob, error) {
	var jobs []domain.AvailableJob
	if err := c.do(ctx, http.MethodGet, "/api/agent/jobs", nil, &jobs); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Claim attempts to take the job. accepted=false is the normal race-losing
// outcome, not an error.
func (c *Client) Claim(ctx context.Context, jobID int64) (accepted bool, rules []byte, err error) {
	var resp struct {
		Status string `json:"status"`
		Rules  string `json:"rules"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/agent/jobs/%d/claim", jobID), nil, &resp); err != nil {
		return false, nil, fmt.Errorf("claim job %d: %w", jobID, err)
	}
	if resp.Status != "accepted" {
		return false, nil, nil
	}
	return true, []byte(resp.Rules), nil
}

func (c *Client) Submit(ctx context.Context, report domain.CompletionReport, outcome domain.JobStatus) error {
	body := struct {
		Report domain.CompletionReport `json:"report"`
		Status domain.JobStatus        `json:"status"`
	}{Report: report, Status: outcome}
	if err := c.do(ctx, http.MethodPost, "/api/agent/results", body, nil); err != nil {
		return fmt.Errorf("submit results: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.auth)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
