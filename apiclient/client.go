package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"peggymeter/service/model"
)

// ErrNotReady is returned while the server is still signing in.
var ErrNotReady = errors.New("server is still signing in")

// errorResponse represents error payloads returned by the service.
type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string `json:"status"`
	UID    string `json:"uid"`
}

type listMoodsResponse struct {
	Records []model.MoodRecord `json:"records"`
}

type saveMoodRequest struct {
	Level     model.MoodLevel `json:"level"`
	Comment   string          `json:"comment,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

type reflectionResponse struct {
	Reflection string `json:"reflection"`
}

// Client wraps the connection details required to reach a running peggymeter API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient configures a Client pointed at the peggymeter HTTP service.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("baseURL is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "http"
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{baseURL: parsed.String(), httpClient: httpClient}, nil
}

// Health returns the server's sign in status and session uid.
func (c *Client) Health(ctx context.Context) (status, uid string, err error) {
	var resp healthResponse
	err = c.do(ctx, http.MethodGet, "/healthz", nil, &resp)
	if errors.Is(err, ErrNotReady) {
		return "signing_in", "", nil
	}
	if err != nil {
		return "", "", err
	}
	return resp.Status, resp.UID, nil
}

// ListMoods returns the mood history, oldest first.
func (c *Client) ListMoods(ctx context.Context) ([]model.MoodRecord, error) {
	var resp listMoodsResponse
	if err := c.do(ctx, http.MethodGet, "/moods", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// SaveMood records a new mood entry.
func (c *Client) SaveMood(ctx context.Context, rec model.MoodRecord) (model.MoodRecord, error) {
	req := saveMoodRequest{Level: rec.Level, Comment: strings.TrimSpace(rec.Comment), Timestamp: rec.Timestamp}
	var saved model.MoodRecord
	if err := c.do(ctx, http.MethodPost, "/moods", req, &saved); err != nil {
		return model.MoodRecord{}, err
	}
	return saved, nil
}

// DeleteMood removes a mood entry.
func (c *Client) DeleteMood(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("mood id is required")
	}
	return c.do(ctx, http.MethodDelete, "/moods/"+url.PathEscape(id), nil, nil)
}

// Settings returns the current settings.
func (c *Client) Settings(ctx context.Context) (model.Settings, error) {
	var s model.Settings
	if err := c.do(ctx, http.MethodGet, "/settings", nil, &s); err != nil {
		return model.Settings{}, err
	}
	return s, nil
}

// UpdateSettings replaces the settings.
func (c *Client) UpdateSettings(ctx context.Context, s model.Settings) (model.Settings, error) {
	var updated model.Settings
	if err := c.do(ctx, http.MethodPut, "/settings", s, &updated); err != nil {
		return model.Settings{}, err
	}
	return updated, nil
}

// Reflection asks the server for a reflection on the current history.
func (c *Client) Reflection(ctx context.Context) (string, error) {
	var resp reflectionResponse
	if err := c.do(ctx, http.MethodGet, "/reflection", nil, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Reflection) == "" {
		return "", fmt.Errorf("api returned empty reflection")
	}
	return resp.Reflection, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(reqBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return ErrNotReady
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rawBody, _ := io.ReadAll(resp.Body)
		var apiErr errorResponse
		if err := json.Unmarshal(rawBody, &apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("api error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(rawBody)))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
