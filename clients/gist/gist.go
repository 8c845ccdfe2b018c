package gist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Kalifa21/the-watcher/config"
)

const (
	apiBaseURL = "https://api.github.com"

	gistDescription = "the-watcher state"
)

// Storage is the interface for gist storage operations.
// This allows for easy mocking in tests.
type Storage interface {
	IsEnabled() bool
	GetGistID() string
	Load(ctx context.Context, filename string) (string, error)
	LoadJSON(ctx context.Context, filename string, dest any) error
	Save(ctx context.Context, filename, content string) error
	SaveJSON(ctx context.Context, filename string, data any) error
}

// Ensure Client implements Storage interface
var _ Storage = (*Client)(nil)

// Client talks to the GitHub Gist API. All files live in one gist so a
// single GITHUB_TOKEN plus STATE_GIST_ID covers every persisted document.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	token      string
	gistID     string // If empty, the first Save creates a gist and keeps its ID
}

// GistFile represents a file in a gist.
type GistFile struct {
	Filename string `json:"filename,omitempty"`
	Content  string `json:"content"`
}

// Gist represents a GitHub gist.
type Gist struct {
	ID          string              `json:"id"`
	Description string              `json:"description"`
	Public      bool                `json:"public"`
	Files       map[string]GistFile `json:"files"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// gistPayload is the request body for creating or updating a gist.
type gistPayload struct {
	Description string              `json:"description,omitempty"`
	Public      bool                `json:"public"`
	Files       map[string]GistFile `json:"files"`
}

// NewClient creates a GitHub Gist client from the configured token and
// gist ID. A missing token disables the client rather than erroring, so
// callers can treat gist persistence as optional.
func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	token := cfg.Gist.Token
	if token == "" {
		logger.Warn("GITHUB_TOKEN not set, gist storage will be disabled")
	}

	return &Client{
		logger: logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		token:  token,
		gistID: cfg.Gist.GistID,
	}
}

// IsEnabled returns true if the client has a valid token.
func (c *Client) IsEnabled() bool {
	return c.token != ""
}

// GetGistID returns the current gist ID.
func (c *Client) GetGistID() string {
	return c.gistID
}

// Load fetches the content of one file from the configured gist.
func (c *Client) Load(ctx context.Context, filename string) (string, error) {
	if !c.IsEnabled() {
		return "", fmt.Errorf("gist client not configured")
	}
	if c.gistID == "" {
		return "", fmt.Errorf("no gist ID configured")
	}

	url := fmt.Sprintf("%s/gists/%s", apiBaseURL, c.gistID)
	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("gist not found")
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("api error status=%d body=%s", resp.StatusCode, string(body))
	}

	var gist Gist
	if err := json.NewDecoder(resp.Body).Decode(&gist); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	file, ok := gist.Files[filename]
	if !ok {
		return "", fmt.Errorf("file %q not found in gist", filename)
	}

	c.logger.Debug("loaded from gist",
		zap.String("filename", filename),
		zap.Int("bytes", len(file.Content)),
	)

	return file.Content, nil
}

// LoadJSON fetches a gist file and unmarshals it into dest.
func (c *Client) LoadJSON(ctx context.Context, filename string, dest any) error {
	content, err := c.Load(ctx, filename)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(content), dest); err != nil {
		return fmt.Errorf("unmarshal json: %w", err)
	}

	return nil
}

// Save writes content to one file in the configured gist. When no gist
// ID is configured, a new private gist is created and its ID retained
// for subsequent saves.
func (c *Client) Save(ctx context.Context, filename, content string) error {
	if !c.IsEnabled() {
		return fmt.Errorf("gist client not configured")
	}

	payload := gistPayload{
		Description: gistDescription,
		Public:      false,
		Files: map[string]GistFile{
			filename: {Content: content},
		},
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/gists", apiBaseURL)
	method := http.MethodPost
	if c.gistID != "" {
		url = fmt.Sprintf("%s/gists/%s", apiBaseURL, c.gistID)
		method = http.MethodPatch
	}

	req, err := c.newRequest(ctx, method, url, bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api error status=%d body=%s", resp.StatusCode, string(body))
	}

	// If we created a new gist, save its ID for future updates
	if c.gistID == "" {
		var gist Gist
		if err := json.NewDecoder(resp.Body).Decode(&gist); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		c.gistID = gist.ID
		c.logger.Info("created new gist", zap.String("id", gist.ID))
	}

	c.logger.Debug("saved to gist",
		zap.String("filename", filename),
		zap.Int("bytes", len(content)),
	)

	return nil
}

// SaveJSON marshals data with indentation and saves it to a gist file.
func (c *Client) SaveJSON(ctx context.Context, filename string, data any) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	return c.Save(ctx, filename, string(jsonData))
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	return req, nil
}
