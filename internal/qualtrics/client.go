// Package qualtrics reports interview completion back to the survey that
// launched it.
package qualtrics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"
)

var (
	// ErrResponseNotFound means the survey platform does not know the
	// response id yet. It usually appears before the survey response is
	// submitted and is not fatal.
	ErrResponseNotFound  = errors.New("qualtrics response not found")
	ErrInvalidResponseID = errors.New("invalid qualtrics response id")
)

var responseIDPattern = regexp.MustCompile(`^R_[A-Za-z0-9]+$`)

// ValidResponseID reports whether id has the survey platform's response id
// shape.
func ValidResponseID(id string) bool {
	return responseIDPattern.MatchString(id)
}

type Client struct {
	token    string
	surveyID string
	client   *http.Client
	logger   *slog.Logger
	apiURL   string
	now      func() time.Time
}

func NewClient(token, surveyID, datacenter string, logger *slog.Logger) *Client {
	return &Client{
		token:    token,
		surveyID: surveyID,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
		apiURL:   fmt.Sprintf("https://%s.qualtrics.com/API/v3", datacenter),
		now:      time.Now,
	}
}

func (c *Client) responseURL(responseID string) string {
	return fmt.Sprintf("%s/surveys/%s/responses/%s", c.apiURL, url.PathEscape(c.surveyID), url.PathEscape(responseID))
}

type embeddedData struct {
	ChatbotCompleted           string `json:"ChatbotCompleted"`
	ChatbotCompletionTimestamp string `json:"ChatbotCompletionTimestamp"`
}

// MarkComplete sets the completion flag and timestamp on a survey response.
func (c *Client) MarkComplete(ctx context.Context, responseID string) error {
	if !ValidResponseID(responseID) {
		return fmt.Errorf("%w: %q", ErrInvalidResponseID, responseID)
	}

	body, err := json.Marshal(map[string]any{
		"embeddedData": embeddedData{
			ChatbotCompleted:           "1",
			ChatbotCompletionTimestamp: c.now().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("marshal qualtrics payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.responseURL(responseID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	if err := c.do(req, responseID); err != nil {
		return err
	}
	c.logger.Info("marked qualtrics response complete", "response_id", responseID)
	return nil
}

// Verify checks that the survey platform knows responseID.
func (c *Client) Verify(ctx context.Context, responseID string) error {
	if !ValidResponseID(responseID) {
		return fmt.Errorf("%w: %q", ErrInvalidResponseID, responseID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.responseURL(responseID), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)
	return c.do(req, responseID)
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-API-TOKEN", c.token)
}

func (c *Client) do(req *http.Request, responseID string) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("qualtrics %s: %w", req.Method, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrResponseNotFound, responseID)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("qualtrics %s returned %d: %s", req.Method, resp.StatusCode, respBody)
	}
	return nil
}
