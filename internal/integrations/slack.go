// ABOUTME: Minimal Slack Web API client used by the dispatcher
// ABOUTME: Posts the note text to a channel via chat.postMessage

package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultSlackBaseURL = "https://slack.com/api"

// SlackAPI calls the Slack Web API over HTTP.
type SlackAPI struct {
	baseURL string
	channel string
	client  *http.Client
}

// SlackOption customizes a SlackAPI client.
type SlackOption func(*SlackAPI)

// WithSlackBaseURL overrides the API base URL (used in tests).
func WithSlackBaseURL(url string) SlackOption {
	return func(s *SlackAPI) { s.baseURL = url }
}

// WithSlackChannel sets the channel notes are posted to.
func WithSlackChannel(channel string) SlackOption {
	return func(s *SlackAPI) { s.channel = channel }
}

// NewSlackAPI creates a Slack client posting to #general by default.
func NewSlackAPI(opts ...SlackOption) *SlackAPI {
	s := &SlackAPI{
		baseURL: defaultSlackBaseURL,
		channel: "#general",
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type slackPostRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type slackPostResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// PostMessage sends text to the configured channel using the given bot
// token and returns a confirmation for the caller.
func (s *SlackAPI) PostMessage(ctx context.Context, text, token string) (string, error) {
	body, err := json.Marshal(slackPostRequest{Channel: s.channel, Text: text})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	var parsed slackPostResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if !parsed.OK {
		return "", fmt.Errorf("slack error: %s", parsed.Error)
	}

	return fmt.Sprintf("Posted your note to Slack channel %s.", s.channel), nil
}

var _ SlackClient = (*SlackAPI)(nil)
