// ABOUTME: Minimal Trello REST client used by the dispatcher
// ABOUTME: Creates boards and cards, authenticating with key+token query params

package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultTrelloBaseURL = "https://api.trello.com/1"

// TrelloAPI calls the Trello REST API over HTTP.
type TrelloAPI struct {
	baseURL string
	listID  string
	client  *http.Client
}

// TrelloOption customizes a TrelloAPI client.
type TrelloOption func(*TrelloAPI)

// WithTrelloBaseURL overrides the API base URL (used in tests).
func WithTrelloBaseURL(url string) TrelloOption {
	return func(t *TrelloAPI) { t.baseURL = url }
}

// WithTrelloListID sets the list new cards are added to.
func WithTrelloListID(id string) TrelloOption {
	return func(t *TrelloAPI) { t.listID = id }
}

// NewTrelloAPI creates a Trello client.
func NewTrelloAPI(opts ...TrelloOption) *TrelloAPI {
	t := &TrelloAPI{
		baseURL: defaultTrelloBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type trelloEntity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// CreateBoard creates a board named after the note text.
func (t *TrelloAPI) CreateBoard(ctx context.Context, text, key, token string) (string, error) {
	params := url.Values{}
	params.Set("name", text)

	board, err := t.post(ctx, "/boards/", params, key, token)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created Trello board %q.", board.Name), nil
}

// AddCard adds a card named after the note text to the configured list.
func (t *TrelloAPI) AddCard(ctx context.Context, text, key, token string) (string, error) {
	params := url.Values{}
	params.Set("name", text)
	if t.listID != "" {
		params.Set("idList", t.listID)
	}

	card, err := t.post(ctx, "/cards", params, key, token)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Added Trello card %q.", card.Name), nil
}

func (t *TrelloAPI) post(ctx context.Context, path string, params url.Values, key, token string) (*trelloEntity, error) {
	params.Set("key", key)
	params.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling trello: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trello returned status %d", resp.StatusCode)
	}

	var entity trelloEntity
	if err := json.NewDecoder(resp.Body).Decode(&entity); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &entity, nil
}

var _ TrelloClient = (*TrelloAPI)(nil)
