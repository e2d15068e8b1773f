// ABOUTME: Integration dispatcher routing classified notes to Slack or Trello
// ABOUTME: Errors are values carrying a user-facing message, never panics

package integrations

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jotlab/jotbot/internal/classify"
	"github.com/jotlab/jotbot/internal/store"
)

// DefaultResponse is sent when a note targets no integration.
const DefaultResponse = "Got it! Your note has been saved."

// Error is a dispatch failure carrying a message safe to show the caller.
type Error struct {
	Message string
	Err     error // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// newError builds a caller-visible dispatch error.
func newError(message string, err error) *Error {
	return &Error{Message: message, Err: err}
}

// SlackClient is what the dispatcher needs from the Slack API.
type SlackClient interface {
	PostMessage(ctx context.Context, text, token string) (string, error)
}

// TrelloClient is what the dispatcher needs from the Trello API.
type TrelloClient interface {
	CreateBoard(ctx context.Context, text, key, token string) (string, error)
	AddCard(ctx context.Context, text, key, token string) (string, error)
}

// Dispatcher routes a classification result to the matching handler.
type Dispatcher struct {
	slack  SlackClient
	trello TrelloClient
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher over the given clients.
// Pass nil logger for default.
func NewDispatcher(slack SlackClient, trello TrelloClient, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		slack:  slack,
		trello: trello,
		logger: logger.With("component", "dispatcher"),
	}
}

// Dispatch executes the handler selected by the classification result and
// returns the response text for the caller. All failures come back as
// *Error so the hub can surface them without aborting the pipeline.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, text string, result classify.Result, creds []*store.Credential) (string, error) {
	switch result.Target {
	case classify.TargetSlack:
		return d.dispatchSlack(ctx, userID, text, creds)
	case classify.TargetTrello:
		return d.dispatchTrello(ctx, userID, text, result.SubCommand, creds)
	default:
		return DefaultResponse, nil
	}
}

func (d *Dispatcher) dispatchSlack(ctx context.Context, userID, text string, creds []*store.Credential) (string, error) {
	token := credentialValue(creds, store.CredentialSlackToken)
	if token == "" {
		return "", newError("your Slack access token is missing, add a slack_token credential first", nil)
	}

	resp, err := d.slack.PostMessage(ctx, text, token)
	if err != nil {
		d.logger.Warn("slack dispatch failed", "user_id", userID, "error", err)
		return "", newError("Slack didn't accept the request", err)
	}
	return resp, nil
}

func (d *Dispatcher) dispatchTrello(ctx context.Context, userID, text, subCommand string, creds []*store.Credential) (string, error) {
	key := credentialValue(creds, store.CredentialTrelloKey)
	if key == "" {
		return "", newError("your Trello API key is missing, add a trello_key credential first", nil)
	}
	token := credentialValue(creds, store.CredentialTrelloToken)
	if token == "" {
		return "", newError("your Trello token is missing, add a trello_token credential first", nil)
	}

	var (
		resp string
		err  error
	)
	switch subCommand {
	case "create-board":
		resp, err = d.trello.CreateBoard(ctx, text, key, token)
	case "add-card":
		resp, err = d.trello.AddCard(ctx, text, key, token)
	default:
		// Soft-fail: echo the classification label instead of erroring.
		d.logger.Debug("unmatched trello sub-command", "user_id", userID, "sub_command", subCommand)
		if subCommand == "" {
			subCommand = "unknown"
		}
		return subCommand, nil
	}
	if err != nil {
		d.logger.Warn("trello dispatch failed", "user_id", userID, "sub_command", subCommand, "error", err)
		return "", newError("Trello didn't accept the request", err)
	}
	return resp, nil
}

// credentialValue returns the value of the first credential of the given
// type, or "" if absent.
func credentialValue(creds []*store.Credential, credType string) string {
	for _, c := range creds {
		if c.Type == credType {
			return c.Value
		}
	}
	return ""
}
