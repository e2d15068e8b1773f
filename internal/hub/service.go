// ABOUTME: The hub Service runs the per-message pipeline
// ABOUTME: Gate, billing, history append, classify, dispatch, respond, history append

package hub

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jotlab/jotbot/internal/classify"
	"github.com/jotlab/jotbot/internal/history"
	"github.com/jotlab/jotbot/internal/integrations"
	"github.com/jotlab/jotbot/internal/store"
)

// System message texts sent to callers.
const (
	MsgEmptyNote     = "a note can't be empty"
	MsgNoCredentials = "set up your API keys before sending notes"
	MsgConnected     = "connection established"
)

// Store defines what the service needs from persistence.
type Store interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	ListCredentialsByOwner(ctx context.Context, ownerID string) ([]*store.Credential, error)
	RecordTransaction(ctx context.Context, tx *store.Transaction) error
}

// Dispatcher defines what the service needs from the integration layer.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID, text string, result classify.Result, creds []*store.Credential) (string, error)
}

// Outbox delivers messages back to the single caller that originated the
// request. Implementations must never fan out to other connections.
type Outbox interface {
	// System sends a validation/setup/error notice.
	System(text string)
	// Respond sends a bot or integration response.
	Respond(text string)
}

// Service is the message routing core. One Send call is one pipeline
// execution; calls run concurrently across users and even for the same
// user. The history table is the only shared mutable state.
type Service struct {
	store      Store
	gate       *CredentialGate
	history    *history.Table
	classifier classify.Classifier
	dispatcher Dispatcher
	fee        int64
	logger     *slog.Logger
}

// New creates a hub service. Pass nil logger for default.
func New(st Store, hist *history.Table, classifier classify.Classifier, dispatcher Dispatcher, fee int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      st,
		gate:       NewCredentialGate(st),
		history:    hist,
		classifier: classifier,
		dispatcher: dispatcher,
		fee:        fee,
		logger:     logger.With("component", "hub"),
	}
}

// Send runs the full pipeline for one inbound note and delivers exactly
// one message through the outbox.
//
// Key principle: the credential gate runs before any side effect. Once
// billing and the user-message append have happened they are never rolled
// back, even if dispatch fails later (fail-forward).
func (s *Service) Send(ctx context.Context, userID, text string, out Outbox) {
	if strings.TrimSpace(text) == "" {
		out.System(MsgEmptyNote)
		return
	}

	// Validating: no history update and no billing on a gate failure,
	// only a system message.
	creds, ok, reason, err := s.gate.Check(ctx, userID)
	if err != nil {
		s.fail(out, userID, "credential check failed", err)
		return
	}
	if !ok {
		out.System(reason)
		return
	}

	// BillingRecording
	now := time.Now()
	tx := &store.Transaction{
		OwnerID:   userID,
		Amount:    s.fee,
		Type:      store.TransactionMessageFee,
		CreatedAt: now,
	}
	if err := s.store.RecordTransaction(ctx, tx); err != nil {
		s.fail(out, userID, "billing failed", err)
		return
	}

	s.history.Append(userID, history.Message{
		Sender: history.SenderUser,
		Text:   text,
		SentAt: now,
	})

	// Classifying
	result := s.classifier.Classify(text)
	s.logger.Debug("note classified",
		"user_id", userID,
		"target", result.Target.String(),
		"sub_command", result.SubCommand)

	// Dispatching: integration failures become the caller's response, not
	// a pipeline fault. The user message stays in history; no bot entry
	// is appended for a failed dispatch.
	resp, err := s.dispatcher.Dispatch(ctx, userID, text, result, creds)
	if err != nil {
		var dispErr *integrations.Error
		if errors.As(err, &dispErr) {
			s.logger.Info("dispatch rejected",
				"user_id", userID,
				"target", result.Target.String(),
				"error", err)
			out.Respond(dispErr.Message)
			return
		}
		s.fail(out, userID, "dispatch failed", err)
		return
	}

	// Responding, then HistoryUpdating. Pipeline sequencing guarantees
	// the user message is observable before the bot response.
	out.Respond(resp)
	s.history.Append(userID, history.Message{
		Sender: history.SenderBot,
		Text:   resp,
		SentAt: time.Now(),
	})
}

// History returns a snapshot of the user's conversation, oldest first.
func (s *Service) History(userID string) []history.Message {
	return s.history.Snapshot(userID)
}

// Clean removes the user's entire conversation history. Idempotent.
func (s *Service) Clean(userID string) {
	s.history.Clear(userID)
}

// fail surfaces an unexpected collaborator error as a system message.
// Side effects already committed are not undone.
func (s *Service) fail(out Outbox, userID, what string, err error) {
	s.logger.Error(what, "user_id", userID, "error", err)
	out.System("something went wrong: " + err.Error())
}
