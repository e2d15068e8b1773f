// ABOUTME: Tests for the hub pipeline service
// ABOUTME: Covers gate aborts, billing, history effects, and dispatch failures

package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jotlab/jotbot/internal/classify"
	"github.com/jotlab/jotbot/internal/history"
	"github.com/jotlab/jotbot/internal/integrations"
	"github.com/jotlab/jotbot/internal/store"
)

// testOutbox records what the pipeline sent to the caller.
type testOutbox struct {
	mu        sync.Mutex
	systems   []string
	responses []string
}

func (o *testOutbox) System(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.systems = append(o.systems, text)
}

func (o *testOutbox) Respond(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.responses = append(o.responses, text)
}

// stubDispatcher returns a canned response or error.
type stubDispatcher struct {
	resp string
	err  error
}

func (d *stubDispatcher) Dispatch(_ context.Context, _, _ string, _ classify.Result, _ []*store.Credential) (string, error) {
	return d.resp, d.err
}

func newTestService(t *testing.T, st Store, d Dispatcher) *Service {
	t.Helper()
	if d == nil {
		d = &stubDispatcher{resp: integrations.DefaultResponse}
	}
	return New(st, history.NewTable(history.DefaultLimit, nil), classify.NewMatcher(), d, 5, nil)
}

func seedUser(t *testing.T, m *store.MockStore, id string, credTypes ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.CreateUser(ctx, &store.User{ID: id, Name: id}))
	for _, ct := range credTypes {
		require.NoError(t, m.CreateCredential(ctx, &store.Credential{
			OwnerID: id,
			Type:    ct,
			Value:   "value-" + ct,
		}))
	}
}

func TestSend_EmptyNoteOnlySystemMessage(t *testing.T) {
	mock := store.NewMockStore()
	seedUser(t, mock, "u1", store.CredentialSlackToken)
	svc := newTestService(t, mock, nil)
	out := &testOutbox{}

	svc.Send(context.Background(), "u1", "   ", out)

	assert.Equal(t, []string{MsgEmptyNote}, out.systems)
	assert.Empty(t, out.responses)
	assert.Empty(t, svc.History("u1"))
	txs, _ := mock.ListTransactionsByOwner(context.Background(), "u1")
	assert.Empty(t, txs, "billing must not run for empty notes")
}

func TestSend_UnknownUserAborts(t *testing.T) {
	mock := store.NewMockStore()
	svc := newTestService(t, mock, nil)
	out := &testOutbox{}

	svc.Send(context.Background(), "ghost", "hello", out)

	require.Len(t, out.systems, 1)
	assert.Contains(t, out.systems[0], "ghost")
	assert.Empty(t, out.responses)
	assert.Empty(t, svc.History("ghost"))
}

func TestSend_NoCredentialsAborts(t *testing.T) {
	mock := store.NewMockStore()
	seedUser(t, mock, "u1") // user exists but has zero credentials
	svc := newTestService(t, mock, nil)
	out := &testOutbox{}

	svc.Send(context.Background(), "u1", "hello", out)

	assert.Equal(t, []string{MsgNoCredentials}, out.systems)
	assert.Empty(t, out.responses)
	assert.Empty(t, svc.History("u1"))
	txs, _ := mock.ListTransactionsByOwner(context.Background(), "u1")
	assert.Empty(t, txs, "billing must not run before the gate passes")
}

func TestSend_PlainNoteHappyPath(t *testing.T) {
	mock := store.NewMockStore()
	seedUser(t, mock, "u1", store.CredentialSlackToken)
	svc := newTestService(t, mock, nil)
	out := &testOutbox{}

	svc.Send(context.Background(), "u1", "hello", out)

	assert.Empty(t, out.systems)
	require.Equal(t, []string{integrations.DefaultResponse}, out.responses)

	txs, err := mock.ListTransactionsByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, txs, 1, "exactly one billing record")
	assert.Equal(t, store.TransactionMessageFee, txs[0].Type)
	assert.Equal(t, int64(5), txs[0].Amount)

	hist := svc.History("u1")
	require.Len(t, hist, 2)
	assert.Equal(t, history.SenderUser, hist[0].Sender)
	assert.Equal(t, "hello", hist[0].Text)
	assert.Equal(t, history.SenderBot, hist[1].Sender)
	assert.Equal(t, integrations.DefaultResponse, hist[1].Text)
}

func TestSend_HistoryStaysBounded(t *testing.T) {
	mock := store.NewMockStore()
	seedUser(t, mock, "u2", store.CredentialSlackToken)
	svc := newTestService(t, mock, nil)

	for i := 0; i < 51; i++ {
		out := &testOutbox{}
		svc.Send(context.Background(), "u2", fmt.Sprintf("note %d", i), out)
		require.Len(t, out.responses, 1)
	}

	hist := svc.History("u2")
	require.Len(t, hist, history.DefaultLimit)
	// Each note adds a user/bot pair, so the earliest pairs have been
	// evicted; the first message/response pair is gone and what remains
	// starts on a pair boundary.
	assert.Equal(t, history.SenderUser, hist[0].Sender)
	assert.NotEqual(t, "note 0", hist[0].Text)
	for i := 1; i < len(hist); i++ {
		assert.False(t, hist[i].SentAt.Before(hist[i-1].SentAt), "history out of order at %d", i)
	}
}

func TestSend_MissingTrelloCredentialIsResponseNotAbort(t *testing.T) {
	mock := store.NewMockStore()
	// Has the key but not the token: gate passes, dispatch rejects.
	seedUser(t, mock, "u3", store.CredentialTrelloKey)
	dispatcher := integrations.NewDispatcher(nil, nil, nil)
	svc := newTestService(t, mock, dispatcher)
	out := &testOutbox{}

	svc.Send(context.Background(), "u3", "trello: create a board called Roadmap", out)

	assert.Empty(t, out.systems)
	require.Len(t, out.responses, 1)
	assert.Contains(t, out.responses[0], "trello_token")

	// The user message append happened before dispatch; no bot entry.
	hist := svc.History("u3")
	require.Len(t, hist, 1)
	assert.Equal(t, history.SenderUser, hist[0].Sender)

	// Billing already committed (fail-forward).
	txs, _ := mock.ListTransactionsByOwner(context.Background(), "u3")
	assert.Len(t, txs, 1)
}

func TestSend_UnexpectedStoreErrorBecomesSystemMessage(t *testing.T) {
	mock := store.NewMockStore()
	seedUser(t, mock, "u4", store.CredentialSlackToken)
	mock.GetUserErr = errors.New("disk on fire")
	svc := newTestService(t, mock, nil)
	out := &testOutbox{}

	svc.Send(context.Background(), "u4", "hello", out)

	require.Len(t, out.systems, 1)
	assert.Contains(t, out.systems[0], "something went wrong")
	assert.Contains(t, out.systems[0], "disk on fire")
	assert.Empty(t, out.responses)
}

func TestSend_BillingFailureAbortsBeforeHistory(t *testing.T) {
	mock := store.NewMockStore()
	seedUser(t, mock, "u5", store.CredentialSlackToken)
	mock.RecordTransactionErr = errors.New("ledger unavailable")
	svc := newTestService(t, mock, nil)
	out := &testOutbox{}

	svc.Send(context.Background(), "u5", "hello", out)

	require.Len(t, out.systems, 1)
	assert.Contains(t, out.systems[0], "ledger unavailable")
	assert.Empty(t, svc.History("u5"))
}

func TestSend_GenericDispatchErrorBecomesSystemMessage(t *testing.T) {
	mock := store.NewMockStore()
	seedUser(t, mock, "u6", store.CredentialSlackToken)
	svc := newTestService(t, mock, &stubDispatcher{err: errors.New("boom")})
	out := &testOutbox{}

	svc.Send(context.Background(), "u6", "hello", out)

	require.Len(t, out.systems, 1)
	assert.Contains(t, out.systems[0], "boom")
	assert.Empty(t, out.responses)
}

func TestSend_ConcurrentUsersConvergeIndependently(t *testing.T) {
	mock := store.NewMockStore()
	svc := newTestService(t, mock, nil)

	const users = 8
	for u := 0; u < users; u++ {
		seedUser(t, mock, fmt.Sprintf("user-%d", u), store.CredentialSlackToken)
	}

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", u)
			for i := 0; i < 30; i++ {
				svc.Send(context.Background(), userID, fmt.Sprintf("note %d", i), &testOutbox{})
			}
		}(u)
	}
	wg.Wait()

	for u := 0; u < users; u++ {
		userID := fmt.Sprintf("user-%d", u)
		hist := svc.History(userID)
		assert.Len(t, hist, history.DefaultLimit, "user %s", userID)
		txs, _ := mock.ListTransactionsByOwner(context.Background(), userID)
		assert.Len(t, txs, 30, "user %s", userID)
	}
}

func TestCleanThenHistoryReturnsEmpty(t *testing.T) {
	mock := store.NewMockStore()
	seedUser(t, mock, "u7", store.CredentialSlackToken)
	svc := newTestService(t, mock, nil)

	svc.Send(context.Background(), "u7", "hello", &testOutbox{})
	require.NotEmpty(t, svc.History("u7"))

	svc.Clean("u7")
	assert.Empty(t, svc.History("u7"))
	svc.Clean("u7") // idempotent
	assert.Empty(t, svc.History("u7"))
}

func TestGate_Check(t *testing.T) {
	mock := store.NewMockStore()
	seedUser(t, mock, "u8", store.CredentialSlackToken, store.CredentialTrelloKey)
	gate := NewCredentialGate(mock)
	ctx := context.Background()

	creds, ok, reason, err := gate.Check(ctx, "u8")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, reason)
	assert.Len(t, creds, 2)

	_, ok, reason, err = gate.Check(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "nobody")

	// SentAt ordering sanity for a fresh pipeline run.
	svc := newTestService(t, mock, nil)
	before := time.Now()
	svc.Send(ctx, "u8", "hello", &testOutbox{})
	hist := svc.History("u8")
	require.Len(t, hist, 2)
	assert.False(t, hist[0].SentAt.Before(before.Add(-time.Second)))
}
