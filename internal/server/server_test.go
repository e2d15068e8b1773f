// ABOUTME: Tests for the WebSocket transport
// ABOUTME: Drives a real connection against the full hub pipeline with a mock store

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jotlab/jotbot/internal/classify"
	"github.com/jotlab/jotbot/internal/history"
	"github.com/jotlab/jotbot/internal/hub"
	"github.com/jotlab/jotbot/internal/integrations"
	"github.com/jotlab/jotbot/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.MockStore) {
	t.Helper()
	mock := store.NewMockStore()
	svc := hub.New(
		mock,
		history.NewTable(history.DefaultLimit, nil),
		classify.NewMatcher(),
		integrations.NewDispatcher(nil, nil, nil),
		5,
		nil,
	)
	srv := httptest.NewServer(New("unused", svc, nil).Mux())
	t.Cleanup(srv.Close)
	return srv, mock
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) outboundFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame outboundFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame inboundFrame) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

// waitForHistory polls load_history until the user's history reaches n
// entries. The bot append lands just after the response frame is
// delivered, so an immediate read can be one entry short.
func waitForHistory(t *testing.T, conn *websocket.Conn, userID string, n int) outboundFrame {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		writeFrame(t, conn, inboundFrame{Type: typeLoadHistory, UserID: userID})
		frame := readFrame(t, conn)
		require.Equal(t, kindHistory, frame.Kind)
		if len(frame.Messages) >= n || time.Now().After(deadline) {
			return frame
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func seedUser(t *testing.T, mock *store.MockStore, id string, credTypes ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, mock.CreateUser(ctx, &store.User{ID: id, Name: id}))
	for _, ct := range credTypes {
		require.NoError(t, mock.CreateCredential(ctx, &store.Credential{OwnerID: id, Type: ct, Value: "v"}))
	}
}

func TestConnect_SendsSystemGreeting(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	frame := readFrame(t, conn)
	assert.Equal(t, kindSystem, frame.Kind)
	assert.Equal(t, hub.MsgConnected, frame.Text)
}

func TestSend_FullRoundTrip(t *testing.T) {
	srv, mock := newTestServer(t)
	seedUser(t, mock, "u1", store.CredentialSlackToken)
	conn := dial(t, srv)
	readFrame(t, conn) // greeting

	writeFrame(t, conn, inboundFrame{Type: typeSend, UserID: "u1", Text: "hello"})
	frame := readFrame(t, conn)
	assert.Equal(t, kindResponse, frame.Kind)
	assert.Equal(t, integrations.DefaultResponse, frame.Text)

	frame = waitForHistory(t, conn, "u1", 2)
	require.Len(t, frame.Messages, 2)
	assert.Equal(t, history.SenderUser, frame.Messages[0].Sender)
	assert.Equal(t, "hello", frame.Messages[0].Text)
	assert.Equal(t, history.SenderBot, frame.Messages[1].Sender)
}

func TestSend_EmptyNoteGetsSystemMessage(t *testing.T) {
	srv, mock := newTestServer(t)
	seedUser(t, mock, "u1", store.CredentialSlackToken)
	conn := dial(t, srv)
	readFrame(t, conn)

	writeFrame(t, conn, inboundFrame{Type: typeSend, UserID: "u1", Text: ""})
	frame := readFrame(t, conn)
	assert.Equal(t, kindSystem, frame.Kind)
	assert.Equal(t, hub.MsgEmptyNote, frame.Text)
}

func TestSend_NoCredentialsGetsSystemMessage(t *testing.T) {
	srv, mock := newTestServer(t)
	seedUser(t, mock, "u1") // no credentials
	conn := dial(t, srv)
	readFrame(t, conn)

	writeFrame(t, conn, inboundFrame{Type: typeSend, UserID: "u1", Text: "hello"})
	frame := readFrame(t, conn)
	assert.Equal(t, kindSystem, frame.Kind)
	assert.Equal(t, hub.MsgNoCredentials, frame.Text)
}

func TestCleanHistory_Idempotent(t *testing.T) {
	srv, mock := newTestServer(t)
	seedUser(t, mock, "u1", store.CredentialSlackToken)
	conn := dial(t, srv)
	readFrame(t, conn)

	writeFrame(t, conn, inboundFrame{Type: typeSend, UserID: "u1", Text: "hello"})
	readFrame(t, conn) // response
	// Let the pipeline finish its bot append before clearing.
	waitForHistory(t, conn, "u1", 2)

	writeFrame(t, conn, inboundFrame{Type: typeCleanHistory, UserID: "u1"})
	frame := readFrame(t, conn)
	assert.Equal(t, kindSystem, frame.Kind)
	assert.Equal(t, "history cleared", frame.Text)

	writeFrame(t, conn, inboundFrame{Type: typeLoadHistory, UserID: "u1"})
	frame = readFrame(t, conn)
	assert.Equal(t, kindHistory, frame.Kind)
	assert.Empty(t, frame.Messages)

	// Cleaning again is fine.
	writeFrame(t, conn, inboundFrame{Type: typeCleanHistory, UserID: "u1"})
	frame = readFrame(t, conn)
	assert.Equal(t, kindSystem, frame.Kind)
}

func TestMalformedAndUnknownFrames(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	frame := readFrame(t, conn)
	assert.Equal(t, kindSystem, frame.Kind)
	assert.Contains(t, frame.Text, "malformed frame")

	writeFrame(t, conn, inboundFrame{Type: "shout", UserID: "u1"})
	frame = readFrame(t, conn)
	assert.Equal(t, kindSystem, frame.Kind)
	assert.Contains(t, frame.Text, "unknown frame type")
}

func TestResponsesGoToOriginatingCallerOnly(t *testing.T) {
	srv, mock := newTestServer(t)
	seedUser(t, mock, "u1", store.CredentialSlackToken)

	sender := dial(t, srv)
	bystander := dial(t, srv)
	readFrame(t, sender)
	readFrame(t, bystander)

	writeFrame(t, sender, inboundFrame{Type: typeSend, UserID: "u1", Text: "hello"})
	frame := readFrame(t, sender)
	assert.Equal(t, kindResponse, frame.Kind)

	// The bystander must not receive anything.
	require.NoError(t, bystander.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var stray outboundFrame
	err := bystander.ReadJSON(&stray)
	require.Error(t, err, "bystander unexpectedly received %+v", stray)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}
