// Package hub is the message routing core of jotbot.
//
// # Overview
//
// The hub sits between the WebSocket transport and the external
// collaborators (store, classifier, integration clients). Each inbound
// note runs one pipeline:
//
//	Validating -> BillingRecording -> Classifying -> Dispatching ->
//	Responding -> HistoryUpdating -> Done
//
// with Aborted reachable from Validating (empty text, unknown user, no
// credentials) and from Dispatching (integration error). Every terminal
// state delivers exactly one message through the caller's Outbox.
//
// # Service
//
//	svc := hub.New(store, historyTable, classifier, dispatcher, fee, logger)
//
// Key operations:
//
//   - Send(ctx, userID, text, outbox): run the pipeline for one note
//   - History(userID): snapshot of the bounded conversation history
//   - Clean(userID): drop the user's history (idempotent)
//
// # Error handling
//
// Gate failures abort before any side effect and send only a system
// message. Integration errors are caught at the dispatch boundary and
// sent as the response; billing and the user-message append have already
// committed and are not rolled back (fail-forward). Anything unexpected
// becomes a generic system message carrying the error text. No error
// terminates the connection or the process.
//
// # Concurrency
//
// Pipelines run concurrently across users and for the same user. The
// only shared mutable state is the history table, which enforces per-key
// atomic append+trim. For a single message the user append always
// precedes the bot append; no ordering is promised between two
// concurrent messages from the same user.
package hub
