// Package store provides persistent storage for jotbot using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with
// specialized interfaces:
//
//   - UserStore: user registration and lookup
//   - CredentialStore: third-party secrets owned by users
//   - LedgerStore: the billing transaction ledger
//
// SQLiteStore implements all interfaces in a single struct, allowing easy
// composition while maintaining clear interface boundaries. Conversation
// history is deliberately NOT stored here; it lives in the in-memory
// history table and is bounded per user.
//
// # Data Models
//
//   - User: registered hub user
//   - Credential: one secret per (owner, type); types are slack_token,
//     trello_key, trello_token
//   - Transaction: append-only billing entry, one per accepted message
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicate: uniqueness constraint violated
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests; it implements the full Store
// interface in memory and can inject per-method failures. Use
// NewSQLiteStore(":memory:") for integration tests with real SQLite.
package store
