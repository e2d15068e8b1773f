// ABOUTME: Store interfaces and data types for jotbot persistence
// ABOUTME: Defines User, Credential, Transaction and the storage interfaces

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a uniqueness constraint is violated.
var ErrDuplicate = errors.New("already exists")

// Credential types consumed by the integration dispatcher.
const (
	CredentialSlackToken  = "slack_token"
	CredentialTrelloKey   = "trello_key"
	CredentialTrelloToken = "trello_token"
)

// TransactionMessageFee is the ledger entry type recorded once per
// accepted message.
const TransactionMessageFee = "message_fee"

// User is a registered hub user.
type User struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Credential is a stored third-party secret owned by one user.
// The hub only consumes "does a credential of type T exist" and its value.
type Credential struct {
	ID        string
	OwnerID   string
	Type      string
	Value     string
	CreatedAt time.Time
}

// Transaction is one billing ledger entry.
type Transaction struct {
	ID        string
	OwnerID   string
	Amount    int64 // smallest currency unit
	Type      string
	CreatedAt time.Time
}

// UserStore defines user lookup and registration.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
}

// CredentialStore defines credential management.
type CredentialStore interface {
	CreateCredential(ctx context.Context, cred *Credential) error
	ListCredentialsByOwner(ctx context.Context, ownerID string) ([]*Credential, error)
	DeleteCredential(ctx context.Context, id string) error
}

// LedgerStore defines the billing transaction ledger.
type LedgerStore interface {
	RecordTransaction(ctx context.Context, tx *Transaction) error
	ListTransactionsByOwner(ctx context.Context, ownerID string) ([]*Transaction, error)
}

// Store composes everything the hub needs from persistence.
type Store interface {
	UserStore
	CredentialStore
	LedgerStore

	// Close releases any resources held by the store
	Close() error
}
