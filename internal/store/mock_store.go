// ABOUTME: In-memory mock implementation of the Store interface
// ABOUTME: Used by hub and server tests; optionally injects per-method failures

package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store for tests. Safe for concurrent use.
// Set the Err fields to force failures from specific methods.
type MockStore struct {
	mu           sync.Mutex
	users        map[string]*User
	credentials  map[string]*Credential
	transactions []*Transaction

	GetUserErr           error
	RecordTransactionErr error
	ListCredentialsErr   error
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		users:       make(map[string]*User),
		credentials: make(map[string]*Credential),
	}
}

func (m *MockStore) CreateUser(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if _, ok := m.users[user.ID]; ok {
		return ErrDuplicate
	}
	m.users[user.ID] = user
	return nil
}

func (m *MockStore) GetUser(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetUserErr != nil {
		return nil, m.GetUserErr
	}
	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return user, nil
}

func (m *MockStore) ListUsers(_ context.Context) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	return users, nil
}

func (m *MockStore) CreateCredential(_ context.Context, cred *Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}
	for _, existing := range m.credentials {
		if existing.OwnerID == cred.OwnerID && existing.Type == cred.Type {
			return ErrDuplicate
		}
	}
	m.credentials[cred.ID] = cred
	return nil
}

func (m *MockStore) ListCredentialsByOwner(_ context.Context, ownerID string) ([]*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListCredentialsErr != nil {
		return nil, m.ListCredentialsErr
	}
	var creds []*Credential
	for _, c := range m.credentials {
		if c.OwnerID == ownerID {
			creds = append(creds, c)
		}
	}
	return creds, nil
}

func (m *MockStore) DeleteCredential(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.credentials[id]; !ok {
		return ErrNotFound
	}
	delete(m.credentials, id)
	return nil
}

func (m *MockStore) RecordTransaction(_ context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecordTransactionErr != nil {
		return m.RecordTransactionErr
	}
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	m.transactions = append(m.transactions, tx)
	return nil
}

func (m *MockStore) ListTransactionsByOwner(_ context.Context, ownerID string) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var txs []*Transaction
	for _, tx := range m.transactions {
		if tx.OwnerID == ownerID {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

func (m *MockStore) Close() error { return nil }

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)
