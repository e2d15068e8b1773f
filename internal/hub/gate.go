// ABOUTME: Credential gate deciding whether a user may send notes
// ABOUTME: Unknown users and users without stored credentials are turned away

package hub

import (
	"context"
	"errors"
	"fmt"

	"github.com/jotlab/jotbot/internal/store"
)

// CredentialGate checks, once per inbound message and before any side
// effect, that the sender exists and has at least one stored credential.
type CredentialGate struct {
	store Store
}

// NewCredentialGate creates a gate over the given store.
func NewCredentialGate(st Store) *CredentialGate {
	return &CredentialGate{store: st}
}

// Check looks up the user and their credentials. On ok it returns the
// credentials so the pipeline doesn't fetch them twice. On not-ok the
// reason is a human-readable message for the caller. err is reserved for
// unexpected store failures.
func (g *CredentialGate) Check(ctx context.Context, userID string) (creds []*store.Credential, ok bool, reason string, err error) {
	_, err = g.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Sprintf("no registered user with id %q", userID), nil
	}
	if err != nil {
		return nil, false, "", fmt.Errorf("looking up user: %w", err)
	}

	creds, err = g.store.ListCredentialsByOwner(ctx, userID)
	if err != nil {
		return nil, false, "", fmt.Errorf("loading credentials: %w", err)
	}
	if len(creds) == 0 {
		return nil, false, MsgNoCredentials, nil
	}

	return creds, true, "", nil
}
