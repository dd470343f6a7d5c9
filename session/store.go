package session

import (
	"context"
	"errors"
	"sort"
)

// ErrNotFound is returned by stores when no session exists for the given id.
var ErrNotFound = errors.New("session not found")

// Store persists session records. The engine assumes a single writer per
// session; stores only need per-call atomicity, not cross-call transactions.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	ListByConversation(ctx context.Context, conversationID string) ([]Summary, error)
}

func sortSummaries(out []Summary) {
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
}
