package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatflow/scenario"
	"chatflow/session"
)

const defaultTurnTimeout = 60 * time.Second

// Service owns the session lifecycle: launch, user turns, cancellation. It
// serializes turns per session, applies a per-turn deadline around the
// engine's suspension points, and persists outcomes through the store.
type Service struct {
	l           *slog.Logger
	engine      *Engine
	scenarios   *scenario.Registry
	store       session.Store
	turnTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type ServiceOption func(*Service)

// WithTurnTimeout overrides the per-turn deadline.
func WithTurnTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.turnTimeout = d
		}
	}
}

func NewService(l *slog.Logger, engine *Engine, scenarios *scenario.Registry, store session.Store, opts ...ServiceOption) *Service {
	s := &Service{
		l:           l,
		engine:      engine,
		scenarios:   scenarios,
		store:       store,
		turnTimeout: defaultTurnTimeout,
		locks:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LaunchRequest starts a new session of a scenario within a conversation.
type LaunchRequest struct {
	ScenarioID     string
	ConversationID string
	Language       string
	InitialSlots   map[string]any
}

// Launch creates a session and runs the loop from the synthetic start
// position (no current node).
func (s *Service) Launch(ctx context.Context, req LaunchRequest) (*TurnResult, *session.Session, error) {
	sc := s.scenarios.Get(req.ScenarioID)
	if sc == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrScenarioNotFound, req.ScenarioID)
	}

	now := time.Now()
	sess := &session.Session{
		ID:             uuid.NewString(),
		ScenarioID:     req.ScenarioID,
		ConversationID: req.ConversationID,
		Language:       req.Language,
		Slots:          session.CloneSlots(req.InitialSlots),
		Status:         session.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("error creating session: %w", err)
	}

	s.l.InfoContext(ctx, "scenario session launched",
		"scenario", req.ScenarioID, "session", sess.ID, "conversation", req.ConversationID)
	return s.runTurn(ctx, sc, sess, nil)
}

// Turn feeds user input into an active session.
func (s *Service) Turn(ctx context.Context, sessionID string, input TurnInput) (*TurnResult, *session.Session, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess.Status.Terminal() {
		return nil, nil, fmt.Errorf("%w: %s is %s", ErrSessionTerminated, sessionID, sess.Status)
	}

	sc := s.scenarios.Get(sess.ScenarioID)
	if sc == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrScenarioNotFound, sess.ScenarioID)
	}
	return s.runTurn(ctx, sc, sess, &input)
}

// Cancel terminates a session immediately, independent of its current node.
// Canceling an already-terminal session is a no-op.
func (s *Service) Cancel(ctx context.Context, sessionID string) (*session.Session, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return sess, nil
	}
	sess.Status = session.StatusCanceled
	sess.AwaitingInput = false
	sess.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("error updating session: %w", err)
	}
	s.l.InfoContext(ctx, "scenario session canceled", "session", sessionID)
	return sess, nil
}

// Get returns a session record.
func (s *Service) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	return s.store.Get(ctx, sessionID)
}

// ListByConversation returns the session summaries of a conversation.
func (s *Service) ListByConversation(ctx context.Context, conversationID string) ([]session.Summary, error) {
	return s.store.ListByConversation(ctx, conversationID)
}

// runTurn drives the engine over a working copy of the session and persists
// the outcome. Failures (engine errors, panics, timeouts) fail the session on
// its pre-turn state so slots are never left half-updated.
func (s *Service) runTurn(ctx context.Context, sc *scenario.Scenario, sess *session.Session, input *TurnInput) (res *TurnResult, out *session.Session, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.turnTimeout)
	defer cancel()

	working := sess.Clone()

	defer func() {
		if r := recover(); r != nil {
			s.l.ErrorContext(ctx, "panic during scenario turn",
				"scenario", sc.ID, "session", sess.ID, "panic", r)
			res, out = nil, nil
			err = fmt.Errorf("panic during scenario turn: %v", r)
			s.failSession(ctx, sess, err)
		}
	}()

	// Long turns (llm/api suspension) are observable as "generating".
	if hasBlockingNodes(sc) && sess.CurrentNodeID != "" {
		working.Status = session.StatusGenerating
		working.UpdatedAt = time.Now()
		if uerr := s.store.Update(ctx, working); uerr != nil {
			s.l.WarnContext(ctx, "failed to mark session generating", "session", sess.ID, "error", uerr)
		}
		working.Status = session.StatusActive
	}

	result, runErr := s.engine.Run(ctx, sc, working, input)
	if runErr != nil {
		s.failSession(ctx, sess, runErr)
		return nil, nil, runErr
	}

	if result.Type == ResultValidationFail {
		// Nothing advanced; restore the persisted state (the generating flag
		// may have been written above).
		result.Status = sess.Status
		if uerr := s.store.Update(ctx, sess); uerr != nil {
			s.l.WarnContext(ctx, "failed to restore session after validation fail",
				"session", sess.ID, "error", uerr)
		}
		return result, sess, nil
	}

	if result.Type == ResultEnd {
		working.Status = session.StatusCompleted
		if truthy(working.Slots[SlotAPIFailed]) {
			working.Status = session.StatusFailed
		}
	}
	working.UpdatedAt = time.Now()
	if uerr := s.store.Update(ctx, working); uerr != nil {
		return nil, nil, fmt.Errorf("error updating session: %w", uerr)
	}
	result.Status = working.Status
	return result, working, nil
}

// failSession marks the pre-turn session failed and appends an error notice
// to its transcript.
func (s *Service) failSession(ctx context.Context, sess *session.Session, cause error) {
	sess.Status = session.StatusFailed
	sess.AwaitingInput = false
	sess.Messages = append(sess.Messages, session.Message{
		ID:        uuid.NewString(),
		Role:      session.RoleSystem,
		Content:   "The scenario could not continue: " + cause.Error(),
		CreatedAt: time.Now(),
	})
	sess.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, sess); err != nil {
		s.l.ErrorContext(ctx, "failed to persist failed session", "session", sess.ID, "error", err)
	}
}

func (s *Service) sessionLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

func hasBlockingNodes(sc *scenario.Scenario) bool {
	for _, n := range sc.Nodes {
		if n.Type == scenario.NodeLLM || n.Type == scenario.NodeAPI {
			return true
		}
	}
	return false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return false
	}
}
