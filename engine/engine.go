// Package engine implements the scenario interpreter: edge resolution, node
// handlers, and the per-turn runner loop driving a session through a
// conversational flow graph.
package engine

import (
	"log/slog"

	"chatflow/completion"
)

const defaultMaxSteps = 100

// Engine executes scenario nodes. It holds the collaborators handlers need
// (HTTP transport, text completion) and no per-session state; a single Engine
// serves all sessions concurrently.
type Engine struct {
	l         *slog.Logger
	transport Transport
	completer completion.Completer
	expr      *ExprEvaluator

	// maxSteps bounds automatic node advances per turn. The graph format has
	// no cycle detection; a cycle of non-interactive nodes would otherwise
	// spin forever.
	maxSteps int
}

type Option func(*Engine)

// WithMaxSteps overrides the automatic-step budget per turn.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

func New(l *slog.Logger, transport Transport, completer completion.Completer, opts ...Option) *Engine {
	e := &Engine{
		l:         l,
		transport: transport,
		completer: completer,
		expr:      NewExprEvaluator(),
		maxSteps:  defaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
