package engine

import (
	"context"
	"io"
	"log/slog"
	"time"

	"chatflow/completion"
	"chatflow/scenario"
	"chatflow/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngine(transport Transport, completer completion.Completer, opts ...Option) *Engine {
	return New(testLogger(), transport, completer, opts...)
}

func testSession(scenarioID string) *session.Session {
	return &session.Session{
		ID:         "sess-1",
		ScenarioID: scenarioID,
		Language:   "en",
		Slots:      map[string]any{},
		Status:     session.StatusActive,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

// fakeTransport routes api node calls to an in-test function.
type fakeTransport struct {
	fn func(ctx context.Context, method, url string, headers map[string]string, body any) (*Response, error)
}

func (f *fakeTransport) Do(ctx context.Context, method, url string, headers map[string]string, body any) (*Response, error) {
	return f.fn(ctx, method, url, headers, body)
}

func staticCompleter(output string) completion.Completer {
	return completion.CompleterFunc(func(context.Context, string, string) (string, error) {
		return output, nil
	})
}

func msgNode(id, content string) scenario.Node {
	return scenario.Node{ID: id, Type: scenario.NodeMessage, Data: scenario.NodeData{Content: content}}
}

func edge(source, target, handle string) scenario.Edge {
	return scenario.Edge{Source: source, Target: target, SourceHandle: handle}
}
