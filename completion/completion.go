// Package completion defines the text-completion collaborator used by llm
// nodes, plus provider implementations.
package completion

import "context"

// Completer produces a completion for a fully-interpolated prompt. The
// language hint lets providers answer in the conversation language.
type Completer interface {
	Complete(ctx context.Context, prompt, language string) (string, error)
}

// StreamCompleter is implemented by providers that can deliver the completion
// incrementally. onChunk is called for each chunk in order; the full text is
// returned at the end either way.
type StreamCompleter interface {
	CompleteStream(ctx context.Context, prompt, language string, onChunk func(chunk string)) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt, language string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt, language string) (string, error) {
	return f(ctx, prompt, language)
}
