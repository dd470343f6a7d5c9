package completion

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI is a Completer backed by the OpenAI chat completions API.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates an OpenAI completer. An empty model defaults to
// gpt-4o-mini; an empty apiKey falls back to the OPENAI_API_KEY environment
// variable handled by the client itself.
func NewOpenAI(apiKey, model string) *OpenAI {
	var clientOpts []option.RequestOption
	if apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAI{
		client: openai.NewClient(clientOpts...),
		model:  model,
	}
}

func (o *OpenAI) params(prompt, language string) openai.ChatCompletionNewParams {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if language != "" {
		messages = append(messages, openai.SystemMessage(
			fmt.Sprintf("Answer in the language with code %q.", language)))
	}
	messages = append(messages, openai.UserMessage(prompt))
	return openai.ChatCompletionNewParams{
		Model:    o.model,
		Messages: messages,
	}
}

func (o *OpenAI) Complete(ctx context.Context, prompt, language string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, o.params(prompt, language))
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteStream streams the completion, invoking onChunk per delta and
// returning the accumulated text.
func (o *OpenAI) CompleteStream(ctx context.Context, prompt, language string, onChunk func(chunk string)) (string, error) {
	stream := o.client.Chat.Completions.NewStreaming(ctx, o.params(prompt, language))
	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" && onChunk != nil {
				onChunk(delta)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("completion stream failed: %w", err)
	}
	if len(acc.Choices) == 0 {
		return "", fmt.Errorf("completion stream returned no choices")
	}
	return acc.Choices[0].Message.Content, nil
}
