package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/google/uuid"

	"chatflow/completion"
	"chatflow/scenario"
	"chatflow/session"
)

// handlerResult is what executing one node produces. interactive means the
// node must wait for external input: the loop stops there. next is the node
// to continue with (nil ends the scenario). Slot updates happen in place on
// the working session copy.
type handlerResult struct {
	next        *scenario.Node
	interactive bool
	events      []Event
	messages    []session.Message
}

// executeNode dispatches on the node type. The switch is exhaustive over the
// known types; data loaded from persistence can still carry unknown ones,
// which end the traversal like a scenario end.
func (e *Engine) executeNode(ctx context.Context, sc *scenario.Scenario, node *scenario.Node, sess *session.Session) (handlerResult, error) {
	switch node.Type {
	case scenario.NodeMessage, scenario.NodeSlotFilling, scenario.NodeForm, scenario.NodeIframe:
		return handlerResult{next: node, interactive: true}, nil

	case scenario.NodeBranch:
		switch node.Data.EvaluationType {
		case scenario.EvaluationCondition, scenario.EvaluationExpression:
			// Auto branch: the resolver applies the conditions.
			return handlerResult{next: e.NextNode(sc, node.ID, "", sess.Slots)}, nil
		default:
			return handlerResult{next: node, interactive: true}, nil
		}

	case scenario.NodeToast:
		event := Event{
			Type:      EventToast,
			Message:   Interpolate(node.Data.Message, sess.Slots),
			ToastType: node.Data.ToastType,
		}
		return handlerResult{
			next:   e.NextNode(sc, node.ID, "", sess.Slots),
			events: []Event{event},
		}, nil

	case scenario.NodeLink:
		event := Event{
			Type: EventOpenLink,
			URL:  Interpolate(node.Data.URL, sess.Slots),
		}
		return handlerResult{
			next:   e.NextNode(sc, node.ID, "", sess.Slots),
			events: []Event{event},
		}, nil

	case scenario.NodeAPI:
		return e.executeAPI(ctx, sc, node, sess)

	case scenario.NodeLLM:
		return e.executeLLM(ctx, sc, node, sess)

	case scenario.NodeSetSlot:
		for _, a := range node.Data.Assignments {
			// In order: later assignments see earlier results.
			sess.Slots[a.Key] = CoerceValue(Interpolate(a.Value, sess.Slots))
		}
		return handlerResult{next: e.NextNode(sc, node.ID, "", sess.Slots)}, nil

	case scenario.NodeDelay:
		if node.Data.DurationMS <= 0 {
			e.l.WarnContext(ctx, "delay node without a valid duration, skipping wait",
				"scenario", sc.ID, "node", node.ID)
		} else {
			select {
			case <-ctx.Done():
				return handlerResult{}, ctx.Err()
			case <-time.After(time.Duration(node.Data.DurationMS) * time.Millisecond):
			}
		}
		return handlerResult{next: e.NextNode(sc, node.ID, "", sess.Slots)}, nil

	default:
		e.l.WarnContext(ctx, "no handler for node type, ending scenario",
			"scenario", sc.ID, "node", node.ID, "type", string(node.Type))
		return handlerResult{}, nil
	}
}

// Reserved slots written by the api and llm handlers for downstream branches.
const (
	SlotAPIFailed = "apiFailed"
	SlotAPIError  = "apiError"
	SlotLLMFailed = "llmFailed"
	SlotLLMError  = "llmError"
)

// executeAPI interpolates and issues the configured request(s), maps response
// fields into slots, and routes to onSuccess or onError. API failures never
// abort the turn: the failure reason lands in slots and the error edge (or a
// dead end) decides what happens next.
func (e *Engine) executeAPI(ctx context.Context, sc *scenario.Scenario, node *scenario.Node, sess *session.Session) (handlerResult, error) {
	fail := func(err error) handlerResult {
		e.l.ErrorContext(ctx, "api node failed", "scenario", sc.ID, "node", node.ID, "error", err)
		sess.Slots[SlotAPIFailed] = true
		sess.Slots[SlotAPIError] = err.Error()
		return handlerResult{next: e.NextNode(sc, node.ID, scenario.HandleError, sess.Slots)}
	}

	cfg := node.Data.API
	if cfg == nil {
		return fail(errors.New("api node has no request configuration")), nil
	}

	requests := cfg.Requests
	if len(requests) == 0 {
		requests = []scenario.APIRequest{{
			Method:          cfg.Method,
			URL:             cfg.URL,
			Headers:         cfg.Headers,
			Body:            cfg.Body,
			ResponseMapping: cfg.ResponseMapping,
		}}
	}

	responses, err := e.doRequests(ctx, requests, sess.Slots)
	if err != nil {
		return fail(err), nil
	}

	for i, resp := range responses {
		e.applyResponseMapping(resp.Body, requests[i].ResponseMapping, sess.Slots)
	}
	sess.Slots[SlotAPIFailed] = false

	next := e.NextNode(sc, node.ID, scenario.HandleSuccess, sess.Slots)
	if next == nil {
		next = e.NextNode(sc, node.ID, "", sess.Slots)
	}
	return handlerResult{next: next}, nil
}

// doRequests runs the requests in parallel, fail-fast: the first failure
// cancels the rest. Responses come back in request order.
func (e *Engine) doRequests(ctx context.Context, requests []scenario.APIRequest, slots map[string]any) ([]*Response, error) {
	if len(requests) == 1 {
		resp, err := e.doRequest(ctx, requests[0], slots)
		if err != nil {
			return nil, err
		}
		return []*Response{resp}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		idx  int
		resp *Response
		err  error
	}
	results := make(chan outcome, len(requests))
	for i, req := range requests {
		go func(idx int, req scenario.APIRequest) {
			resp, err := e.doRequest(ctx, req, slots)
			results <- outcome{idx: idx, resp: resp, err: err}
		}(i, req)
	}

	responses := make([]*Response, len(requests))
	for range requests {
		res := <-results
		if res.err != nil {
			cancel()
			return nil, res.err
		}
		responses[res.idx] = res.resp
	}
	return responses, nil
}

func (e *Engine) doRequest(ctx context.Context, req scenario.APIRequest, slots map[string]any) (*Response, error) {
	if e.transport == nil {
		return nil, errors.New("no HTTP transport configured")
	}

	target := Interpolate(req.URL, slots)
	headers := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		headers[k] = Interpolate(v, slots)
	}
	body := InterpolateValue(req.Body, slots)

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = "GET"
	}

	resp, err := e.transport.Do(ctx, method, target, headers, body)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", target, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("request to %s returned status %d", target, resp.StatusCode)
	}
	return resp, nil
}

// applyResponseMapping copies dotted-path fields of a JSON response body into
// slots. Unparseable bodies and missing paths are skipped with a warning; a
// mapping miss is not an API failure.
func (e *Engine) applyResponseMapping(body []byte, mappings []scenario.ResponseMapping, slots map[string]any) {
	if len(mappings) == 0 {
		return
	}
	container, err := gabs.ParseJSON(body)
	if err != nil {
		e.l.Warn("api response is not JSON, skipping response mapping", "error", err)
		return
	}
	for _, m := range mappings {
		value := container.Path(m.Path)
		if value == nil {
			e.l.Warn("api response path not found", "path", m.Path)
			continue
		}
		slots[m.Slot] = value.Data()
	}
}

// executeLLM interpolates the prompt, invokes the completer (streaming when
// the node asks for it and the provider supports it), stores the output slot,
// and advances via the default edge. Keyword condition edges are applied by
// the resolver on the way out of this node.
func (e *Engine) executeLLM(ctx context.Context, sc *scenario.Scenario, node *scenario.Node, sess *session.Session) (handlerResult, error) {
	prompt := Interpolate(node.Data.Prompt, sess.Slots)

	output, err := e.complete(ctx, node, prompt, sess.Language)
	if err != nil {
		e.l.ErrorContext(ctx, "llm node failed", "scenario", sc.ID, "node", node.ID, "error", err)
		sess.Slots[SlotLLMFailed] = true
		sess.Slots[SlotLLMError] = err.Error()
		next := e.NextNode(sc, node.ID, scenario.HandleError, sess.Slots)
		if next == nil {
			// No error-handling edge: fatal for the session.
			return handlerResult{}, fmt.Errorf("llm node %s: %w", node.ID, err)
		}
		return handlerResult{next: next}, nil
	}

	if node.Data.OutputVar != "" {
		sess.Slots[node.Data.OutputVar] = output
	}
	sess.Slots[SlotLLMFailed] = false

	message := session.Message{
		ID:        uuid.NewString(),
		Role:      session.RoleBot,
		Content:   output,
		NodeID:    node.ID,
		NodeType:  string(node.Type),
		CreatedAt: time.Now(),
	}
	return handlerResult{
		next:     e.NextNode(sc, node.ID, "", sess.Slots),
		messages: []session.Message{message},
	}, nil
}

func (e *Engine) complete(ctx context.Context, node *scenario.Node, prompt, language string) (string, error) {
	if e.completer == nil {
		return "", errors.New("no completion provider configured")
	}
	if node.Data.Stream {
		if streamer, ok := e.completer.(completion.StreamCompleter); ok {
			return streamer.CompleteStream(ctx, prompt, language, nil)
		}
	}
	return e.completer.Complete(ctx, prompt, language)
}

// CoerceValue turns an interpolated setSlot template into a typed value:
// JSON object/array first, then boolean literal, then number, else the
// original string.
func CoerceValue(s string) any {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	if strings.EqualFold(trimmed, "true") {
		return true
	}
	if strings.EqualFold(trimmed, "false") {
		return false
	}
	if i, err := strconv.Atoi(trimmed); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	return s
}

// appendSessionParam adds the scenario_session_id query parameter to an
// iframe URL, falling back to naive concatenation if the URL does not parse.
func appendSessionParam(raw, sessionID string) string {
	u, err := url.Parse(raw)
	if err != nil {
		sep := "?"
		if strings.Contains(raw, "?") {
			sep = "&"
		}
		return raw + sep + "scenario_session_id=" + url.QueryEscape(sessionID)
	}
	q := u.Query()
	q.Set("scenario_session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String()
}
