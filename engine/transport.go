package engine

import "context"

// Response is the transport-level result of an api node call.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the response is a 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport issues HTTP requests for api nodes. Implementations must return
// an error only for transport-level failures; non-2xx responses come back as
// a Response so the handler can route them to the onError edge.
type Transport interface {
	Do(ctx context.Context, method, url string, headers map[string]string, body any) (*Response, error)
}
