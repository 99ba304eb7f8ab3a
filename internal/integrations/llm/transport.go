package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the provider-neutral shape of one classification call.
type Request struct {
	Model           string
	Messages        []Message
	Temperature     float64
	MaxOutputTokens int
}

type Response struct {
	Content string
	Usage   Usage
}

// Transport issues a single blocking request/response call. Implementations do
// not retry; callers decide whether a failed call is attempted again.
type Transport interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req Request) (Response, error)

func (f TransportFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
