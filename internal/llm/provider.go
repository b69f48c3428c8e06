package llm

import "context"

// Request is one completion call. Zero MaxTokens means the provider default.
type Request struct {
	Prompt    string
	System    string
	MaxTokens int
}

// Provider is a text-completion backend. Configured reports whether its
// credential is present; it is checked at call time, not at construction.
type Provider interface {
	Name() string
	Configured() bool
	Invoke(ctx context.Context, req Request) (string, error)
}
