package domain

import "context"

// CompletionRequest is what the core sends to the hosted completion API.
// The provider's wire protocol is the transport layer's business.
type CompletionRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// CompletionResult is a synthesized answer.
type CompletionResult struct {
	Answer      string
	TotalTokens int
}

// Completer is the black-box completion API contract. Implementations must
// honor ctx cancellation and deadline; failures map to ErrCompletionTimeout
// or ErrCompletionUnavailable.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}
