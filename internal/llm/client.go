// Package llm provides chat clients for the models Spinach talks to.
package llm

import "context"

// Client is the interface that all chat providers implement.
type Client interface {
	// Chat sends the conversation and returns the complete reply.
	Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error)

	// ChatStream sends the conversation and calls callback for every
	// token as it arrives. A nil callback behaves like Chat.
	ChatStream(ctx context.Context, model string, messages []Message, callback StreamCallback) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
