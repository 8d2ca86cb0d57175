// Package provider contains hand-rolled HTTP clients for the language model
// APIs the platform integrates with. Clients are constructed per request by
// the provisioner from an agent's configured integration; they hold no state
// beyond the HTTP client and credentials.
package provider

import "context"

// ChatModel is the surface agents need from a language model client.
type ChatModel interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}
