// Package embedding turns text into vectors for the document repository.
// Providers are provisioned per agent from the agent's integration, so an
// instance is cheap and holds no connection state.
package embedding

import "context"

// Provider generates vector embeddings from text. Vector dimension is
// whatever the provisioned model produces; callers size collections from the
// vectors themselves.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
