// Package provider abstracts the language-model backend behind a narrow
// interface so the concrete provider can be swapped by configuration without
// touching any other component.
package provider

import "context"

// Provider is a pluggable model backend. Generate is prompt-in, text-out;
// Embed produces a raw (not yet normalized) embedding vector. Both must be
// invoked with bounded timeouts by their callers.
type Provider interface {
	// Generate sends a single prompt and returns the model's text response.
	Generate(ctx context.Context, prompt string) (string, error)

	// Embed returns the embedding vector for the given text. Same input
	// must yield the same output within a model version.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Name identifies the backend for logging and monitoring.
	Name() string
}
