// Package respond turns a query, profile and grounding set into the final
// user-facing answer. Generation goes through a pluggable model provider
// with a grounding validator on its output; any provider or validation
// failure falls back to a deterministic template rendered straight from the
// grounding set.
package respond

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/saarthi-dev/saarthi/internal/monitoring"
	"github.com/saarthi-dev/saarthi/internal/provider"
	"github.com/saarthi-dev/saarthi/internal/scheme"
	"github.com/saarthi-dev/saarthi/internal/storage"
)

const (
	// DefaultTimeout bounds a single provider call.
	DefaultTimeout = 10 * time.Second
	// DefaultAttempts is the number of provider tries before the template
	// takes over.
	DefaultAttempts = 3
	// DefaultBackoff is the pause between provider retries.
	DefaultBackoff = time.Second
)

// NamesFunc supplies the full catalog of stored scheme names for the
// grounding validator.
type NamesFunc func(ctx context.Context) ([]string, error)

// Response is the generated answer plus its citations.
type Response struct {
	Text           string
	CitedSchemeIDs []string
	// FromTemplate is true when the deterministic fallback produced the
	// text instead of the model provider.
	FromTemplate bool
}

// Config carries the tunable parts of a Generator. Zero values select
// defaults.
type Config struct {
	Timeout  time.Duration
	Attempts int
	Backoff  time.Duration
}

// Generator produces grounded responses.
type Generator struct {
	provider provider.Provider
	names    NamesFunc
	timeout  time.Duration
	attempts int
	backoff  time.Duration
	sink     monitoring.Sink
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a Generator. names may be nil, which disables the
// out-of-catalog scan (grounding set citations are still enforced). A nil
// sink discards events.
func New(p provider.Provider, names NamesFunc, cfg Config, sink monitoring.Sink) *Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if sink == nil {
		sink = monitoring.Nop{}
	}
	return &Generator{
		provider: p,
		names:    names,
		timeout:  cfg.Timeout,
		attempts: cfg.Attempts,
		backoff:  cfg.Backoff,
		sink:     sink,
		sleep:    sleepCtx,
	}
}

// Generate produces the answer for a query over the grounding set. The
// returned response always cites every grounding scheme with its name,
// benefits, eligibility text and source URL.
// Provider failure, empty output, or a grounding violation never propagate
// as errors; the deterministic template answers instead.
func (g *Generator) Generate(ctx context.Context, query string, p scheme.Profile, grounding []scheme.Scheme, history []storage.Turn) Response {
	if len(grounding) == 0 {
		return Response{
			Text:         "No matching scheme was found for your question. Please try rephrasing or ask about a different topic.",
			FromTemplate: true,
		}
	}

	text, ok := g.tryProvider(ctx, query, p, grounding, history)
	if !ok {
		return g.template(grounding)
	}

	if err := g.checkGrounding(ctx, text, grounding); err != nil {
		slog.Warn("respond: grounding validation failed, using template",
			"provider", g.provider.Name(), "error", err)
		return g.template(grounding)
	}

	return Response{
		Text:           text + "\n\n" + citationBlock(grounding),
		CitedSchemeIDs: schemeIDs(grounding),
	}
}

// tryProvider runs the bounded retry loop against the model provider.
func (g *Generator) tryProvider(ctx context.Context, query string, p scheme.Profile, grounding []scheme.Scheme, history []storage.Turn) (string, bool) {
	prompt := BuildPrompt(query, p, grounding, history)

	for attempt := 0; attempt < g.attempts; attempt++ {
		if attempt > 0 {
			if err := g.sleep(ctx, g.backoff); err != nil {
				return "", false
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		start := time.Now()
		text, err := g.provider.Generate(callCtx, prompt)
		cancel()

		ok := err == nil && strings.TrimSpace(text) != ""
		g.sink.ModelEvent(g.provider.Name(), ok, time.Since(start))
		if ok {
			return strings.TrimSpace(text), true
		}

		slog.Warn("respond: provider call failed",
			"provider", g.provider.Name(), "attempt", attempt+1, "error", err)
		if ctx.Err() != nil {
			return "", false
		}
	}
	return "", false
}

func (g *Generator) checkGrounding(ctx context.Context, text string, grounding []scheme.Scheme) error {
	if g.names == nil {
		return nil
	}
	known, err := g.names(ctx)
	if err != nil {
		// The catalog scan is best-effort; without it the response is
		// still constrained by the prompt.
		slog.Warn("respond: loading scheme catalog failed", "error", err)
		return nil
	}
	return ValidateGrounding(text, grounding, known)
}

// template renders the deterministic fallback: the grounding set listed
// verbatim, no free text.
func (g *Generator) template(grounding []scheme.Scheme) Response {
	var b strings.Builder
	b.WriteString("Here are the schemes that match your question:\n")
	for i, sc := range grounding {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, sc.Name)
		fmt.Fprintf(&b, "   Benefits: %s\n", sc.Benefits)
		if sc.EligibilityText != "" {
			fmt.Fprintf(&b, "   Eligibility: %s\n", sc.EligibilityText)
		}
		fmt.Fprintf(&b, "   Source: %s\n", sc.SourceURL)
	}
	return Response{
		Text:           b.String(),
		CitedSchemeIDs: schemeIDs(grounding),
		FromTemplate:   true,
	}
}

// citationBlock lists each cited scheme with its benefits, eligibility text
// and source URL. Appended to every model-generated answer so the cited
// facts are never left to the model.
func citationBlock(grounding []scheme.Scheme) string {
	var b strings.Builder
	b.WriteString("Sources:\n")
	for _, sc := range grounding {
		fmt.Fprintf(&b, "- %s: %s\n", sc.Name, sc.SourceURL)
		if sc.Benefits != "" {
			fmt.Fprintf(&b, "  Benefits: %s\n", sc.Benefits)
		}
		if sc.EligibilityText != "" {
			fmt.Fprintf(&b, "  Eligibility: %s\n", sc.EligibilityText)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func schemeIDs(grounding []scheme.Scheme) []string {
	ids := make([]string, len(grounding))
	for i, sc := range grounding {
		ids[i] = sc.ID
	}
	return ids
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
