// Package pipeline sequences a query through the retrieval, fetch, respond
// and persist stages. The orchestrator owns no retry logic of its own; each
// stage degrades internally and the caller always receives a response with a
// session ID for every recoverable condition.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/saarthi-dev/saarthi/internal/fetch"
	"github.com/saarthi-dev/saarthi/internal/respond"
	"github.com/saarthi-dev/saarthi/internal/retrieval"
	"github.com/saarthi-dev/saarthi/internal/scheme"
	"github.com/saarthi-dev/saarthi/internal/storage"
)

// ErrInvalidQuery rejects blank queries before pipeline entry.
var ErrInvalidQuery = errors.New("query must not be empty")

// ErrProfileNotFound rejects queries for unknown users before pipeline
// entry.
var ErrProfileNotFound = errors.New("profile not found")

const (
	// DefaultMinResults is the result count below which the fetch stage
	// runs.
	DefaultMinResults = 3
	// DefaultMinConfidence is the top-score threshold below which the
	// fetch stage runs.
	DefaultMinConfidence = 0.45
)

// staleDisclaimer is appended when external refresh failed or served stale
// content, so the user knows the answer may be incomplete.
const staleDisclaimer = "Note: some scheme details could not be refreshed and may be out of date."

// Retriever is the retrieval stage.
type Retriever interface {
	Retrieve(ctx context.Context, query string, profile scheme.Profile, k int) ([]retrieval.Result, error)
}

// Fetcher is the optional refresh stage. Implemented by fetch.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (fetch.Extract, bool, error)
}

// Responder is the generation stage. Implemented by respond.Generator.
type Responder interface {
	Generate(ctx context.Context, query string, p scheme.Profile, grounding []scheme.Scheme, history []storage.Turn) respond.Response
}

// ProfileStore resolves user profiles. Implemented by storage.Store.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (scheme.Profile, error)
}

// Sessions is the session bookkeeping the orchestrator needs. Implemented
// by session.Manager.
type Sessions interface {
	GetOrCreate(ctx context.Context, userID, sessionID string) (storage.SessionRecord, error)
	Append(ctx context.Context, sessionID string, t storage.Turn) (int, error)
	History(ctx context.Context, sessionID string) ([]storage.Turn, error)
}

// Result is the outcome of one handled query.
type Result struct {
	ResponseText string
	CitedSchemes []scheme.Scheme
	SessionID    string
	// Degraded is true when the answer was produced from stale or
	// unrefreshed data, or from the template fallback.
	Degraded bool
}

// Config carries the orchestrator thresholds. Zero values select defaults.
type Config struct {
	TopK          int
	MinResults    int
	MinConfidence float32
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	profiles  ProfileStore
	retriever Retriever
	fetcher   Fetcher
	responder Responder
	sessions  Sessions

	topK          int
	minResults    int
	minConfidence float32
}

// New creates an Orchestrator. fetcher may be nil, which disables the
// refresh stage.
func New(profiles ProfileStore, r Retriever, f Fetcher, g Responder, s Sessions, cfg Config) *Orchestrator {
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTopK
	}
	if cfg.MinResults <= 0 {
		cfg.MinResults = DefaultMinResults
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	return &Orchestrator{
		profiles:      profiles,
		retriever:     r,
		fetcher:       f,
		responder:     g,
		sessions:      s,
		topK:          cfg.TopK,
		minResults:    cfg.MinResults,
		minConfidence: cfg.MinConfidence,
	}
}

// HandleQuery runs the full pipeline for one query: retrieve, conditionally
// refresh from external sources, generate a grounded response, and persist
// the turn. Recoverable failures degrade the response instead of failing
// the request; errors are returned only for invalid input, unknown
// profiles, and embedding failure.
func (o *Orchestrator) HandleQuery(ctx context.Context, userID, query, sessionID string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, ErrInvalidQuery
	}
	if userID == "" {
		return Result{}, fmt.Errorf("%w: empty user ID", ErrProfileNotFound)
	}

	profile, err := o.profiles.GetProfile(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{}, fmt.Errorf("%w: %s", ErrProfileNotFound, userID)
	}
	if err != nil {
		return Result{}, fmt.Errorf("loading profile: %w", err)
	}

	sess, err := o.sessions.GetOrCreate(ctx, userID, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("resolving session: %w", err)
	}

	history, err := o.sessions.History(ctx, sess.ID)
	if err != nil {
		slog.Warn("pipeline: loading history failed", "session", sess.ID, "error", err)
		history = nil
	}

	// RETRIEVE. Embedding failure is fatal for the request: without a
	// query vector there is nothing to ground a response on.
	results, err := o.retriever.Retrieve(ctx, query, profile, o.topK)
	if err != nil {
		return Result{}, fmt.Errorf("retrieving schemes: %w", err)
	}

	// FETCH, only when the result set looks insufficient.
	grounding := make([]scheme.Scheme, len(results))
	for i, r := range results {
		grounding[i] = r.Scheme
	}
	degraded := false
	if o.fetcher != nil && len(results) > 0 && o.insufficient(results) {
		degraded = o.refresh(ctx, grounding)
	}

	// RESPOND. The generator never fails; it falls back to the template.
	resp := o.responder.Generate(ctx, query, profile, grounding, history)
	text := resp.Text
	if degraded {
		text += "\n\n" + staleDisclaimer
	}

	// PERSIST. A lost turn degrades history, not the response.
	turn := storage.Turn{Query: query, Response: text, CitedIDs: resp.CitedSchemeIDs}
	if _, err := o.sessions.Append(ctx, sess.ID, turn); err != nil {
		slog.Warn("pipeline: persisting turn failed", "session", sess.ID, "error", err)
	}

	return Result{
		ResponseText: text,
		CitedSchemes: cited(grounding, resp.CitedSchemeIDs),
		SessionID:    sess.ID,
		Degraded:     degraded || resp.FromTemplate,
	}, nil
}

// insufficient reports whether the retrieval results warrant an external
// refresh: too few results, or a top score below the confidence threshold.
func (o *Orchestrator) insufficient(results []retrieval.Result) bool {
	return len(results) < o.minResults || results[0].Score < o.minConfidence
}

// refresh re-fetches each grounding scheme from its source URL, folding any
// extracted fields back into the in-memory copy used for generation. It
// reports whether the grounding may be stale or incomplete afterwards.
func (o *Orchestrator) refresh(ctx context.Context, grounding []scheme.Scheme) bool {
	degraded := false
	for i := range grounding {
		if grounding[i].SourceURL == "" {
			continue
		}
		ex, stale, err := o.fetcher.Fetch(ctx, grounding[i].SourceURL)
		switch {
		case err == nil:
		case errors.Is(err, fetch.ErrExtractionFailed):
			// The partial extract below still folds in, but the stored
			// fields it left untouched may be outdated.
			slog.Warn("pipeline: refresh returned partial extract",
				"scheme", grounding[i].ID, "error", err)
			degraded = true
		default:
			slog.Warn("pipeline: refresh failed, keeping stored data",
				"scheme", grounding[i].ID, "error", err)
			degraded = true
			continue
		}
		if stale {
			degraded = true
		}
		if ex.Benefits != "" {
			grounding[i].Benefits = ex.Benefits
		}
		if ex.Eligibility != "" {
			grounding[i].EligibilityText = ex.Eligibility
		}
	}
	return degraded
}

// cited filters the grounding set down to the schemes the response cites,
// preserving grounding order.
func cited(grounding []scheme.Scheme, ids []string) []scheme.Scheme {
	if len(ids) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []scheme.Scheme
	for _, sc := range grounding {
		if _, ok := want[sc.ID]; ok {
			out = append(out, sc)
		}
	}
	return out
}
