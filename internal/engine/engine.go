package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gridalert/internal/domain"
	"gridalert/internal/store"
)

var (
	// ErrUnknownKind indicates a fault kind outside the configured taxonomy.
	ErrUnknownKind = errors.New("unknown fault kind")
	// ErrUnknownSource indicates a source outside the configured registry.
	ErrUnknownSource = errors.New("unknown source")
)

// Taxonomy holds the accepted fault kinds and, optionally, the accepted
// source registry. An empty source registry accepts any non-empty source id;
// retired sources and kinds simply stop matching and their old alerts stay
// inert.
// Params: built-in kinds plus configured extensions.
// Returns: validation surface for the dedup engine.
type Taxonomy struct {
	kinds   map[domain.Kind]struct{}
	sources map[string]struct{}
}

// NewTaxonomy builds the taxonomy from built-in kinds and config extensions.
// Params: extra kind names and optional restricted source list.
// Returns: initialized taxonomy.
func NewTaxonomy(extraKinds []string, sources []string) *Taxonomy {
	t := &Taxonomy{kinds: make(map[domain.Kind]struct{})}
	for _, kind := range domain.BuiltinKinds() {
		t.kinds[kind] = struct{}{}
	}
	for _, kind := range extraKinds {
		canonical := CanonicalKind(domain.Kind(kind))
		if canonical != "" {
			t.kinds[canonical] = struct{}{}
		}
	}
	if len(sources) > 0 {
		t.sources = make(map[string]struct{}, len(sources))
		for _, source := range sources {
			canonical := CanonicalSource(source)
			if canonical != "" {
				t.sources[canonical] = struct{}{}
			}
		}
	}
	return t
}

// KnownKind reports whether the kind belongs to the taxonomy.
// Params: canonical kind token.
// Returns: true for an accepted kind.
func (t *Taxonomy) KnownKind(kind domain.Kind) bool {
	_, ok := t.kinds[kind]
	return ok
}

// KnownSource reports whether the source is accepted.
// Params: canonical source id.
// Returns: true when the registry is open or contains the source.
func (t *Taxonomy) KnownSource(source string) bool {
	if t.sources == nil {
		return source != ""
	}
	_, ok := t.sources[source]
	return ok
}

// RaiseResult is the outcome of one fault observation.
// Params: resulting alert row and creation flag.
// Returns: created=true only when a new alert row was inserted; a repeated
// observation of an already-active fault yields the existing row.
type RaiseResult struct {
	Alert   domain.Alert
	Created bool
}

// Engine decides whether a fault observation is a new alert or a continuation
// of an already-active one. The atomicity of that decision lives in the store;
// the engine contributes validation and key canonicalization.
// Params: store backend and fault taxonomy.
// Returns: dedup entrypoint for ingest interfaces.
type Engine struct {
	store    store.Store
	taxonomy *Taxonomy
}

// New creates the dedup engine.
// Params: store backend and taxonomy.
// Returns: initialized engine.
func New(st store.Store, taxonomy *Taxonomy) *Engine {
	return &Engine{store: st, taxonomy: taxonomy}
}

// Raise processes one fault observation.
// Params: context, validated observation, and persistence time.
// Returns: raise result, or taxonomy/store error. A store failure fails the
// call: silently dropping a fault report is worse than a visible error.
func (e *Engine) Raise(ctx context.Context, obs domain.Observation, now time.Time) (RaiseResult, error) {
	source := CanonicalSource(obs.SourceID)
	kind := CanonicalKind(obs.Kind)
	if !e.taxonomy.KnownSource(source) {
		return RaiseResult{}, fmt.Errorf("%w: %q", ErrUnknownSource, obs.SourceID)
	}
	if !e.taxonomy.KnownKind(kind) {
		return RaiseResult{}, fmt.Errorf("%w: %q", ErrUnknownKind, obs.Kind)
	}

	alert, created, err := e.store.CreateOrRefresh(ctx, source, kind, obs.TruncatedMessage(), now)
	if err != nil {
		return RaiseResult{}, err
	}
	return RaiseResult{Alert: alert, Created: created}, nil
}
