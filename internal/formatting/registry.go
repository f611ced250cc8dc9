package formatting

import (
	"sort"
	"sync"

	"github.com/cristianradulescu/fmtorch/internal/event"
)

const (
	scoreExact    = 10
	scoreWildcard = 5
)

type registration struct {
	provider Provider
	seq      int
}

// Registry holds the registered providers. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries []registration
	nextSeq int
	changed event.Emitter[struct{}]
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a provider and returns the handle that removes it.
func (r *Registry) Register(provider Provider) event.Disposable {
	r.mu.Lock()
	r.nextSeq++
	seq := r.nextSeq
	r.entries = append(r.entries, registration{provider: provider, seq: seq})
	r.mu.Unlock()

	r.changed.Fire(struct{}{})

	return event.DisposeFunc(func() {
		r.mu.Lock()
		removed := false
		for i, e := range r.entries {
			if e.seq == seq {
				r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
				removed = true
				break
			}
		}
		r.mu.Unlock()

		if removed {
			r.changed.Fire(struct{}{})
		}
	})
}

// OnDidChange notifies fn after every registration or removal.
func (r *Registry) OnDidChange(fn func()) event.Disposable {
	return r.changed.Subscribe(func(struct{}) { fn() })
}

// Providers returns every provider in registration order.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.entries))
	for _, e := range r.entries {
		providers = append(providers, e.provider)
	}
	return providers
}

// Ordered returns the providers applicable to languageID, best first: exact
// language matches before wildcard ones, then higher priority, then earlier
// registration.
func (r *Registry) Ordered(languageID string) []Provider {
	r.mu.RLock()
	type scored struct {
		registration
		score int
	}
	candidates := make([]scored, 0, len(r.entries))
	for _, e := range r.entries {
		if score := languageScore(e.provider.Languages(), languageID); score > 0 {
			candidates = append(candidates, scored{registration: e, score: score})
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.provider.Priority() != b.provider.Priority() {
			return a.provider.Priority() > b.provider.Priority()
		}
		return a.seq < b.seq
	})

	providers := make([]Provider, 0, len(candidates))
	for _, c := range candidates {
		providers = append(providers, c.provider)
	}
	return providers
}

func (r *Registry) DocumentFormatters(languageID string) []DocumentFormatter {
	var out []DocumentFormatter
	for _, p := range r.Ordered(languageID) {
		if f, ok := p.(DocumentFormatter); ok {
			out = append(out, f)
		}
	}
	return out
}

func (r *Registry) RangeFormatters(languageID string) []RangeFormatter {
	var out []RangeFormatter
	for _, p := range r.Ordered(languageID) {
		if f, ok := p.(RangeFormatter); ok {
			out = append(out, f)
		}
	}
	return out
}

func (r *Registry) OnTypeFormatters(languageID string) []OnTypeFormatter {
	var out []OnTypeFormatter
	for _, p := range r.Ordered(languageID) {
		if f, ok := p.(OnTypeFormatter); ok {
			out = append(out, f)
		}
	}
	return out
}

func (r *Registry) HasDocumentFormatter(languageID string) bool {
	return len(r.DocumentFormatters(languageID)) > 0
}

func (r *Registry) HasRangeFormatter(languageID string) bool {
	return len(r.RangeFormatters(languageID)) > 0
}

func (r *Registry) HasOnTypeFormatter(languageID string) bool {
	return len(r.OnTypeFormatters(languageID)) > 0
}

func languageScore(languages []string, languageID string) int {
	if len(languages) == 0 {
		return scoreWildcard
	}

	score := 0
	for _, l := range languages {
		switch l {
		case languageID:
			return scoreExact
		case "*":
			score = scoreWildcard
		}
	}
	return score
}
