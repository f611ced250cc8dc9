package formatting

import (
	"github.com/cristianradulescu/fmtorch/internal/telemetry"
)

const (
	RequestKindDocument = "document"
	RequestKindRange    = "range"
)

// Selector picks the providers a request runs with. Only the best candidate
// is used; when several compete for a document or range request the
// competition is reported.
type Selector struct {
	registry *Registry
	reporter telemetry.Reporter
}

func NewSelector(registry *Registry, reporter telemetry.Reporter) *Selector {
	if reporter == nil {
		reporter = telemetry.Nop()
	}
	return &Selector{registry: registry, reporter: reporter}
}

func (s *Selector) Registry() *Registry {
	return s.registry
}

func (s *Selector) DocumentFormatters(languageID string) []DocumentFormatter {
	candidates := s.registry.DocumentFormatters(languageID)
	if len(candidates) > 1 {
		s.report(RequestKindDocument, languageID, len(candidates))
		candidates = candidates[:1]
	}
	return candidates
}

func (s *Selector) RangeFormatters(languageID string) []RangeFormatter {
	candidates := s.registry.RangeFormatters(languageID)
	if len(candidates) > 1 {
		s.report(RequestKindRange, languageID, len(candidates))
		candidates = candidates[:1]
	}
	return candidates
}

// OnTypeFormatters returns the best on-type provider whose trigger set
// contains ch.
func (s *Selector) OnTypeFormatters(languageID string, ch string) []OnTypeFormatter {
	for _, candidate := range s.registry.OnTypeFormatters(languageID) {
		for _, trigger := range candidate.TriggerCharacters() {
			if trigger == ch {
				return []OnTypeFormatter{candidate}
			}
		}
	}
	return nil
}

func (s *Selector) report(kind string, languageID string, count int) {
	s.reporter.ReportManyFormatters(telemetry.ManyFormatters{
		RequestKind:    kind,
		Language:       languageID,
		CandidateCount: count,
	})
}
