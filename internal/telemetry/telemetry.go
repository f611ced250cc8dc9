package telemetry

import (
	"sync"

	"go.uber.org/zap"
)

const EventManyFormatters = "manyformatters"

// ManyFormatters is reported when more than one formatter could serve a
// request and only the first was used.
type ManyFormatters struct {
	RequestKind    string
	Language       string
	CandidateCount int
}

type Reporter interface {
	ReportManyFormatters(e ManyFormatters)
}

type nopReporter struct{}

func (nopReporter) ReportManyFormatters(ManyFormatters) {}

// Nop discards every event.
func Nop() Reporter {
	return nopReporter{}
}

// ZapReporter writes events as structured zap records.
type ZapReporter struct {
	logger *zap.Logger
}

func NewZapReporter(logger *zap.Logger) *ZapReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapReporter{logger: logger}
}

func (r *ZapReporter) ReportManyFormatters(e ManyFormatters) {
	r.logger.Info(EventManyFormatters,
		zap.String("requestKind", e.RequestKind),
		zap.String("language", e.Language),
		zap.Int("candidateCount", e.CandidateCount),
	)
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []ManyFormatters
}

func (r *Recorder) ReportManyFormatters(e ManyFormatters) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []ManyFormatters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ManyFormatters(nil), r.events...)
}
