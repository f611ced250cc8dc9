package orchestrator_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cristianradulescu/fmtorch/internal/document"
	"github.com/cristianradulescu/fmtorch/internal/formatter"
	"github.com/cristianradulescu/fmtorch/internal/formatting"
	"github.com/cristianradulescu/fmtorch/internal/orchestrator"
	"github.com/cristianradulescu/fmtorch/internal/telemetry"
	"go.lsp.dev/protocol"
)

func pos(line, character uint32) protocol.Position {
	return protocol.Position{Line: line, Character: character}
}

func rng(sl, sc, el, ec uint32) protocol.Range {
	return protocol.Range{Start: pos(sl, sc), End: pos(el, ec)}
}

func insert(line, character uint32, text string) protocol.TextEdit {
	return protocol.TextEdit{Range: rng(line, character, line, character), NewText: text}
}

type fakeBase struct {
	id        string
	languages []string
	priority  int
	calls     atomic.Int32
}

func (p *fakeBase) Id() string          { return p.id }
func (p *fakeBase) Name() string        { return "Fake " + p.id }
func (p *fakeBase) Priority() int       { return p.priority }
func (p *fakeBase) Languages() []string { return p.languages }
func (p *fakeBase) Calls() int          { return int(p.calls.Load()) }

type documentProvider struct {
	fakeBase
	respond func(ctx context.Context, doc formatting.TextDocument) ([]protocol.TextEdit, error)
}

func (p *documentProvider) ProvideDocumentFormattingEdits(ctx context.Context, doc formatting.TextDocument, _ protocol.FormattingOptions) ([]protocol.TextEdit, error) {
	p.calls.Add(1)
	return p.respond(ctx, doc)
}

type rangeProvider struct {
	fakeBase
	mu      sync.Mutex
	targets []protocol.Range
	respond func(ctx context.Context, doc formatting.TextDocument, rng protocol.Range) ([]protocol.TextEdit, error)
}

func (p *rangeProvider) ProvideDocumentRangeFormattingEdits(ctx context.Context, doc formatting.TextDocument, rng protocol.Range, _ protocol.FormattingOptions) ([]protocol.TextEdit, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.targets = append(p.targets, rng)
	p.mu.Unlock()
	return p.respond(ctx, doc, rng)
}

func (p *rangeProvider) Targets() []protocol.Range {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Range(nil), p.targets...)
}

type onTypeProvider struct {
	fakeBase
	triggers []string
	respond  func(ctx context.Context, doc formatting.TextDocument, position protocol.Position, ch string) ([]protocol.TextEdit, error)
}

func (p *onTypeProvider) TriggerCharacters() []string { return p.triggers }

func (p *onTypeProvider) ProvideOnTypeFormattingEdits(ctx context.Context, doc formatting.TextDocument, position protocol.Position, ch string, _ protocol.FormattingOptions) ([]protocol.TextEdit, error) {
	p.calls.Add(1)
	return p.respond(ctx, doc, position, ch)
}

func static(edits ...protocol.TextEdit) func(context.Context, formatting.TextDocument) ([]protocol.TextEdit, error) {
	return func(context.Context, formatting.TextDocument) ([]protocol.TextEdit, error) {
		return edits, nil
	}
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Announce(_ protocol.DocumentURI, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type fixture struct {
	registry  *formatting.Registry
	recorder  *telemetry.Recorder
	notifier  *recordingNotifier
	formatter *orchestrator.Formatter
}

func newFixture(providers ...formatting.Provider) *fixture {
	registry := formatting.NewRegistry()
	for _, p := range providers {
		registry.Register(p)
	}
	recorder := &telemetry.Recorder{}
	notifier := &recordingNotifier{}

	return &fixture{
		registry:  registry,
		recorder:  recorder,
		notifier:  notifier,
		formatter: orchestrator.NewFormatter(formatting.NewSelector(registry, recorder), formatter.NewMinimizer(), notifier),
	}
}

func newDoc(text string, options document.Options) *document.Document {
	if options.TabSize == 0 {
		options.TabSize = 4
	}
	return document.New("file:///tmp/project/main.go", "go", text, options)
}
