package orchestrator

import (
	"context"
	"errors"
	"log"

	"github.com/cristianradulescu/fmtorch/internal/formatting"
	"github.com/cristianradulescu/fmtorch/internal/logging"
	"github.com/cristianradulescu/fmtorch/internal/utils"
	"go.lsp.dev/protocol"
)

type logNotifier struct{}

func (logNotifier) Announce(docURI protocol.DocumentURI, message string) {
	log.Printf("%s%s %s: %s", logging.LogTagLSP, logging.LogTagFormat, docURI, message)
}

// Formatter runs formatting requests against an editor: it selects the
// providers, invokes them one after another and applies what they return.
type Formatter struct {
	selector  *formatting.Selector
	minimizer Minimizer
	notifier  Notifier
}

func NewFormatter(selector *formatting.Selector, minimizer Minimizer, notifier Notifier) *Formatter {
	if notifier == nil {
		notifier = logNotifier{}
	}
	return &Formatter{selector: selector, minimizer: minimizer, notifier: notifier}
}

func (f *Formatter) Selector() *formatting.Selector {
	return f.selector
}

// step is one provider invocation of a run.
type step struct {
	provider formatting.Provider
	provide  func(ctx context.Context, editor Editor, target protocol.Range) ([]protocol.TextEdit, error)
}

type accumulator struct {
	edits     []protocol.TextEdit
	cancelled bool
}

// FormatDocument formats the whole document. Without a document formatter
// the range formatters are run over the full range.
func (f *Formatter) FormatDocument(ctx context.Context, editor Editor, options protocol.FormattingOptions) (*Result, error) {
	languageID := editor.LanguageID()
	request := Request{Kind: FullDocument, Options: options}

	documentFormatters := f.selector.DocumentFormatters(languageID)
	if len(documentFormatters) == 0 {
		rangeFormatters := f.selector.RangeFormatters(languageID)
		if len(rangeFormatters) == 0 {
			return nil, &NoProviderError{Kind: FullDocument, Language: languageID}
		}
		return f.run(ctx, editor, request, rangeSteps(rangeFormatters, options))
	}

	steps := make([]step, 0, len(documentFormatters))
	for _, p := range documentFormatters {
		provider := p
		steps = append(steps, step{
			provider: provider,
			provide: func(ctx context.Context, editor Editor, _ protocol.Range) ([]protocol.TextEdit, error) {
				return provider.ProvideDocumentFormattingEdits(ctx, editor, options)
			},
		})
	}
	return f.run(ctx, editor, request, steps)
}

// FormatRange formats a selection, an explicit range or a pasted range.
func (f *Formatter) FormatRange(ctx context.Context, editor Editor, request Request) (*Result, error) {
	languageID := editor.LanguageID()

	rangeFormatters := f.selector.RangeFormatters(languageID)
	if len(rangeFormatters) == 0 {
		return nil, &NoProviderError{Kind: request.Kind, Language: languageID}
	}
	return f.run(ctx, editor, request, rangeSteps(rangeFormatters, request.Options))
}

// Format formats the document when the selection is empty and the
// selection otherwise.
func (f *Formatter) Format(ctx context.Context, editor Editor, options protocol.FormattingOptions) (*Result, error) {
	selections := editor.Selections()
	if len(selections) == 0 || utils.IsEmptyRange(selections[0]) {
		return f.FormatDocument(ctx, editor, options)
	}
	return f.FormatRange(ctx, editor, Request{Kind: Selection, Options: options})
}

func rangeSteps(providers []formatting.RangeFormatter, options protocol.FormattingOptions) []step {
	steps := make([]step, 0, len(providers))
	for _, p := range providers {
		provider := p
		steps = append(steps, step{
			provider: provider,
			provide: func(ctx context.Context, editor Editor, target protocol.Range) ([]protocol.TextEdit, error) {
				return provider.ProvideDocumentRangeFormattingEdits(ctx, editor, target, options)
			},
		})
	}
	return steps
}

func (f *Formatter) run(ctx context.Context, editor Editor, request Request, steps []step) (*Result, error) {
	editor.PushUndoStop()

	var acc accumulator
	var runErr error
	for _, s := range steps {
		if ctx.Err() != nil {
			acc.cancelled = true
			break
		}

		acc, runErr = f.runStep(ctx, editor, request, s, acc)
		if runErr != nil || acc.cancelled {
			break
		}
	}

	result := &Result{Edits: acc.edits, Cancelled: acc.cancelled, Summary: Summarize(acc.edits)}
	if result.Summary != "" {
		f.notifier.Announce(editor.URI(), result.Summary)
	}

	editor.PushUndoStop()
	editor.Focus()
	editor.RevealPosition(editor.Cursor())

	return result, runErr
}

func (f *Formatter) runStep(ctx context.Context, editor Editor, request Request, s step, acc accumulator) (accumulator, error) {
	snapshot := TakeSnapshot(editor)
	text := editor.Text()
	target := targetRange(editor, request)

	edits, err := s.provide(ctx, editor, target)
	if ctx.Err() != nil {
		log.Printf("%s%s %s cancelled", logging.LogTagLSP, logging.LogTagFormat, s.provider.Name())
		acc.cancelled = true
		return acc, nil
	}
	if err != nil {
		return acc, &ProviderError{Provider: s.provider.Name(), Err: err}
	}

	edits = f.minimizer.Minimize(text, edits)
	if len(edits) == 0 {
		return acc, nil
	}

	applied, err := Apply(editor, edits, snapshot)
	if err != nil {
		return acc, &ProviderError{Provider: s.provider.Name(), Err: err}
	}
	if !applied {
		log.Printf("%s%s Document changed while %s was running, edits discarded", logging.LogTagLSP, logging.LogTagFormat, s.provider.Name())
		return acc, nil
	}

	acc.edits = append(acc.edits, edits...)
	return acc, nil
}

// targetRange resolves the range a range formatter is asked to format.
func targetRange(editor Editor, request Request) protocol.Range {
	switch request.Kind {
	case FullDocument:
		return editor.FullRange()
	case Selection:
		selections := editor.Selections()
		if len(selections) == 0 {
			return editor.FullRange()
		}
		selection := selections[0]
		if utils.IsEmptyRange(selection) {
			return protocol.Range{
				Start: protocol.Position{Line: selection.Start.Line},
				End:   editor.LineRange(selection.End.Line).End,
			}
		}
		return selection
	default:
		return request.Range
	}
}

// IsNoProvider reports whether err means no provider could serve a request.
func IsNoProvider(err error) bool {
	var noProvider *NoProviderError
	return errors.As(err, &noProvider)
}
