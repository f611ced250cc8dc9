package orchestrator

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/cristianradulescu/fmtorch/internal/event"
	"github.com/cristianradulescu/fmtorch/internal/logging"
	"go.lsp.dev/protocol"
)

type OnTypeState int

const (
	Idle OnTypeState = iota
	Armed
	Computing
)

func (s OnTypeState) String() string {
	switch s {
	case Armed:
		return "armed"
	case Computing:
		return "computing"
	default:
		return "idle"
	}
}

// pendingOperation is one in-flight on-type cycle.
type pendingOperation struct {
	canceled  atomic.Bool
	cancel    context.CancelFunc
	character string
	position  protocol.Position

	mu       sync.Mutex
	listener event.Disposable
	released bool
}

// watch stores the content listener. A listener that arrives after the
// operation was released is disposed right away.
func (op *pendingOperation) watch(listener event.Disposable) {
	op.mu.Lock()
	if op.released {
		op.mu.Unlock()
		listener.Dispose()
		return
	}
	op.listener = listener
	op.mu.Unlock()
}

func (op *pendingOperation) release() {
	op.mu.Lock()
	op.released = true
	listener := op.listener
	op.listener = nil
	op.mu.Unlock()

	if listener != nil {
		listener.Dispose()
	}
	op.cancel()
}

func (op *pendingOperation) abort() {
	op.canceled.Store(true)
	op.release()
}

// OnTypeController formats after a trigger character is typed. Edits are
// dropped when the document changes at or above the trigger line, or is
// replaced, before they can be applied.
type OnTypeController struct {
	editor    Editor
	formatter *Formatter

	ctx  context.Context
	stop context.CancelFunc

	mu           sync.Mutex
	triggers     map[string]bool
	handles      []event.Disposable
	modelHandles []event.Disposable
	pending      *pendingOperation
	computing    int
	disposed     bool

	wg sync.WaitGroup
}

func NewOnTypeController(editor Editor, formatter *Formatter) *OnTypeController {
	c := &OnTypeController{editor: editor, formatter: formatter}
	c.ctx, c.stop = context.WithCancel(context.Background())

	c.handles = append(c.handles,
		editor.OnDidChangeConfiguration(c.update),
		editor.OnDidChangeLanguage(func(string) { c.update() }),
		formatter.Selector().Registry().OnDidChange(c.update),
	)
	c.update()

	return c
}

// update re-arms the controller from the current settings and providers.
func (c *OnTypeController) update() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.modelHandles = event.DisposeAll(c.modelHandles)
	c.triggers = nil

	if c.disposed || !c.editor.FormatOnType() {
		return
	}

	supports := c.formatter.Selector().Registry().OnTypeFormatters(c.editor.LanguageID())
	if len(supports) == 0 || len(supports[0].TriggerCharacters()) == 0 {
		return
	}

	c.triggers = make(map[string]bool)
	for _, ch := range supports[0].TriggerCharacters() {
		if r, _ := utf8.DecodeRuneInString(ch); r != utf8.RuneError {
			c.triggers[string(r)] = true
		}
	}
	c.modelHandles = append(c.modelHandles, c.editor.OnDidType(c.onType))
}

func (c *OnTypeController) onType(text string) {
	r, _ := utf8.DecodeLastRuneInString(text)
	if r == utf8.RuneError {
		return
	}
	ch := string(r)

	c.mu.Lock()
	armed := c.triggers[ch]
	c.mu.Unlock()
	if !armed {
		return
	}

	op, ctx := c.begin(c.ctx, ch)
	if op == nil {
		return
	}

	go func() {
		result, err := c.compute(ctx, op)
		if err != nil && !IsNoProvider(err) {
			log.Printf("%s%s %v", logging.LogTagLSP, logging.LogTagOnType, err)
			return
		}
		if result != nil && result.Cancelled {
			log.Printf("%s%s Edits for %q discarded", logging.LogTagLSP, logging.LogTagOnType, ch)
		}
	}()
}

// Trigger runs one on-type cycle for ch at the cursor and waits for it. It
// returns nil when the editor has more than one selection or the controller
// was disposed.
func (c *OnTypeController) Trigger(ctx context.Context, ch string) (*Result, error) {
	op, opCtx := c.begin(ctx, ch)
	if op == nil {
		return nil, nil
	}
	return c.compute(opCtx, op)
}

// begin registers a new cycle, superseding the previous one.
func (c *OnTypeController) begin(ctx context.Context, ch string) (*pendingOperation, context.Context) {
	if len(c.editor.Selections()) != 1 {
		return nil, nil
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil, nil
	}
	previous := c.pending
	c.pending = nil
	c.mu.Unlock()
	if previous != nil {
		previous.abort()
	}

	position := c.editor.Cursor()
	opCtx, cancel := context.WithCancel(ctx)
	op := &pendingOperation{cancel: cancel, character: ch, position: position}
	op.watch(c.editor.OnDidChangeContent(func(e event.ContentChangeEvent) {
		if e.IsFlush {
			op.abort()
			return
		}
		for _, change := range e.Changes {
			if change.Range.End.Line <= position.Line {
				op.abort()
				return
			}
		}
	}))

	c.mu.Lock()
	c.pending = op
	c.computing++
	c.wg.Add(1)
	c.mu.Unlock()

	return op, opCtx
}

func (c *OnTypeController) compute(ctx context.Context, op *pendingOperation) (*Result, error) {
	defer c.settle(op)

	languageID := c.editor.LanguageID()
	formatters := c.formatter.Selector().OnTypeFormatters(languageID, op.character)
	if len(formatters) == 0 {
		return nil, &NoProviderError{Kind: OnType, Language: languageID}
	}
	provider := formatters[0]

	text := c.editor.Text()
	edits, err := provider.ProvideOnTypeFormattingEdits(ctx, c.editor, op.position, op.character, c.editor.FormattingOptions())
	if op.canceled.Load() || ctx.Err() != nil {
		return &Result{Cancelled: true}, nil
	}
	if err != nil {
		return nil, &ProviderError{Provider: provider.Name(), Err: err}
	}

	edits = c.formatter.minimizer.Minimize(text, edits)
	if len(edits) == 0 {
		return &Result{}, nil
	}

	c.editor.PushUndoStop()
	applied, err := ApplyIf(c.editor, edits, func(int32, protocol.Position) bool {
		return !op.canceled.Load()
	})
	c.editor.PushUndoStop()
	if err != nil {
		return nil, &ProviderError{Provider: provider.Name(), Err: err}
	}
	if !applied {
		return &Result{Cancelled: true}, nil
	}

	result := &Result{Edits: edits, Summary: Summarize(edits)}
	c.formatter.notifier.Announce(c.editor.URI(), result.Summary)
	return result, nil
}

func (c *OnTypeController) settle(op *pendingOperation) {
	op.release()

	c.mu.Lock()
	if c.pending == op {
		c.pending = nil
	}
	c.computing--
	c.mu.Unlock()

	c.wg.Done()
}

func (c *OnTypeController) State() OnTypeState {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.computing > 0:
		return Computing
	case len(c.triggers) > 0:
		return Armed
	default:
		return Idle
	}
}

// Wait blocks until every started cycle has settled.
func (c *OnTypeController) Wait() {
	c.wg.Wait()
}

func (c *OnTypeController) Dispose() {
	c.mu.Lock()
	c.disposed = true
	c.handles = event.DisposeAll(c.handles)
	c.modelHandles = event.DisposeAll(c.modelHandles)
	c.triggers = nil
	pending := c.pending
	c.mu.Unlock()

	if pending != nil {
		pending.abort()
	}
	c.stop()
}
