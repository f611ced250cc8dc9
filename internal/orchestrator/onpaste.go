package orchestrator

import (
	"context"
	"log"
	"sync"

	"github.com/cristianradulescu/fmtorch/internal/event"
	"github.com/cristianradulescu/fmtorch/internal/logging"
	"go.lsp.dev/protocol"
)

// OnPasteController formats pasted text with the range formatters.
type OnPasteController struct {
	editor    Editor
	formatter *Formatter

	ctx  context.Context
	stop context.CancelFunc

	mu           sync.Mutex
	armed        bool
	handles      []event.Disposable
	modelHandles []event.Disposable
	cancel       context.CancelFunc
	disposed     bool

	wg sync.WaitGroup
}

func NewOnPasteController(editor Editor, formatter *Formatter) *OnPasteController {
	c := &OnPasteController{editor: editor, formatter: formatter}
	c.ctx, c.stop = context.WithCancel(context.Background())

	c.handles = append(c.handles,
		editor.OnDidChangeConfiguration(c.update),
		editor.OnDidChangeLanguage(func(string) { c.update() }),
		formatter.Selector().Registry().OnDidChange(c.update),
	)
	c.update()

	return c
}

func (c *OnPasteController) update() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.modelHandles = event.DisposeAll(c.modelHandles)
	c.armed = false

	if c.disposed || !c.editor.FormatOnPaste() {
		return
	}
	if !c.formatter.Selector().Registry().HasRangeFormatter(c.editor.LanguageID()) {
		return
	}

	c.modelHandles = append(c.modelHandles, c.editor.OnDidPaste(c.onPaste))
	c.armed = true
}

func (c *OnPasteController) onPaste(rng protocol.Range) {
	ctx, ok := c.begin(c.ctx)
	if !ok {
		return
	}

	go func() {
		defer c.wg.Done()
		if _, err := c.format(ctx, rng); err != nil {
			log.Printf("%s%s %v", logging.LogTagLSP, logging.LogTagOnPaste, err)
		}
	}()
}

// Trigger formats rng as pasted text and waits for the result. It returns
// nil when the editor has more than one selection.
func (c *OnPasteController) Trigger(ctx context.Context, rng protocol.Range) (*Result, error) {
	ctx, ok := c.begin(ctx)
	if !ok {
		return nil, nil
	}
	defer c.wg.Done()

	return c.format(ctx, rng)
}

// begin cancels the previous paste run and starts a new one.
func (c *OnPasteController) begin(parent context.Context) (context.Context, bool) {
	if len(c.editor.Selections()) != 1 {
		return nil, false
	}

	ctx, cancel := context.WithCancel(parent)

	c.mu.Lock()
	previous := c.cancel
	c.cancel = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	if previous != nil {
		previous()
	}
	return ctx, true
}

func (c *OnPasteController) format(ctx context.Context, rng protocol.Range) (*Result, error) {
	return c.formatter.FormatRange(ctx, c.editor, Request{
		Kind:    OnPaste,
		Range:   rng,
		Options: c.editor.FormattingOptions(),
	})
}

func (c *OnPasteController) IsArmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// Wait blocks until every started run has settled.
func (c *OnPasteController) Wait() {
	c.wg.Wait()
}

func (c *OnPasteController) Dispose() {
	c.mu.Lock()
	c.disposed = true
	c.armed = false
	c.handles = event.DisposeAll(c.handles)
	c.modelHandles = event.DisposeAll(c.modelHandles)
	c.mu.Unlock()

	c.stop()
}
