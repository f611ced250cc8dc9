package document

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cristianradulescu/fmtorch/internal/event"
	"github.com/cristianradulescu/fmtorch/internal/utils"
	"go.lsp.dev/protocol"
)

var (
	ErrOverlappingEdits = errors.New("overlapping edits")
	ErrInvalidRange     = errors.New("edit range ends before it starts")
	ErrNothingToUndo    = errors.New("nothing to undo")
)

// Options are the per-document editor settings.
type Options struct {
	TabSize       uint32
	InsertSpaces  bool
	FormatOnType  bool
	FormatOnPaste bool
}

// Document is an in-memory text buffer with a version counter, selections,
// an undo stack and change notifications.
//
// Every mutation holds writeMu for the mutation and for the synchronous
// dispatch of its events, so listeners observe mutations one at a time.
// Listeners must not mutate the document they listen to.
type Document struct {
	writeMu sync.Mutex
	mu      sync.RWMutex

	uri        protocol.DocumentURI
	languageID string
	text       string
	version    int32
	selections []protocol.Range
	options    Options

	undoStack []undoGroup
	groupOpen bool

	focused  bool
	revealed protocol.Position

	contentChanged       event.Emitter[event.ContentChangeEvent]
	typed                event.Emitter[string]
	pasted               event.Emitter[protocol.Range]
	languageChanged      event.Emitter[string]
	configurationChanged event.Emitter[Options]
}

type undoEntry struct {
	inverse    []protocol.TextEdit
	selections []protocol.Range
}

type undoGroup struct {
	entries []undoEntry
}

func New(uri protocol.DocumentURI, languageID string, text string, options Options) *Document {
	return &Document{
		uri:        uri,
		languageID: languageID,
		text:       text,
		version:    1,
		selections: []protocol.Range{{}},
		options:    options,
	}
}

func (d *Document) URI() protocol.DocumentURI {
	return d.uri
}

func (d *Document) LanguageID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.languageID
}

func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

func (d *Document) Version() int32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

func (d *Document) FullRange() protocol.Range {
	return utils.FullRange(d.Text())
}

func (d *Document) LineRange(line uint32) protocol.Range {
	return utils.LineRange(d.Text(), line)
}

func (d *Document) LineCount() uint32 {
	return utils.LineCount(d.Text())
}

// Selections returns a copy of the current selections; the first is primary.
func (d *Document) Selections() []protocol.Range {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]protocol.Range(nil), d.selections...)
}

// Cursor is the active end of the primary selection.
func (d *Document) Cursor() protocol.Position {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selections[0].End
}

// State returns the version and cursor under one lock.
func (d *Document) State() (int32, protocol.Position) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version, d.selections[0].End
}

func (d *Document) SetSelections(selections ...protocol.Range) {
	if len(selections) == 0 {
		return
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	d.selections = append([]protocol.Range(nil), selections...)
	d.mu.Unlock()
}

func (d *Document) SetCursor(pos protocol.Position) {
	d.SetSelections(protocol.Range{Start: pos, End: pos})
}

func (d *Document) Options() Options {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.options
}

func (d *Document) SetOptions(options Options) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	d.options = options
	d.mu.Unlock()

	d.configurationChanged.Fire(options)
}

func (d *Document) FormattingOptions() protocol.FormattingOptions {
	options := d.Options()
	return protocol.FormattingOptions{TabSize: options.TabSize, InsertSpaces: options.InsertSpaces}
}

func (d *Document) FormatOnType() bool {
	return d.Options().FormatOnType
}

func (d *Document) FormatOnPaste() bool {
	return d.Options().FormatOnPaste
}

func (d *Document) SetLanguage(languageID string) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	changed := d.languageID != languageID
	d.languageID = languageID
	d.mu.Unlock()

	if changed {
		d.languageChanged.Fire(languageID)
	}
}

// SetText replaces the whole content. It clears the undo stack.
func (d *Document) SetText(text string) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	old := d.text
	d.text = text
	d.version++
	version := d.version
	d.undoStack = nil
	d.groupOpen = false
	for i, sel := range d.selections {
		d.selections[i] = protocol.Range{
			Start: utils.PositionAt(text, utils.OffsetAt(old, sel.Start)),
			End:   utils.PositionAt(text, utils.OffsetAt(old, sel.End)),
		}
	}
	d.mu.Unlock()

	d.contentChanged.Fire(event.ContentChangeEvent{
		Changes: []event.Change{{Range: utils.FullRange(old), Text: text}},
		IsFlush: true,
		Version: version,
	})
}

// Edit applies a user edit as its own undo step.
func (d *Document) Edit(edits ...protocol.TextEdit) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	d.groupOpen = false
	change, err := d.applyLocked(edits, true)
	d.groupOpen = false
	d.mu.Unlock()
	if err != nil {
		return err
	}

	d.contentChanged.Fire(change)
	return nil
}

// Type replaces every selection with text, leaves collapsed carets after
// it, and then notifies typed-text listeners.
func (d *Document) Type(text string) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	edits := make([]protocol.TextEdit, 0, len(d.selections))
	for _, sel := range d.selections {
		edits = append(edits, protocol.TextEdit{Range: sel, NewText: text})
	}
	d.groupOpen = false
	change, err := d.applyLocked(edits, true)
	d.groupOpen = false
	if err == nil {
		collapseSelections(d.selections)
	}
	d.mu.Unlock()
	if err != nil {
		return err
	}

	d.contentChanged.Fire(change)
	d.typed.Fire(text)
	return nil
}

// Paste replaces the primary selection with text and notifies paste
// listeners with the range the text now occupies.
func (d *Document) Paste(text string) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	target := d.selections[0]
	start := utils.OffsetAt(d.text, target.Start)
	d.groupOpen = false
	change, err := d.applyLocked([]protocol.TextEdit{{Range: target, NewText: text}}, true)
	d.groupOpen = false
	var pastedRange protocol.Range
	if err == nil {
		collapseSelections(d.selections)
		pastedRange = protocol.Range{
			Start: utils.PositionAt(d.text, start),
			End:   utils.PositionAt(d.text, start+len(text)),
		}
	}
	d.mu.Unlock()
	if err != nil {
		return err
	}

	d.contentChanged.Fire(change)
	d.pasted.Fire(pastedRange)
	return nil
}

// ApplyEdits applies edits as one entry of the current undo group if
// precondition, evaluated under the write lock, accepts the current version
// and cursor. It reports whether the edits were applied.
func (d *Document) ApplyEdits(edits []protocol.TextEdit, precondition func(version int32, cursor protocol.Position) bool) (bool, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	if precondition != nil && !precondition(d.version, d.selections[0].End) {
		d.mu.Unlock()
		return false, nil
	}
	change, err := d.applyLocked(edits, true)
	d.mu.Unlock()
	if err != nil {
		return false, err
	}

	d.contentChanged.Fire(change)
	return true, nil
}

// PushUndoStop closes the current undo group.
func (d *Document) PushUndoStop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groupOpen = false
}

// UndoDepth returns the number of undo steps.
func (d *Document) UndoDepth() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.undoStack)
}

// Undo reverts the last undo group.
func (d *Document) Undo() error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	if len(d.undoStack) == 0 {
		d.mu.Unlock()
		return ErrNothingToUndo
	}
	group := d.undoStack[len(d.undoStack)-1]
	d.undoStack = d.undoStack[:len(d.undoStack)-1]
	d.groupOpen = false

	var changes []event.Change
	for i := len(group.entries) - 1; i >= 0; i-- {
		change, err := d.applyLocked(group.entries[i].inverse, false)
		if err != nil {
			d.mu.Unlock()
			return fmt.Errorf("undo failed: %w", err)
		}
		changes = append(changes, change.Changes...)
	}
	d.selections = append([]protocol.Range(nil), group.entries[0].selections...)
	version := d.version
	d.mu.Unlock()

	d.contentChanged.Fire(event.ContentChangeEvent{Changes: changes, Version: version})
	return nil
}

func (d *Document) Focus() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.focused = true
}

func (d *Document) IsFocused() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.focused
}

func (d *Document) RevealPosition(pos protocol.Position) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.revealed = pos
}

func (d *Document) RevealedPosition() protocol.Position {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.revealed
}

func (d *Document) OnDidChangeContent(fn func(event.ContentChangeEvent)) event.Disposable {
	return d.contentChanged.Subscribe(fn)
}

func (d *Document) OnDidType(fn func(string)) event.Disposable {
	return d.typed.Subscribe(fn)
}

func (d *Document) OnDidPaste(fn func(protocol.Range)) event.Disposable {
	return d.pasted.Subscribe(fn)
}

func (d *Document) OnDidChangeLanguage(fn func(string)) event.Disposable {
	return d.languageChanged.Subscribe(fn)
}

func (d *Document) OnDidChangeConfiguration(fn func()) event.Disposable {
	return d.configurationChanged.Subscribe(func(Options) { fn() })
}

type resolvedEdit struct {
	start int
	end   int
	text  string
}

// applyLocked rewrites the text, transforms selections and, when record is
// set, appends the inverse edits to the open undo group. d.mu must be held.
func (d *Document) applyLocked(edits []protocol.TextEdit, record bool) (event.ContentChangeEvent, error) {
	resolved := make([]resolvedEdit, 0, len(edits))
	for _, e := range edits {
		start := utils.OffsetAt(d.text, e.Range.Start)
		end := utils.OffsetAt(d.text, e.Range.End)
		if end < start {
			return event.ContentChangeEvent{}, fmt.Errorf("%w: %v", ErrInvalidRange, e.Range)
		}
		resolved = append(resolved, resolvedEdit{start: start, end: end, text: e.NewText})
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].start < resolved[j].start
	})
	for i := 1; i < len(resolved); i++ {
		if resolved[i].start < resolved[i-1].end {
			return event.ContentChangeEvent{}, ErrOverlappingEdits
		}
	}

	old := d.text
	var b strings.Builder
	changes := make([]event.Change, 0, len(resolved))
	type span struct{ start, end int }
	inserted := make([]span, 0, len(resolved))
	last, delta := 0, 0
	for _, e := range resolved {
		b.WriteString(old[last:e.start])
		b.WriteString(e.text)
		newStart := e.start + delta
		inserted = append(inserted, span{start: newStart, end: newStart + len(e.text)})
		changes = append(changes, event.Change{
			Range: protocol.Range{Start: utils.PositionAt(old, e.start), End: utils.PositionAt(old, e.end)},
			Text:  e.text,
		})
		delta += len(e.text) - (e.end - e.start)
		last = e.end
	}
	b.WriteString(old[last:])
	updated := b.String()

	if record {
		inverse := make([]protocol.TextEdit, 0, len(resolved))
		for i, e := range resolved {
			inverse = append(inverse, protocol.TextEdit{
				Range: protocol.Range{
					Start: utils.PositionAt(updated, inserted[i].start),
					End:   utils.PositionAt(updated, inserted[i].end),
				},
				NewText: old[e.start:e.end],
			})
		}
		entry := undoEntry{inverse: inverse, selections: append([]protocol.Range(nil), d.selections...)}
		if d.groupOpen && len(d.undoStack) > 0 {
			top := &d.undoStack[len(d.undoStack)-1]
			top.entries = append(top.entries, entry)
		} else {
			d.undoStack = append(d.undoStack, undoGroup{entries: []undoEntry{entry}})
			d.groupOpen = true
		}
	}

	for i, sel := range d.selections {
		d.selections[i] = protocol.Range{
			Start: utils.PositionAt(updated, transformOffset(utils.OffsetAt(old, sel.Start), resolved)),
			End:   utils.PositionAt(updated, transformOffset(utils.OffsetAt(old, sel.End), resolved)),
		}
	}

	d.text = updated
	d.version++

	return event.ContentChangeEvent{Changes: changes, Version: d.version}, nil
}

// transformOffset maps an offset through sorted edits: offsets after an edit
// shift by its length delta, offsets inside a replaced range move to the end
// of the replacement.
func transformOffset(offset int, edits []resolvedEdit) int {
	delta := 0
	for _, e := range edits {
		if e.end <= offset {
			delta += len(e.text) - (e.end - e.start)
			continue
		}
		if e.start < offset {
			return e.start + delta + len(e.text)
		}
		break
	}
	return offset + delta
}

func collapseSelections(selections []protocol.Range) {
	for i, sel := range selections {
		selections[i] = protocol.Range{Start: sel.End, End: sel.End}
	}
}
