package orchestrator

import (
	"github.com/cristianradulescu/fmtorch/internal/event"
	"github.com/cristianradulescu/fmtorch/internal/formatting"
	"go.lsp.dev/protocol"
)

// Editor is the live document the engine formats.
type Editor interface {
	formatting.TextDocument

	FullRange() protocol.Range
	LineRange(line uint32) protocol.Range
	Selections() []protocol.Range
	Cursor() protocol.Position
	// State returns the version and primary cursor read together.
	State() (int32, protocol.Position)

	FormattingOptions() protocol.FormattingOptions
	FormatOnType() bool
	FormatOnPaste() bool

	PushUndoStop()
	// ApplyEdits applies edits as one undo entry when precondition holds.
	// The precondition runs under the lock that serializes mutations.
	ApplyEdits(edits []protocol.TextEdit, precondition func(version int32, cursor protocol.Position) bool) (bool, error)

	OnDidChangeContent(fn func(event.ContentChangeEvent)) event.Disposable
	OnDidType(fn func(text string)) event.Disposable
	OnDidPaste(fn func(rng protocol.Range)) event.Disposable
	OnDidChangeLanguage(fn func(languageID string)) event.Disposable
	OnDidChangeConfiguration(fn func()) event.Disposable

	Focus()
	RevealPosition(pos protocol.Position)
}

// Minimizer reduces provider edits against the text they were computed for.
type Minimizer interface {
	Minimize(text string, edits []protocol.TextEdit) []protocol.TextEdit
}

// Notifier announces the outcome of a formatting run to the user.
type Notifier interface {
	Announce(docURI protocol.DocumentURI, message string)
}
