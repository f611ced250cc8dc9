package orchestrator

import "go.lsp.dev/protocol"

type RequestKind int

const (
	FullDocument RequestKind = iota
	Selection
	ExplicitRange
	OnType
	OnPaste
)

func (k RequestKind) String() string {
	switch k {
	case FullDocument:
		return "document"
	case Selection:
		return "selection"
	case ExplicitRange:
		return "range"
	case OnType:
		return "onType"
	case OnPaste:
		return "onPaste"
	default:
		return "unknown"
	}
}

// Request describes what to format. Range is used by ExplicitRange and
// OnPaste; Character and Position by OnType.
type Request struct {
	Kind      RequestKind
	Range     protocol.Range
	Character string
	Position  protocol.Position
	Options   protocol.FormattingOptions
}

// Result is the outcome of a run. Edits are the edits actually applied.
type Result struct {
	Edits     []protocol.TextEdit
	Summary   string
	Cancelled bool
}
