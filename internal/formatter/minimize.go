package formatter

import (
	"strings"

	"github.com/cristianradulescu/fmtorch/internal/utils"
	"github.com/sergi/go-diff/diffmatchpatch"
	"go.lsp.dev/protocol"
)

// DefaultDiffLimit is the size in bytes above which an edit is passed
// through without diffing.
const DefaultDiffLimit = 100000

// Minimizer reduces provider edits to the smallest set of replacements that
// produce the same text.
type Minimizer struct {
	DiffLimit int
	dmp       *diffmatchpatch.DiffMatchPatch
}

func NewMinimizer() *Minimizer {
	return &Minimizer{DiffLimit: DefaultDiffLimit, dmp: diffmatchpatch.New()}
}

// Minimize rewrites edits against text. No-op edits are dropped, large
// edits are kept as they are and everything else is replaced by the
// character level differences it introduces. The result keeps input order.
func (m *Minimizer) Minimize(text string, edits []protocol.TextEdit) []protocol.TextEdit {
	out := make([]protocol.TextEdit, 0, len(edits))

	for _, edit := range edits {
		start := utils.OffsetAt(text, edit.Range.Start)
		end := utils.OffsetAt(text, edit.Range.End)
		if end < start {
			out = append(out, edit)
			continue
		}

		original := text[start:end]
		if original == edit.NewText {
			continue
		}

		if len(original) > m.DiffLimit || len(edit.NewText) > m.DiffLimit {
			out = append(out, edit)
			continue
		}

		out = append(out, m.diff(text, start, original, edit.NewText)...)
	}

	return out
}

type pendingEdit struct {
	start   int
	end     int
	newText strings.Builder
}

func (m *Minimizer) diff(text string, base int, original string, replacement string) []protocol.TextEdit {
	var edits []protocol.TextEdit
	var pending *pendingEdit

	flush := func() {
		if pending == nil {
			return
		}
		edits = append(edits, protocol.TextEdit{
			Range: protocol.Range{
				Start: utils.PositionAt(text, base+pending.start),
				End:   utils.PositionAt(text, base+pending.end),
			},
			NewText: pending.newText.String(),
		})
		pending = nil
	}

	offset := 0
	for _, d := range m.dmp.DiffMain(original, replacement, false) {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			offset += len(d.Text)
		case diffmatchpatch.DiffDelete:
			if pending == nil {
				pending = &pendingEdit{start: offset, end: offset}
			}
			offset += len(d.Text)
			pending.end = offset
		case diffmatchpatch.DiffInsert:
			if pending == nil {
				pending = &pendingEdit{start: offset, end: offset}
			}
			pending.newText.WriteString(d.Text)
		}
	}
	flush()

	return edits
}
