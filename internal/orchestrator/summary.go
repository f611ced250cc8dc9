package orchestrator

import (
	"fmt"

	"github.com/cristianradulescu/fmtorch/internal/utils"
	"go.lsp.dev/protocol"
)

// Summarize describes edits with 1-based line numbers, or returns "" when
// there are none.
func Summarize(edits []protocol.TextEdit) string {
	if len(edits) == 0 {
		return ""
	}

	union := edits[0].Range
	for _, edit := range edits[1:] {
		union = utils.UnionRange(union, edit.Range)
	}
	startLine := union.Start.Line + 1
	endLine := union.End.Line + 1

	if startLine == endLine {
		if len(edits) == 1 {
			return fmt.Sprintf("Made 1 formatting edit on line %d", startLine)
		}
		return fmt.Sprintf("Made %d formatting edits on line %d", len(edits), startLine)
	}

	if len(edits) == 1 {
		return fmt.Sprintf("Made 1 formatting edit between lines %d and %d", startLine, endLine)
	}
	return fmt.Sprintf("Made %d formatting edits between lines %d and %d", len(edits), startLine, endLine)
}
