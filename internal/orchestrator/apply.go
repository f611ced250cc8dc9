package orchestrator

import "go.lsp.dev/protocol"

// Apply applies edits only if editor still matches snapshot.
func Apply(editor Editor, edits []protocol.TextEdit, snapshot Snapshot) (bool, error) {
	return ApplyIf(editor, edits, snapshot.Matches)
}

// ApplyIf applies edits as one undo entry when precondition holds at the
// moment of application. An empty edit list leaves the editor untouched.
func ApplyIf(editor Editor, edits []protocol.TextEdit, precondition func(version int32, cursor protocol.Position) bool) (bool, error) {
	if len(edits) == 0 {
		return false, nil
	}
	return editor.ApplyEdits(edits, precondition)
}
