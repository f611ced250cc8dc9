package orchestrator

import "go.lsp.dev/protocol"

// Snapshot fingerprints an editor by content version and primary cursor.
type Snapshot struct {
	Version int32
	Cursor  protocol.Position
}

func TakeSnapshot(editor Editor) Snapshot {
	version, cursor := editor.State()
	return Snapshot{Version: version, Cursor: cursor}
}

func (s Snapshot) Matches(version int32, cursor protocol.Position) bool {
	return s.Version == version && s.Cursor == cursor
}

// IsValid reports whether editor is still in the captured state.
func (s Snapshot) IsValid(editor Editor) bool {
	return s.Matches(editor.State())
}
