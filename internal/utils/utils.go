package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cristianradulescu/fmtorch/internal/config"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

const fileScheme = uri.FileScheme + "://"

// URIToPath converts a file URI to a filesystem path with percent escapes
// decoded. Anything without the file scheme is returned as is, and a URI
// that cannot be parsed only loses its scheme.
func URIToPath(docURI protocol.DocumentURI) (path string) {
	if !strings.HasPrefix(string(docURI), fileScheme) {
		return string(docURI)
	}

	defer func() {
		if recover() != nil {
			path = strings.TrimPrefix(string(docURI), fileScheme)
		}
	}()
	return uri.URI(docURI).Filename()
}

// FindProjectRoot walks up from the directory of filePath to the closest
// directory holding the config file
func FindProjectRoot(filePath string) string {
	dir := filepath.Dir(filePath)

	for {
		configPath := filepath.Join(dir, config.ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	// If no config found, use the directory of the file
	return filepath.Dir(filePath)
}

// EnsureTextEditsArray makes sure a nil edit list is serialized as [] instead of null.
func EnsureTextEditsArray(edits []protocol.TextEdit) []protocol.TextEdit {
	if edits == nil {
		return make([]protocol.TextEdit, 0)
	}
	return edits
}
