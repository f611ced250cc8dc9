package orchestrator

import (
	"strings"

	"github.com/cristianradulescu/fmtorch/internal/formatting"
	"go.lsp.dev/protocol"
)

// Inspect lists the range and document formatters available for a document.
func Inspect(registry *formatting.Registry, docURI protocol.DocumentURI, languageID string) string {
	var b strings.Builder

	b.WriteString("Available Formatters for: ")
	b.WriteString(string(docURI))
	b.WriteString("\n")

	b.WriteString("Range Formatters\n")
	writeNames(&b, registry.RangeFormatters(languageID))

	b.WriteString("Document Formatters\n")
	writeNames(&b, registry.DocumentFormatters(languageID))

	return b.String()
}

func writeNames[T formatting.Provider](b *strings.Builder, providers []T) {
	if len(providers) == 0 {
		b.WriteString("  none\n")
		return
	}
	for _, p := range providers {
		b.WriteString("  ")
		b.WriteString(p.Name())
		b.WriteString("\n")
	}
}
