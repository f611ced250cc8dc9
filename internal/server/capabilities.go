package server

import (
	"fmt"

	"github.com/cristianradulescu/fmtorch/internal/config"
	"github.com/cristianradulescu/fmtorch/internal/formatting"
	"go.lsp.dev/protocol"
)

const (
	LspCommandPrefix             = config.Name
	LspCommandSeparator          = "/"
	LspCommandNameShowConfig     = "showConfig"
	LspCommandNameListFormatters = "listFormatters"
	LspCommandNameFormat         = "format"
	LspCommandNameFormatPasted   = "formatPasted"
)

func serverCapabilities(registry *formatting.Registry, editor config.EditorConfig) protocol.ServerCapabilities {
	capabilities := protocol.ServerCapabilities{
		TextDocumentSync: &protocol.TextDocumentSyncOptions{
			Change:    protocol.TextDocumentSyncKindFull,
			OpenClose: true,
		},
		ExecuteCommandProvider: &protocol.ExecuteCommandOptions{
			Commands: []string{
				GetFullLspCommandName(LspCommandNameShowConfig),
				GetFullLspCommandName(LspCommandNameListFormatters),
				GetFullLspCommandName(LspCommandNameFormat),
				GetFullLspCommandName(LspCommandNameFormatPasted),
			},
		},
	}

	var hasDocument, hasRange bool
	var triggers []string
	seen := make(map[string]bool)
	for _, provider := range registry.Providers() {
		if _, ok := provider.(formatting.DocumentFormatter); ok {
			hasDocument = true
		}
		if _, ok := provider.(formatting.RangeFormatter); ok {
			hasRange = true
		}
		if onType, ok := provider.(formatting.OnTypeFormatter); ok {
			for _, ch := range onType.TriggerCharacters() {
				if !seen[ch] {
					seen[ch] = true
					triggers = append(triggers, ch)
				}
			}
		}
	}

	// Documents fall back to the range formatters.
	capabilities.DocumentFormattingProvider = hasDocument || hasRange
	capabilities.DocumentRangeFormattingProvider = hasRange

	if editor.FormatOnType && len(triggers) > 0 {
		capabilities.DocumentOnTypeFormattingProvider = &protocol.DocumentOnTypeFormattingOptions{
			FirstTriggerCharacter: triggers[0],
			MoreTriggerCharacter:  triggers[1:],
		}
	}

	return capabilities
}

func serverInfo() *protocol.ServerInfo {
	return &protocol.ServerInfo{
		Name:    config.Name,
		Version: config.Version,
	}
}

func GetFullLspCommandName(command string) string {
	return fmt.Sprintf("%s%s%s", LspCommandPrefix, LspCommandSeparator, command)
}
