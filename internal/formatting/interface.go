package formatting

import (
	"context"

	"go.lsp.dev/protocol"
)

// TextDocument is the read-only view of a document handed to providers
type TextDocument interface {
	URI() protocol.DocumentURI
	LanguageID() string
	Text() string
	Version() int32
}

// Provider is the common part of every formatting provider
type Provider interface {
	// Id returns the unique identifier of the formatting provider
	Id() string

	// Name returns the human-readable name of the formatting provider
	Name() string

	// Priority orders providers that match a language equally well; higher wins
	Priority() int

	// Languages returns the language ids the provider applies to. Empty or "*" means any language
	Languages() []string
}

// DocumentFormatter formats a whole document
type DocumentFormatter interface {
	Provider
	ProvideDocumentFormattingEdits(ctx context.Context, doc TextDocument, options protocol.FormattingOptions) ([]protocol.TextEdit, error)
}

// RangeFormatter formats a range of a document
type RangeFormatter interface {
	Provider
	ProvideDocumentRangeFormattingEdits(ctx context.Context, doc TextDocument, rng protocol.Range, options protocol.FormattingOptions) ([]protocol.TextEdit, error)
}

// OnTypeFormatter formats after one of its trigger characters was typed
type OnTypeFormatter interface {
	Provider

	// TriggerCharacters returns the characters that trigger on-type formatting
	TriggerCharacters() []string

	ProvideOnTypeFormattingEdits(ctx context.Context, doc TextDocument, position protocol.Position, ch string, options protocol.FormattingOptions) ([]protocol.TextEdit, error)
}
