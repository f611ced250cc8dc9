package formatter

import (
	"context"

	"github.com/cristianradulescu/fmtorch/internal/utils"
	"go.lsp.dev/protocol"
)

// ContentFormatter formats a whole file content and returns the result.
type ContentFormatter interface {
	Format(ctx context.Context, filePath string, content string) (string, error)
}

// Formatter turns the output of a ContentFormatter into minimal text edits.
type Formatter struct {
	provider  ContentFormatter
	minimizer *Minimizer
}

func NewFormatter(provider ContentFormatter) *Formatter {
	return &Formatter{
		provider:  provider,
		minimizer: NewMinimizer(),
	}
}

func (f *Formatter) Format(ctx context.Context, filePath string, content string) ([]protocol.TextEdit, error) {
	formattedContent, err := f.provider.Format(ctx, filePath, content)
	if err != nil {
		return nil, err
	}

	return f.minimizer.TextEdits(content, formattedContent), nil
}

// TextEdits returns the minimal edits that turn original into formatted.
func (m *Minimizer) TextEdits(original string, formatted string) []protocol.TextEdit {
	if original == formatted {
		return []protocol.TextEdit{}
	}

	return m.Minimize(original, []protocol.TextEdit{
		{Range: utils.FullRange(original), NewText: formatted},
	})
}
