package providers_test

import (
	"context"
	"testing"

	"github.com/cristianradulescu/fmtorch/internal/config"
	"github.com/cristianradulescu/fmtorch/internal/container"
	"github.com/cristianradulescu/fmtorch/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
)

func upperCaseConfig() config.FormattingProvider {
	return config.FormattingProvider{
		Enabled:   true,
		Type:      config.ProviderTypeCommand,
		Path:      "tr",
		Args:      []string{"a-z", "A-Z"},
		Languages: []string{"go"},
		Format:    config.FormatConfig{Enabled: true, Range: true, TimeoutSeconds: 5},
	}
}

func TestCommand_Format(t *testing.T) {
	p := providers.NewCommand("upper", upperCaseConfig(), container.NewLocalCommandRunner())

	out, err := p.Format(context.Background(), "/tmp/project/main.go", "abc\n")
	require.NoError(t, err)
	assert.Equal(t, "ABC\n", out)
	assert.Equal(t, "tr", p.Name())
}

func TestCommand_DocumentEditsAreMinimal(t *testing.T) {
	p := providers.NewCommand("upper", upperCaseConfig(), container.NewLocalCommandRunner())

	edits, err := p.ProvideDocumentFormattingEdits(context.Background(), newDoc("abc\n"), protocol.FormattingOptions{})
	require.NoError(t, err)
	assert.Equal(t, []protocol.TextEdit{{Range: rng(0, 0, 0, 3), NewText: "ABC"}}, edits)
}

func TestRangeCommand_KeepsEditsInsideRange(t *testing.T) {
	p := providers.NewRangeCommand("upper", upperCaseConfig(), container.NewLocalCommandRunner())

	edits, err := p.ProvideDocumentRangeFormattingEdits(context.Background(), newDoc("ab\ncd\n"), rng(1, 0, 1, 2), protocol.FormattingOptions{})
	require.NoError(t, err)
	assert.Equal(t, []protocol.TextEdit{{Range: rng(1, 0, 1, 2), NewText: "CD"}}, edits)
}

func TestCommand_Failure(t *testing.T) {
	providerConfig := upperCaseConfig()
	providerConfig.Path = "false"
	providerConfig.Args = nil
	p := providers.NewCommand("broken", providerConfig, container.NewLocalCommandRunner())

	edits, err := p.ProvideDocumentFormattingEdits(context.Background(), newDoc("abc\n"), protocol.FormattingOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not format file")
	assert.Nil(t, edits)
}
