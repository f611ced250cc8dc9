package providers

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cristianradulescu/fmtorch/internal/config"
	"github.com/cristianradulescu/fmtorch/internal/container"
	"github.com/cristianradulescu/fmtorch/internal/formatter"
	"github.com/cristianradulescu/fmtorch/internal/formatting"
	"github.com/cristianradulescu/fmtorch/internal/logging"
	"github.com/cristianradulescu/fmtorch/internal/utils"
	"go.lsp.dev/protocol"
)

// Command formats documents by piping them through an external program,
// locally or inside a container. The program reads the document on stdin and
// writes the formatted document to stdout.
type Command struct {
	base
	config        config.FormattingProvider
	commandRunner container.CommandRunner
	formatter     *formatter.Formatter
}

func NewCommand(providerId string, providerConfig config.FormattingProvider, runner container.CommandRunner) *Command {
	p := &Command{
		base:          newBase(providerId, providerConfig, providerConfig.Path),
		config:        providerConfig,
		commandRunner: runner,
	}
	p.formatter = formatter.NewFormatter(p)
	return p
}

func (p *Command) commandLine() string {
	parts := []string{p.config.Path}
	parts = append(parts, p.config.Args...)
	if p.config.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("--config %s", p.config.ConfigFile))
	}
	return strings.Join(parts, " ")
}

// Format runs the program over content and returns its output.
func (p *Command) Format(ctx context.Context, filePath string, content string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(p.config.Timeout())*time.Second)
	defer cancel()

	log.Printf("%s%s Formatting %s with %s", logging.LogTagProvider, logging.LogTagFormat, filePath, p.Name())

	output, err := p.commandRunner.Execute(ctx, p.config.Container, p.commandLine(), strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("could not format file: %w", err)
	}

	return string(output), nil
}

func (p *Command) ProvideDocumentFormattingEdits(ctx context.Context, doc formatting.TextDocument, _ protocol.FormattingOptions) ([]protocol.TextEdit, error) {
	return p.formatter.Format(ctx, utils.URIToPath(doc.URI()), doc.Text())
}

// RangeCommand is a Command that also serves range requests by keeping the
// whole-document edits that fall inside the range.
type RangeCommand struct {
	*Command
}

func NewRangeCommand(providerId string, providerConfig config.FormattingProvider, runner container.CommandRunner) *RangeCommand {
	return &RangeCommand{Command: NewCommand(providerId, providerConfig, runner)}
}

func (p *RangeCommand) ProvideDocumentRangeFormattingEdits(ctx context.Context, doc formatting.TextDocument, rng protocol.Range, options protocol.FormattingOptions) ([]protocol.TextEdit, error) {
	edits, err := p.ProvideDocumentFormattingEdits(ctx, doc, options)
	if err != nil {
		return nil, err
	}

	inRange := make([]protocol.TextEdit, 0, len(edits))
	for _, edit := range edits {
		if utils.RangeContains(rng, edit.Range) {
			inRange = append(inRange, edit)
		}
	}
	return inRange, nil
}
