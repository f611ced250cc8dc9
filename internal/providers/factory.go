package providers

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cristianradulescu/fmtorch/internal/config"
	"github.com/cristianradulescu/fmtorch/internal/container"
	"github.com/cristianradulescu/fmtorch/internal/formatting"
	"github.com/cristianradulescu/fmtorch/internal/logging"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Factory builds formatting providers from configuration and owns the
// downstream language server connections they use.
type Factory struct {
	RootDir   string
	Logger    *zap.Logger
	NewRunner func(containerName string) container.CommandRunner
	Dial      func(ctx context.Context, providerConfig config.FormattingProvider) (jsonrpc2.Conn, error)

	clients []*LanguageServerClient
}

func NewFactory(rootDir string, logger *zap.Logger) *Factory {
	return &Factory{
		RootDir:   rootDir,
		Logger:    logger,
		NewRunner: container.NewCommandRunner,
		Dial:      DialLanguageServer,
	}
}

// NewFormattingProvider creates the providers described by one configuration
// entry if formatting is enabled for it
func (f *Factory) NewFormattingProvider(ctx context.Context, providerId string, providerConfig config.FormattingProvider) ([]formatting.Provider, error) {
	if !providerConfig.Format.Enabled {
		return nil, fmt.Errorf("formatting is not enabled for provider %s", providerId)
	}

	switch providerConfig.Type {
	case config.ProviderTypeBuiltin:
		switch providerConfig.Rule {
		case RuleCommaSpacing:
			return []formatting.Provider{NewCommaSpacing(providerId, providerConfig)}, nil
		case RuleTrailingWhitespace:
			return []formatting.Provider{NewTrailingWhitespace(providerId, providerConfig)}, nil
		case RuleBraceIndent:
			return []formatting.Provider{NewBraceIndent(providerId, providerConfig)}, nil
		default:
			return nil, fmt.Errorf("unknown builtin rule %q for provider %s", providerConfig.Rule, providerId)
		}

	case config.ProviderTypeCommand:
		runner := f.NewRunner(providerConfig.Container)
		if err := validateProviderConfig(ctx, runner, providerConfig); err != nil {
			return nil, fmt.Errorf("failed to initialize %s; error: %w", providerId, err)
		}
		if providerConfig.Format.Range {
			return []formatting.Provider{NewRangeCommand(providerId, providerConfig, runner)}, nil
		}
		return []formatting.Provider{NewCommand(providerId, providerConfig, runner)}, nil

	case config.ProviderTypeLsp:
		conn, err := f.Dial(ctx, providerConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize %s; error: %w", providerId, err)
		}
		client := NewLanguageServerClient(conn, f.Logger, f.RootDir)
		f.clients = append(f.clients, client)

		providers := []formatting.Provider{NewLanguageServer(providerId, providerConfig, client)}
		if providerConfig.Format.Range {
			providers = append(providers, NewLanguageServerRange(providerId, providerConfig, client))
		}
		if len(providerConfig.Format.OnType) > 0 {
			providers = append(providers, NewLanguageServerOnType(providerId, providerConfig, client))
		}
		return providers, nil

	default:
		return nil, fmt.Errorf("formatting not supported for provider type: %s", providerConfig.Type)
	}
}

// LoadFormattingProviders creates the providers of every enabled entry in
// configuration order. Entries that fail are logged and skipped.
func (f *Factory) LoadFormattingProviders(ctx context.Context, serverConfig *config.Config) []formatting.Provider {
	var providers []formatting.Provider

	for _, id := range serverConfig.ProviderIds() {
		providerConfig := serverConfig.FormattingProviders[id]
		if !providerConfig.Enabled || !providerConfig.Format.Enabled {
			continue
		}

		created, err := f.NewFormattingProvider(ctx, id, providerConfig)
		if err != nil {
			log.Printf("%s%s Skipping provider %s: %v", logging.LogTagProvider, logging.LogTagMain, id, err)
			continue
		}

		providers = append(providers, created...)
	}

	return providers
}

// Forget tells every downstream server that a document was closed.
func (f *Factory) Forget(ctx context.Context, docURI protocol.DocumentURI) error {
	var err error
	for _, client := range f.clients {
		err = multierr.Append(err, client.Forget(ctx, docURI))
	}
	return err
}

// Close shuts down every downstream server.
func (f *Factory) Close(ctx context.Context) error {
	var err error
	for _, client := range f.clients {
		err = multierr.Append(err, client.Close(ctx))
	}
	f.clients = nil
	return err
}

func validateProviderConfig(ctx context.Context, runner container.CommandRunner, providerConfig config.FormattingProvider) error {
	if strings.TrimSpace(providerConfig.Container) != "" {
		if err := container.ValidateContainer(ctx, providerConfig.Container); err != nil {
			return err
		}
	}

	return container.ValidateBinary(ctx, runner, providerConfig.Container, providerConfig.Path)
}
