package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/multierr"
)

const (
	Name           string = "fmtorch"
	Version        string = "0.1.0"
	ConfigFileName string = ".fmtorch.json"

	ConfigItemEditor              string = "editor"
	ConfigItemFormattingProviders string = "formattingProviders"
)

// Provider types
const (
	ProviderTypeBuiltin = "builtin"
	ProviderTypeCommand = "command"
	ProviderTypeLsp     = "lsp"
)

const (
	DefaultTabSize        uint32 = 4
	DefaultTimeoutSeconds int    = 10
)

type Config struct {
	RawData             json.RawMessage
	Editor              EditorConfig
	FormattingProviders map[string]FormattingProvider
	initialized         bool
}

// EditorConfig holds the defaults every opened document starts with.
type EditorConfig struct {
	TabSize       uint32 `json:"tabSize"`
	InsertSpaces  bool   `json:"insertSpaces"`
	FormatOnType  bool   `json:"formatOnType"`
	FormatOnPaste bool   `json:"formatOnPaste"`
}

type FormatConfig struct {
	Enabled        bool     `json:"enabled"`
	TimeoutSeconds int      `json:"timeoutSeconds"`
	Range          bool     `json:"range"`
	OnType         []string `json:"onType"`
}

type FormattingProvider struct {
	Enabled    bool         `json:"enabled"`
	Type       string       `json:"type"`
	Name       string       `json:"name"`
	Rule       string       `json:"rule"`
	Languages  []string     `json:"languages"`
	Priority   int          `json:"priority"`
	Container  string       `json:"container"`
	Path       string       `json:"path"`
	Args       []string     `json:"args"`
	ConfigFile string       `json:"configFile"`
	Format     FormatConfig `json:"format"`
}

// Timeout returns the configured format timeout in seconds, or the default.
func (p FormattingProvider) Timeout() int {
	if p.Format.TimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds
	}
	return p.Format.TimeoutSeconds
}

func DefaultEditorConfig() EditorConfig {
	return EditorConfig{
		TabSize:       DefaultTabSize,
		InsertSpaces:  true,
		FormatOnType:  false,
		FormatOnPaste: false,
	}
}

func (config *Config) IsInitialized() bool {
	return config.initialized
}

func (config *Config) LoadConfig(projectRoot string) (*Config, error) {
	configPath := filepath.Join(projectRoot, ConfigFileName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config, fmt.Errorf("config file not found: %s", configPath)
	}

	rawData, err := os.ReadFile(configPath)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}

	rawMap := make(map[string]json.RawMessage)
	if err := json.Unmarshal(rawData, &rawMap); err != nil {
		return config, fmt.Errorf("failed to parse config file: %w", err)
	}

	editorConfig := DefaultEditorConfig()
	if rawEditor, exists := rawMap[ConfigItemEditor]; exists {
		if err := json.Unmarshal(rawEditor, &editorConfig); err != nil {
			return config, fmt.Errorf("failed to parse editor settings: %w", err)
		}
		if editorConfig.TabSize == 0 {
			editorConfig.TabSize = DefaultTabSize
		}
	}

	formattingProvidersData := make(map[string]FormattingProvider)
	if rawProviders, exists := rawMap[ConfigItemFormattingProviders]; exists {
		if err := json.Unmarshal(rawProviders, &formattingProvidersData); err != nil {
			return config, fmt.Errorf("failed to parse formatting providers: %w", err)
		}
	} else {
		return config, fmt.Errorf("no formatting providers configured (missing key %s)", ConfigItemFormattingProviders)
	}

	if err := Validate(formattingProvidersData); err != nil {
		return config, fmt.Errorf("invalid formatting providers: %w", err)
	}

	config.RawData = rawData
	config.Editor = editorConfig
	config.FormattingProviders = formattingProvidersData
	config.initialized = true

	return config, nil
}

// ProviderIds returns the configured provider ids sorted alphabetically, which
// is the order providers are registered in.
func (config *Config) ProviderIds() []string {
	ids := make([]string, 0, len(config.FormattingProviders))
	for id := range config.FormattingProviders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks every enabled provider and reports all problems at once.
func Validate(providers map[string]FormattingProvider) error {
	var errs error

	ids := make([]string, 0, len(providers))
	for id := range providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		provider := providers[id]
		if !provider.Enabled {
			continue
		}

		switch provider.Type {
		case ProviderTypeBuiltin:
			if provider.Rule == "" {
				errs = multierr.Append(errs, fmt.Errorf("provider %s: builtin provider needs a rule", id))
			}
		case ProviderTypeCommand, ProviderTypeLsp:
			if provider.Path == "" {
				errs = multierr.Append(errs, fmt.Errorf("provider %s: path is required for %s providers", id, provider.Type))
			}
		default:
			errs = multierr.Append(errs, fmt.Errorf("provider %s: unknown type %q", id, provider.Type))
		}

		for _, ch := range provider.Format.OnType {
			if len([]rune(ch)) != 1 {
				errs = multierr.Append(errs, fmt.Errorf("provider %s: trigger %q must be a single character", id, ch))
			}
		}
	}

	return errs
}
