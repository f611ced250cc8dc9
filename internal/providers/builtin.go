package providers

import (
	"context"
	"regexp"
	"strings"

	"github.com/cristianradulescu/fmtorch/internal/config"
	"github.com/cristianradulescu/fmtorch/internal/formatting"
	"github.com/cristianradulescu/fmtorch/internal/utils"
	"go.lsp.dev/protocol"
)

const (
	RuleCommaSpacing       string = "comma-spacing"
	RuleTrailingWhitespace string = "trailing-whitespace"
	RuleBraceIndent        string = "brace-indent"
)

type base struct {
	id        string
	name      string
	priority  int
	languages []string
}

func newBase(providerId string, providerConfig config.FormattingProvider, defaultName string) base {
	name := providerConfig.Name
	if name == "" {
		name = defaultName
	}
	return base{
		id:        providerId,
		name:      name,
		priority:  providerConfig.Priority,
		languages: providerConfig.Languages,
	}
}

func (b *base) Id() string {
	return b.id
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Priority() int {
	return b.priority
}

func (b *base) Languages() []string {
	return b.languages
}

var commaWithoutSpace = regexp.MustCompile(`,(\S)`)

// CommaSpacing puts one space after every comma followed by a non-blank character.
type CommaSpacing struct {
	base
}

func NewCommaSpacing(providerId string, providerConfig config.FormattingProvider) *CommaSpacing {
	return &CommaSpacing{base: newBase(providerId, providerConfig, RuleCommaSpacing)}
}

func (p *CommaSpacing) ProvideDocumentRangeFormattingEdits(_ context.Context, doc formatting.TextDocument, rng protocol.Range, _ protocol.FormattingOptions) ([]protocol.TextEdit, error) {
	text := doc.Text()
	start := utils.OffsetAt(text, rng.Start)
	end := utils.OffsetAt(text, rng.End)
	if end <= start {
		return nil, nil
	}

	segment := text[start:end]
	formatted := commaWithoutSpace.ReplaceAllString(segment, ", $1")
	if formatted == segment {
		return nil, nil
	}

	return []protocol.TextEdit{{
		Range:   protocol.Range{Start: utils.PositionAt(text, start), End: utils.PositionAt(text, end)},
		NewText: formatted,
	}}, nil
}

// TrailingWhitespace strips blanks at the end of every line.
type TrailingWhitespace struct {
	base
}

func NewTrailingWhitespace(providerId string, providerConfig config.FormattingProvider) *TrailingWhitespace {
	return &TrailingWhitespace{base: newBase(providerId, providerConfig, RuleTrailingWhitespace)}
}

func (p *TrailingWhitespace) ProvideDocumentFormattingEdits(_ context.Context, doc formatting.TextDocument, _ protocol.FormattingOptions) ([]protocol.TextEdit, error) {
	text := doc.Text()

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		cr := strings.HasSuffix(line, "\r")
		line = strings.TrimRight(strings.TrimSuffix(line, "\r"), " \t")
		if cr {
			line += "\r"
		}
		lines[i] = line
	}

	formatted := strings.Join(lines, "\n")
	if formatted == text {
		return nil, nil
	}

	return []protocol.TextEdit{{Range: utils.FullRange(text), NewText: formatted}}, nil
}

// BraceIndent re-indents a line when a closing brace or a line break is typed.
type BraceIndent struct {
	base
	triggers []string
}

func NewBraceIndent(providerId string, providerConfig config.FormattingProvider) *BraceIndent {
	triggers := providerConfig.Format.OnType
	if len(triggers) == 0 {
		triggers = []string{"}", "\n"}
	}
	return &BraceIndent{base: newBase(providerId, providerConfig, RuleBraceIndent), triggers: triggers}
}

func (p *BraceIndent) TriggerCharacters() []string {
	return p.triggers
}

func (p *BraceIndent) ProvideOnTypeFormattingEdits(_ context.Context, doc formatting.TextDocument, position protocol.Position, ch string, options protocol.FormattingOptions) ([]protocol.TextEdit, error) {
	text := doc.Text()
	line := position.Line

	var indent string
	switch ch {
	case "}":
		lineStart := utils.OffsetAt(text, protocol.Position{Line: line})
		lineText := lineContent(text, line)
		if !strings.HasPrefix(strings.TrimLeft(lineText, " \t"), "}") {
			return nil, nil
		}
		closing := lineStart + len(lineText) - len(strings.TrimLeft(lineText, " \t"))
		opening := matchingOpenBrace(text, closing)
		if opening < 0 {
			return nil, nil
		}
		indent = leadingWhitespace(lineContent(text, utils.PositionAt(text, opening).Line))
	case "\n":
		if line == 0 {
			return nil, nil
		}
		previous := lineContent(text, line-1)
		indent = leadingWhitespace(previous)
		if strings.HasSuffix(strings.TrimRight(previous, " \t\r"), "{") {
			indent += indentUnit(options)
		}
	default:
		return nil, nil
	}

	current := leadingWhitespace(lineContent(text, line))
	if current == indent {
		return nil, nil
	}

	return []protocol.TextEdit{{
		Range: protocol.Range{
			Start: protocol.Position{Line: line, Character: 0},
			End:   protocol.Position{Line: line, Character: uint32(len(current))},
		},
		NewText: indent,
	}}, nil
}

func lineContent(text string, line uint32) string {
	r := utils.LineRange(text, line)
	return text[utils.OffsetAt(text, r.Start):utils.OffsetAt(text, r.End)]
}

func leadingWhitespace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

func indentUnit(options protocol.FormattingOptions) string {
	if !options.InsertSpaces {
		return "\t"
	}
	size := options.TabSize
	if size == 0 {
		size = config.DefaultTabSize
	}
	return strings.Repeat(" ", int(size))
}

// matchingOpenBrace returns the offset of the '{' closed by the '}' at
// offset closing, or -1.
func matchingOpenBrace(text string, closing int) int {
	depth := 0
	for i := closing - 1; i >= 0; i-- {
		switch text[i] {
		case '}':
			depth++
		case '{':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}
