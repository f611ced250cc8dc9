package formatter_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cristianradulescu/fmtorch/internal/formatter"
	"github.com/cristianradulescu/fmtorch/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
)

func rng(sl, sc, el, ec uint32) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: sl, Character: sc},
		End:   protocol.Position{Line: el, Character: ec},
	}
}

func TestMinimizer_Minimize(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		edits    []protocol.TextEdit
		expected []protocol.TextEdit
	}{
		{
			name:     "no-op edit is dropped",
			text:     "foo(a, b)",
			edits:    []protocol.TextEdit{{Range: rng(0, 0, 0, 9), NewText: "foo(a, b)"}},
			expected: []protocol.TextEdit{},
		},
		{
			name:     "coarse replacement becomes an insertion",
			text:     "foo(a,b)",
			edits:    []protocol.TextEdit{{Range: rng(0, 4, 0, 7), NewText: "a, b"}},
			expected: []protocol.TextEdit{{Range: rng(0, 6, 0, 6), NewText: " "}},
		},
		{
			name:     "removed space becomes a deletion",
			text:     "x  = 1",
			edits:    []protocol.TextEdit{{Range: rng(0, 0, 0, 6), NewText: "x = 1"}},
			expected: []protocol.TextEdit{{Range: rng(0, 2, 0, 3), NewText: ""}},
		},
		{
			name:     "blank line removal across lines",
			text:     "a\n\n\nb",
			edits:    []protocol.TextEdit{{Range: rng(0, 0, 3, 1), NewText: "a\n\nb"}},
			expected: []protocol.TextEdit{{Range: rng(2, 0, 3, 0), NewText: ""}},
		},
		{
			name: "input order is kept",
			text: "a,b\nc,d",
			edits: []protocol.TextEdit{
				{Range: rng(1, 0, 1, 3), NewText: "c, d"},
				{Range: rng(0, 0, 0, 3), NewText: "a, b"},
			},
			expected: []protocol.TextEdit{
				{Range: rng(1, 2, 1, 2), NewText: " "},
				{Range: rng(0, 2, 0, 2), NewText: " "},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			minimizer := formatter.NewMinimizer()
			assert.Equal(t, tt.expected, minimizer.Minimize(tt.text, tt.edits))
		})
	}
}

func TestMinimizer_LargeEditsPassThrough(t *testing.T) {
	minimizer := formatter.NewMinimizer()
	minimizer.DiffLimit = 3

	edits := []protocol.TextEdit{{Range: rng(0, 0, 0, 8), NewText: "foo(a, b)"}}

	assert.Equal(t, edits, minimizer.Minimize("foo(a,b)", edits))
}

func TestMinimizer_IdempotentAndNonExpanding(t *testing.T) {
	text := "func f(a,b int){\n\treturn a+b\n}\n"
	input := []protocol.TextEdit{{Range: rng(0, 0, 2, 1), NewText: "func f(a, b int) {\n\treturn a + b\n}"}}
	minimizer := formatter.NewMinimizer()

	once := minimizer.Minimize(text, input)
	twice := minimizer.Minimize(text, once)

	require.NotEmpty(t, once)
	assert.Equal(t, once, twice)
	for _, edit := range once {
		assert.True(t, utils.RangeContains(input[0].Range, edit.Range), "edit %v escapes input range", edit.Range)
	}
}

type fakeContentFormatter struct {
	result string
	err    error
}

func (f *fakeContentFormatter) Format(_ context.Context, _ string, _ string) (string, error) {
	return f.result, f.err
}

func TestFormatter_Format(t *testing.T) {
	tests := []struct {
		name          string
		provider      *fakeContentFormatter
		content       string
		expectedEdits []protocol.TextEdit
		expectedErr   string
	}{
		{
			name:          "successful formatting",
			provider:      &fakeContentFormatter{result: "x = 1\n"},
			content:       "x  = 1\n",
			expectedEdits: []protocol.TextEdit{{Range: rng(0, 2, 0, 3), NewText: ""}},
		},
		{
			name:        "formatting provider error",
			provider:    &fakeContentFormatter{err: errors.New("provider error")},
			content:     "x  = 1\n",
			expectedErr: "provider error",
		},
		{
			name:          "no changes",
			provider:      &fakeContentFormatter{result: "x = 1\n"},
			content:       "x = 1\n",
			expectedEdits: []protocol.TextEdit{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := formatter.NewFormatter(tt.provider)
			edits, err := f.Format(context.Background(), "/tmp/main.go", tt.content)

			if tt.expectedErr != "" {
				assert.EqualError(t, err, tt.expectedErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expectedEdits, edits)
		})
	}
}
