package utils

import (
	"strings"
	"unicode/utf8"

	"go.lsp.dev/protocol"
)

// Positions follow LSP: 0-based lines split on '\n', characters counted in
// UTF-16 code units.

// OffsetAt converts a position to a byte offset in text. Lines past the end
// map to len(text); characters past the end of a line map to the line end.
func OffsetAt(text string, pos protocol.Position) int {
	offset := 0
	for line := uint32(0); line < pos.Line; line++ {
		idx := strings.IndexByte(text[offset:], '\n')
		if idx < 0 {
			return len(text)
		}
		offset += idx + 1
	}

	units := uint32(0)
	for offset < len(text) && units < pos.Character {
		r, size := utf8.DecodeRuneInString(text[offset:])
		if r == '\n' {
			break
		}
		units += uint32(utf16Len(r))
		if units > pos.Character {
			// position points into the middle of a surrogate pair
			break
		}
		offset += size
	}

	return offset
}

// PositionAt converts a byte offset to a position. The offset is clamped to the text.
func PositionAt(text string, offset int) protocol.Position {
	if offset > len(text) {
		offset = len(text)
	}
	if offset < 0 {
		offset = 0
	}

	prefix := text[:offset]
	line := uint32(strings.Count(prefix, "\n"))
	lineStart := strings.LastIndexByte(prefix, '\n') + 1

	character := uint32(0)
	for _, r := range prefix[lineStart:] {
		character += uint32(utf16Len(r))
	}

	return protocol.Position{Line: line, Character: character}
}

// utf16Len is the number of UTF-16 code units needed to encode r.
func utf16Len(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}

// LineCount returns the number of lines; an empty text has one line.
func LineCount(text string) uint32 {
	return uint32(strings.Count(text, "\n")) + 1
}

// FullRange spans the whole text.
func FullRange(text string) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: 0, Character: 0},
		End:   PositionAt(text, len(text)),
	}
}

// LineRange spans the content of a single line, excluding its line break.
func LineRange(text string, line uint32) protocol.Range {
	start := OffsetAt(text, protocol.Position{Line: line})
	end := start
	if idx := strings.IndexByte(text[start:], '\n'); idx >= 0 {
		end += idx
	} else {
		end = len(text)
	}

	return protocol.Range{Start: PositionAt(text, start), End: PositionAt(text, end)}
}

// ComparePositions returns -1, 0 or 1.
func ComparePositions(a, b protocol.Position) int {
	switch {
	case a.Line < b.Line:
		return -1
	case a.Line > b.Line:
		return 1
	case a.Character < b.Character:
		return -1
	case a.Character > b.Character:
		return 1
	default:
		return 0
	}
}

// IsEmptyRange reports whether the range has no extent.
func IsEmptyRange(r protocol.Range) bool {
	return ComparePositions(r.Start, r.End) == 0
}

// RangeContains reports whether inner lies within outer, bounds included.
func RangeContains(outer, inner protocol.Range) bool {
	return ComparePositions(outer.Start, inner.Start) <= 0 && ComparePositions(inner.End, outer.End) <= 0
}

// UnionRange returns the smallest range covering both a and b.
func UnionRange(a, b protocol.Range) protocol.Range {
	out := a
	if ComparePositions(b.Start, out.Start) < 0 {
		out.Start = b.Start
	}
	if ComparePositions(b.End, out.End) > 0 {
		out.End = b.End
	}
	return out
}
