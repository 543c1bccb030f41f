package mesh

import (
	"fmt"
	"strings"
)

// Chunk splits text into payload-sized parts, breaking on whitespace where
// possible. Text that already fits passes through untouched, preserving any
// internal layout. Multi-part results carry explicit [i/n] markers so
// citizens can reassemble replies that arrive out of order.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = 180
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if len(trimmed) <= size {
		return []string{trimmed}
	}
	parts := wrap(trimmed, size)
	if len(parts) <= 1 {
		return parts
	}
	out := make([]string, 0, len(parts))
	for i, part := range parts {
		out = append(out, fmt.Sprintf("[%d/%d] %s", i+1, len(parts), part))
	}
	return out
}

func wrap(text string, width int) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}

	var (
		lines []string
		line  strings.Builder
	)
	flush := func() {
		if line.Len() > 0 {
			lines = append(lines, line.String())
			line.Reset()
		}
	}
	for _, word := range fields {
		// Hard-split words longer than the payload limit.
		for len(word) > width {
			flush()
			lines = append(lines, word[:width])
			word = word[width:]
		}
		if line.Len() > 0 && line.Len()+1+len(word) > width {
			flush()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	flush()
	return lines
}
