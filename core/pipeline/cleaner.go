package pipeline

import (
	"unicode"
)

// CleanText normalises extracted text before chunking.
// Blank line runs become one blank line, tabs become spaces and space runs collapse.
func CleanText(text string) string {
	cleaned, _ := cleanText(text)
	return string(cleaned)
}

// isBlank matches the whitespace set of a regexp \s.
func isBlank(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f'
}

// cleanText returns the cleaned runes and, for each of them, its rune offset in text.
func cleanText(text string) ([]rune, []int) {
	raw := []rune(text)
	out := make([]rune, 0, len(raw))
	offsets := make([]int, 0, len(raw))

	emit := func(from int, to int) {
		for k := from; k < to; k++ {
			r := raw[k]
			if r == '\t' {
				r = ' '
			}
			if r == ' ' && len(out) > 0 && out[len(out)-1] == ' ' {
				continue
			}
			out = append(out, r)
			offsets = append(offsets, k)
		}
	}

	for i := 0; i < len(raw); {
		if !isBlank(raw[i]) {
			emit(i, i+1)
			i++
			continue
		}

		j := i
		first, last := -1, -1
		for ; j < len(raw) && isBlank(raw[j]); j++ {
			if raw[j] == '\n' {
				if first < 0 {
					first = j
				}
				last = j
			}
		}

		if first >= 0 && first != last {
			emit(i, first)
			out = append(out, '\n', '\n')
			offsets = append(offsets, first, last)
			emit(last+1, j)
		} else {
			emit(i, j)
		}
		i = j
	}

	start, end := 0, len(out)
	for start < end && unicode.IsSpace(out[start]) {
		start++
	}
	for end > start && unicode.IsSpace(out[end-1]) {
		end--
	}
	return out[start:end], offsets[start:end]
}
