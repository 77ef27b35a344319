package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultSeparators is the split preference: paragraph, line, sentence
// punctuation, space, then a hard cut between runes.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", " ", ""}

// Splitter breaks text into pieces of at most Size runes, repeating up to
// Overlap runes of the previous piece at the start of the next.
type Splitter struct {
	Size       int
	Overlap    int
	Separators []string
}

// Split returns the trimmed, non-empty pieces of text.
func (s Splitter) Split(text string) []string {
	if s.Size <= 0 {
		s.Size = 500
	}
	if s.Overlap < 0 || s.Overlap >= s.Size {
		s.Overlap = 0
	}
	seps := s.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, seps)
}

func (s Splitter) split(text string, seps []string) []string {
	// Use the first separator present in text; "" always applies.
	sep := seps[len(seps)-1]
	var rest []string
	for i, candidate := range seps {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = seps[i+1:]
			break
		}
	}

	var out, fitting []string
	for _, piece := range splitKeep(text, sep) {
		if runeLen(piece) <= s.Size {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			out = append(out, s.merge(fitting)...)
			fitting = nil
		}
		if len(rest) == 0 {
			out = append(out, hardCut(piece, s.Size)...)
			continue
		}
		out = append(out, s.split(piece, rest)...)
	}
	if len(fitting) > 0 {
		out = append(out, s.merge(fitting)...)
	}
	return out
}

// merge packs consecutive pieces into chunks no longer than Size, carrying a
// tail of at most Overlap runes into the next chunk.
func (s Splitter) merge(pieces []string) []string {
	var out, cur []string
	total := 0
	emit := func() {
		if c := strings.TrimSpace(strings.Join(cur, "")); c != "" {
			out = append(out, c)
		}
	}
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > s.Size && len(cur) > 0 {
			emit()
			for len(cur) > 0 && (total > s.Overlap || total+n > s.Size) {
				total -= runeLen(cur[0])
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		total += n
	}
	if len(cur) > 0 {
		emit()
	}
	return out
}

// splitKeep splits text on sep, keeping sep at the end of each piece so the
// pieces concatenate back to text. An empty sep splits into runes.
func splitKeep(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.SplitAfter(text, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hardCut(text string, size int) []string {
	var out []string
	runes := []rune(text)
	for i := 0; i < len(runes); i += size {
		end := min(i+size, len(runes))
		if c := strings.TrimSpace(string(runes[i:end])); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
