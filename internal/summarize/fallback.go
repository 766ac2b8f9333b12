package summarize

import (
	"strings"
	"unicode"
)

const fallbackSentenceCount = 3

// FallbackSummary extracts the first three sentences of the text, joined by
// single spaces. Deterministic and dependency-free; used whenever the remote
// summarizer is unavailable, misconfigured, or returns garbage.
func FallbackSummary(text string) string {
	sentences := splitSentences(text)
	if len(sentences) > fallbackSentenceCount {
		sentences = sentences[:fallbackSentenceCount]
	}
	return strings.Join(sentences, " ")
}

// splitSentences cuts the text after terminal punctuation (., ?, !) that is
// followed by whitespace or end of input. Punctuation inside a token, as in
// "3.5" or a URL, does not split.
func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	runes := []rune(text)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		b.WriteRune(r)
		if !isTerminal(r) {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
		for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			i++
		}
	}

	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '?' || r == '!'
}
