package extract

import (
	"strings"
	"unicode"
)

// abbreviations never end a sentence when followed by a period
var abbreviations = map[string]bool{
	"inc": true, "corp": true, "co": true, "ltd": true, "bros": true,
	"u.s": true, "u.k": true, "e.u": true, "n.v": true, "s.a": true, "l.p": true, "l.l.c": true,
	"mr": true, "mrs": true, "ms": true, "dr": true, "jr": true, "sr": true, "st": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true, "jul": true,
	"aug": true, "sep": true, "sept": true, "oct": true, "nov": true, "dec": true,
	"no": true, "vs": true, "approx": true, "est": true, "e.g": true, "i.e": true,
}

// SplitSentences splits text on sentence terminators and semicolons, ignoring
// periods that belong to abbreviations, initials or decimal numbers
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\n' || c == '\r' {
			flush()
			continue
		}
		current.WriteByte(c)

		if c != '.' && c != '!' && c != '?' && c != ';' {
			continue
		}
		if i+1 < len(text) && !isSpaceByte(text[i+1]) {
			continue
		}
		if c == '.' && isAbbreviation(text[:i]) {
			continue
		}
		flush()
	}
	flush()

	return sentences
}

// isAbbreviation reports whether the word ending at the end of prefix is a
// known abbreviation or a single-letter initial
func isAbbreviation(prefix string) bool {
	start := strings.LastIndexFunc(prefix, func(r rune) bool {
		return unicode.IsSpace(r) || r == '(' || r == '"'
	}) + 1
	word := strings.ToLower(prefix[start:])
	if word == "" {
		return false
	}
	if abbreviations[word] {
		return true
	}
	// Initials: "j", "j.p", "u.s"
	for _, part := range strings.Split(word, ".") {
		r := []rune(part)
		if len(r) != 1 || !unicode.IsLetter(r[0]) {
			return false
		}
	}
	return true
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// splitParagraphs breaks a body on blank lines, or on single newlines when
// the body has no blank lines
func splitParagraphs(body string) []string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	sep := "\n\n"
	if !strings.Contains(body, sep) {
		sep = "\n"
	}

	var out []string
	for _, p := range strings.Split(body, sep) {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// WordCount counts whitespace-separated words
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// ReadingTime returns whole minutes at 200 words per minute, at least 1 for
// non-empty text
func ReadingTime(words int) int {
	if words <= 0 {
		return 0
	}
	return (words + 199) / 200
}
