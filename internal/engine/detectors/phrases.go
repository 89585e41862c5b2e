package detectors

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// phrase is a compiled, case-insensitive phrase matcher.
type phrase struct {
	text string
	re   *regexp.Regexp
}

// compilePhrases turns plain phrases into regexes that tolerate any run of
// whitespace between words and respect word boundaries at the edges.
// Empty entries are skipped.
func compilePhrases(phrases []string) []phrase {
	out := make([]phrase, 0, len(phrases))
	for _, p := range phrases {
		words := strings.Fields(p)
		if len(words) == 0 {
			continue
		}
		quoted := make([]string, len(words))
		for i, w := range words {
			quoted[i] = regexp.QuoteMeta(w)
		}
		expr := strings.Join(quoted, `\s+`)

		first, _ := utf8.DecodeRuneInString(words[0])
		last, _ := utf8.DecodeLastRuneInString(words[len(words)-1])
		if isWordRune(first) {
			expr = `\b` + expr
		}
		if isWordRune(last) {
			expr = expr + `\b`
		}

		out = append(out, phrase{
			text: strings.Join(words, " "),
			re:   regexp.MustCompile(`(?i)` + expr),
		})
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// firstMatch returns the first phrase found in text.
func firstMatch(phrases []phrase, text string) (string, bool) {
	for _, p := range phrases {
		if p.re.MatchString(text) {
			return p.text, true
		}
	}
	return "", false
}
