package handlers

import (
	"regexp"
	"strings"
)

// wordSet matches whole words or phrases, case-insensitively.
type wordSet struct {
	re *regexp.Regexp
}

func newWordSet(words ...string) wordSet {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(strings.ToLower(w))
	}
	return wordSet{re: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)}
}

func (s wordSet) match(text string) bool {
	return s.re.MatchString(text)
}

// first returns the first word of the set found in text, lowercased.
func (s wordSet) first(text string) string {
	return strings.ToLower(s.re.FindString(text))
}
