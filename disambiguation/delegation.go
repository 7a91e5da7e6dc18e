package disambiguation

import (
	"strings"
	"unicode"
)

// delegationPhrases hand the choice of interpretation to the assistant.
var delegationPhrases = []string{
	"you decide",
	"you choose",
	"you pick",
	"up to you",
	"your call",
	"whatever you think",
	"dealer's choice",
	"theo ý bạn",
	"tùy bạn",
	"tuỳ bạn",
}

// IsDelegation reports whether the query explicitly delegates the decision to
// the assistant ("you decide", "up to you", "theo ý bạn", ...).
func IsDelegation(query string) bool {
	normalized := normalize(query)
	if normalized == "" {
		return false
	}
	for _, phrase := range delegationPhrases {
		if containsPhrase(normalized, phrase) {
			return true
		}
	}
	return false
}

// normalize lowercases, maps punctuation to spaces and collapses whitespace.
func normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r == '\'':
			return r
		case unicode.IsPunct(r) || unicode.IsSpace(r):
			return ' '
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// containsPhrase matches phrase on word boundaries.
func containsPhrase(text, phrase string) bool {
	padded := " " + text + " "
	return strings.Contains(padded, " "+phrase+" ")
}
