// Package collab holds the pure parsing used by the collaboration log.
package collab

import (
	"strings"
	"unicode"
)

// ExtractMentions returns the distinct @token references in content, in order of first
// appearance. Tokens are opaque display identifiers resolved by an external directory.
// An @ preceded by a letter or digit (an e-mail address) is not a mention.
func ExtractMentions(content string) []string {
	runes := []rune(content)
	seen := make(map[string]bool)
	mentions := make([]string, 0)

	for i := 0; i < len(runes); i++ {
		if runes[i] != '@' {
			continue
		}

		if i > 0 && isTokenRune(runes[i-1]) {
			continue
		}

		j := i + 1
		for j < len(runes) && isTokenRune(runes[j]) {
			j++
		}

		token := strings.TrimRight(string(runes[i+1:j]), ".-")
		i = j - 1

		if token == "" || seen[token] {
			continue
		}

		seen[token] = true
		mentions = append(mentions, token)
	}

	return mentions
}

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '-'
}
