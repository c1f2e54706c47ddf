// Package tokenfeat renders the named one-hot features the slot tagger
// scores for each token of an utterance, and segments raw text into the
// tokens those features are computed over.
package tokenfeat

import (
	"strings"
	"unicode"
)

// WordShape maps every digit to 'd', every upper-case letter to 'X', every
// other letter to 'x' and keeps all remaining runes as they are.
func WordShape(token string) string {
	var b strings.Builder
	b.Grow(len(token))
	for _, r := range token {
		switch {
		case unicode.IsDigit(r):
			b.WriteByte('d')
		case unicode.IsLetter(r):
			if unicode.IsUpper(r) {
				b.WriteByte('X')
			} else {
				b.WriteByte('x')
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
