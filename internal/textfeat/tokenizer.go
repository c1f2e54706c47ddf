// Package textfeat turns raw text into the TF-IDF vectors the document
// classifiers were trained on. It lower-cases input with full Unicode case
// mapping, extracts word tokens of two or more runes, removes stop-words and
// builds contiguous n-grams.
package textfeat

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Token represents a single normalised term and its position in the
// original token stream.
type Token struct {
	Term     string
	Position int
}

// cases.Caser keeps state between calls and is not safe for concurrent use.
var lowerPool = sync.Pool{
	New: func() any { return cases.Lower(language.Und) },
}

// Lower applies full Unicode lower-case mapping, including context-sensitive
// rules such as the Greek final sigma.
func Lower(text string) string {
	c := lowerPool.Get().(cases.Caser)
	defer lowerPool.Put(c)
	return c.String(text)
}

// isWordRune matches the runes a regular-expression \w accepts in Unicode
// mode: letters, numbers and the underscore.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// Tokenize lower-cases text and returns every maximal run of word runes that
// is at least two runes long. Positions count kept tokens only.
func Tokenize(text string) []Token {
	words := strings.FieldsFunc(Lower(text), func(r rune) bool {
		return !isWordRune(r)
	})
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		if utf8.RuneCountInString(word) < 2 {
			continue
		}
		tokens = append(tokens, Token{Term: word, Position: pos})
		pos++
	}
	return tokens
}

// Terms returns Tokenize(text) as plain strings.
func Terms(text string) []string {
	tokens := Tokenize(text)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

// RemoveStopWords returns the terms not present in stop, preserving order.
// A nil or empty set returns terms unchanged.
func RemoveStopWords(terms []string, stop map[string]struct{}) []string {
	if len(stop) == 0 {
		return terms
	}
	kept := terms[:0:0]
	for _, t := range terms {
		if _, isStop := stop[t]; isStop {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}
