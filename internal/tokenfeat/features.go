package tokenfeat

import (
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/textfeat"
)

const (
	BOS = "<bos>"
	EOS = "<eos>"
)

// Feature keys that carry no token text.
const (
	KeyBias              = "bias"
	KeyHasDigit          = "has_digit"
	KeyHasCurrencySymbol = "has_currency_symbol"
	KeyGroupKeyword      = "group_keyword"
)

const currencySymbols = "$₹€£"

var groupKeywords = map[string]struct{}{
	"group": {}, "crew": {}, "trip": {}, "team": {},
}

// Features renders the feature map for tokens[i]. Every value is 1.0.
// It panics if i is out of range.
func Features(tokens []string, i int) map[string]float64 {
	token := tokens[i]
	lower := textfeat.Lower(token)
	prev := BOS
	if i > 0 {
		prev = textfeat.Lower(tokens[i-1])
	}
	next := EOS
	if i+1 < len(tokens) {
		next = textfeat.Lower(tokens[i+1])
	}

	f := map[string]float64{
		KeyBias:                             1,
		"token=" + lower:                    1,
		"prefix3=" + runePrefix(lower, 3):   1,
		"suffix3=" + runeSuffix(lower, 3):   1,
		"shape=" + WordShape(token):         1,
		"prev_token=" + prev:                1,
		"next_token=" + next:                1,
		"prev_bigram=" + prev + "_" + lower: 1,
		"next_bigram=" + lower + "_" + next: 1,
	}
	if strings.IndexFunc(token, unicode.IsDigit) >= 0 {
		f[KeyHasDigit] = 1
	}
	if strings.ContainsAny(token, currencySymbols) {
		f[KeyHasCurrencySymbol] = 1
	}
	if _, ok := groupKeywords[lower]; ok {
		f[KeyGroupKeyword] = 1
	}
	return f
}

// Sequence renders Features for every position of tokens.
func Sequence(tokens []string) []map[string]float64 {
	out := make([]map[string]float64, len(tokens))
	for i := range tokens {
		out[i] = Features(tokens, i)
	}
	return out
}

func runePrefix(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func runeSuffix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
