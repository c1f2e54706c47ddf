package tokenfeat

import "regexp"

// segmentPattern matches runs of letters and numbers, runs of currency
// symbols, or any other single non-space rune. Space is the ECMAScript set:
// ASCII whitespace, \v, Unicode space separators, line and paragraph
// separators and the BOM.
var segmentPattern = regexp.MustCompile(`[\p{L}\p{N}]+|[$€£₹]+|[^\s\v\p{Zs}\x{2028}\x{2029}\x{feff}]`)

// Span is a token cut from raw text. Start and End are byte offsets into
// that text.
type Span struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Segment splits text into token spans, left to right.
func Segment(text string) []Span {
	locs := segmentPattern.FindAllStringIndex(text, -1)
	spans := make([]Span, len(locs))
	for i, loc := range locs {
		spans[i] = Span{Text: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]}
	}
	return spans
}

// Texts returns the text of every span.
func Texts(spans []Span) []string {
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Text
	}
	return out
}
