package textfeat

import "strings"

// NGrams returns every contiguous span of terms whose length lies in
// [minN, maxN], joined by a single space. Spans are emitted grouped by
// length, shortest first, then left to right.
func NGrams(terms []string, minN, maxN int) []string {
	if minN < 1 {
		minN = 1
	}
	if maxN < minN || len(terms) == 0 {
		return nil
	}
	var out []string
	for n := minN; n <= maxN; n++ {
		if n > len(terms) {
			break
		}
		for i := 0; i+n <= len(terms); i++ {
			if n == 1 {
				out = append(out, terms[i])
				continue
			}
			out = append(out, strings.Join(terms[i:i+n], " "))
		}
	}
	return out
}
