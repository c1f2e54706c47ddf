package artifact

import (
	"fmt"
	"math"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/errors"
)

// ValidationError lists every structural problem found in an artifact,
// keyed by field.
type ValidationError struct {
	Kind   string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s:%s", k, e.Fields[k])
	}
	return fmt.Sprintf("invalid %s artifact: %s", e.Kind, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return apperrors.ErrInvalidArtifact }

type problems map[string]string

// add keeps the first problem reported for a field.
func (p problems) add(field, format string, args ...any) {
	if _, ok := p[field]; ok {
		return
	}
	p[field] = fmt.Sprintf(format, args...)
}

func (p problems) err(kind string) error {
	if len(p) == 0 {
		return nil
	}
	return &ValidationError{Kind: kind, Fields: p}
}

// ValidateDocument checks every structural invariant of a document
// artifact and reports all violations at once.
func ValidateDocument(d *Document) error {
	p := problems{}
	v := len(d.Vocabulary)
	checkVocabulary(p, d.Vocabulary)

	if len(d.IDF) != v {
		p.add("idf", "length %d does not match vocabulary size %d", len(d.IDF), v)
	}
	checkFinite(p, "idf", d.IDF)

	switch {
	case len(d.NGramRange) != 2:
		p.add("ngram_range", "must have 2 entries, got %d", len(d.NGramRange))
	case d.NGramRange[0] < 1 || d.NGramRange[1] < d.NGramRange[0]:
		p.add("ngram_range", "[%d, %d] is not a valid range", d.NGramRange[0], d.NGramRange[1])
	}
	if d.MaxFeatures != nil && *d.MaxFeatures <= 0 {
		p.add("max_features", "must be positive, got %d", *d.MaxFeatures)
	}
	switch d.Norm {
	case "", "l1", "l2", "none":
	default:
		p.add("norm", "unknown value %q", d.Norm)
	}
	switch d.MultiClass {
	case "", "auto", "multinomial", "ovr":
	default:
		p.add("multi_class", "unknown value %q", d.MultiClass)
	}

	checkClassifier(p, d.Coef, d.Intercept, d.Classes, v)
	return p.err("document")
}

// ValidateToken checks every structural invariant of a token artifact.
func ValidateToken(t *Token) error {
	p := problems{}
	f := len(t.Vocabulary)
	checkVocabulary(p, t.Vocabulary)

	if t.FeatureNames != nil {
		if len(t.FeatureNames) != f {
			p.add("feature_names", "length %d does not match vocabulary size %d", len(t.FeatureNames), f)
		} else {
			for i, name := range t.FeatureNames {
				if idx, ok := t.Vocabulary[name]; !ok || idx != i {
					p.add("feature_names", "entry %d (%q) disagrees with vocabulary", i, name)
					break
				}
			}
		}
	}

	checkClassifier(p, t.Coef, t.Intercept, t.Classes, f)
	return p.err("token")
}

func checkVocabulary(p problems, vocab map[string]int) {
	if len(vocab) == 0 {
		p.add("vocabulary", "is empty")
		return
	}
	seen := make([]bool, len(vocab))
	for term, idx := range vocab {
		if idx < 0 || idx >= len(vocab) {
			p.add("vocabulary", "index %d for %q outside [0, %d)", idx, term, len(vocab))
			return
		}
		if seen[idx] {
			p.add("vocabulary", "index %d assigned more than once", idx)
			return
		}
		seen[idx] = true
	}
}

func checkClassifier(p problems, coef [][]float64, intercept []float64, classes []ClassLabel, cols int) {
	rows := len(coef)
	if rows == 0 {
		p.add("coef", "has no rows")
	}
	for i, row := range coef {
		if len(row) != cols {
			p.add("coef", "row %d has %d columns, want %d", i, len(row), cols)
		}
		checkFinite(p, "coef", row)
	}
	if len(intercept) != rows {
		p.add("intercept", "length %d does not match %d coef rows", len(intercept), rows)
	}
	checkFinite(p, "intercept", intercept)

	switch {
	case rows == 1 && len(classes) != 2:
		p.add("classes", "binary classifier needs 2 classes, got %d", len(classes))
	case rows > 1 && len(classes) != rows:
		p.add("classes", "%d classes for %d coef rows", len(classes), rows)
	}
	seen := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		if _, dup := seen[c.Name]; dup {
			p.add("classes", "duplicate class %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
}

func checkFinite(p problems, field string, values []float64) {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			p.add(field, "entry %d is not finite", i)
			return
		}
	}
}
