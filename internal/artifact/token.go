package artifact

// Token is the fitted state of the feature-dictionary vectorizer and the
// per-token logistic regression used for slot tagging.
type Token struct {
	Vocabulary   map[string]int `json:"vocabulary"`
	FeatureNames []string       `json:"feature_names,omitempty"`
	Coef         [][]float64    `json:"coef"`
	Intercept    []float64      `json:"intercept"`
	Classes      []ClassLabel   `json:"classes"`
}

// FeatureCount returns the number of feature columns.
func (t *Token) FeatureCount() int { return len(t.Vocabulary) }

// ClassNames returns the class labels as text.
func (t *Token) ClassNames() []string {
	out := make([]string, len(t.Classes))
	for i, c := range t.Classes {
		out[i] = c.Name
	}
	return out
}

// Clone returns a deep copy.
func (t *Token) Clone() *Token {
	c := *t
	c.Vocabulary = cloneVocab(t.Vocabulary)
	if t.FeatureNames != nil {
		c.FeatureNames = append([]string(nil), t.FeatureNames...)
	}
	c.Coef = cloneMatrix(t.Coef)
	c.Intercept = append([]float64(nil), t.Intercept...)
	c.Classes = append([]ClassLabel(nil), t.Classes...)
	return &c
}
