// Package artifact defines the exported model artifacts shared between the
// trainer and this runtime, together with their JSON codec and load-time
// validation.
package artifact

// Document is the fitted state of a TF-IDF vectorizer and the logistic
// regression trained on its output.
type Document struct {
	Vocabulary  map[string]int `json:"vocabulary"`
	IDF         []float64      `json:"idf"`
	NGramRange  []int          `json:"ngram_range"`
	MaxFeatures *int           `json:"max_features"`
	StopWords   []string       `json:"stop_words"`
	Coef        [][]float64    `json:"coef"`
	Intercept   []float64      `json:"intercept"`
	Classes     []ClassLabel   `json:"classes"`

	// Optional vectorizer and classifier settings. Zero values match the
	// trainer defaults.
	Norm        string `json:"norm,omitempty"`
	SublinearTF bool   `json:"sublinear_tf,omitempty"`
	Binary      bool   `json:"binary,omitempty"`
	MultiClass  string `json:"multi_class,omitempty"`
}

// VocabularySize returns the number of vocabulary entries.
func (d *Document) VocabularySize() int { return len(d.Vocabulary) }

// IsBinary reports whether the classifier has a single weight row.
func (d *Document) IsBinary() bool { return len(d.Coef) == 1 }

// MinN returns the lower n-gram bound, or 0 when the range is malformed.
func (d *Document) MinN() int {
	if len(d.NGramRange) != 2 {
		return 0
	}
	return d.NGramRange[0]
}

// MaxN returns the upper n-gram bound, or 0 when the range is malformed.
func (d *Document) MaxN() int {
	if len(d.NGramRange) != 2 {
		return 0
	}
	return d.NGramRange[1]
}

// ClassNames returns the class labels as text.
func (d *Document) ClassNames() []string {
	out := make([]string, len(d.Classes))
	for i, c := range d.Classes {
		out[i] = c.Name
	}
	return out
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	c := *d
	c.Vocabulary = cloneVocab(d.Vocabulary)
	c.IDF = append([]float64(nil), d.IDF...)
	c.NGramRange = append([]int(nil), d.NGramRange...)
	if d.MaxFeatures != nil {
		mf := *d.MaxFeatures
		c.MaxFeatures = &mf
	}
	if d.StopWords != nil {
		c.StopWords = append([]string(nil), d.StopWords...)
	}
	c.Coef = cloneMatrix(d.Coef)
	c.Intercept = append([]float64(nil), d.Intercept...)
	c.Classes = append([]ClassLabel(nil), d.Classes...)
	return &c
}

func cloneVocab(v map[string]int) map[string]int {
	out := make(map[string]int, len(v))
	for k, idx := range v {
		out[k] = idx
	}
	return out
}

func cloneMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
