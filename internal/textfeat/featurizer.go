package textfeat

import (
	"errors"
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/linear"
)

// Norm selects the per-document normalisation applied after weighting.
type Norm int

const (
	NormL2 Norm = iota
	NormL1
	NormNone
)

// ParseNorm maps an artifact's norm field onto a Norm. Empty means l2.
func ParseNorm(s string) (Norm, error) {
	switch s {
	case "", "l2":
		return NormL2, nil
	case "l1":
		return NormL1, nil
	case "none":
		return NormNone, nil
	default:
		return NormL2, fmt.Errorf("unknown norm %q", s)
	}
}

func (n Norm) String() string {
	switch n {
	case NormL1:
		return "l1"
	case NormNone:
		return "none"
	default:
		return "l2"
	}
}

// Config holds the fitted vectorizer state.
type Config struct {
	Vocabulary  map[string]int
	IDF         []float64
	MinN        int
	MaxN        int
	StopWords   []string
	Norm        Norm
	SublinearTF bool
	Binary      bool
}

// Featurizer maps text to a TF-IDF vector. It is immutable after New and
// safe for concurrent use.
type Featurizer struct {
	vocab       map[string]int
	idf         []float64
	minN, maxN  int
	stop        map[string]struct{}
	norm        Norm
	sublinearTF bool
	binary      bool
}

// New validates cfg and returns a Featurizer. The vocabulary and idf slices
// are copied.
func New(cfg Config) (*Featurizer, error) {
	if len(cfg.Vocabulary) == 0 {
		return nil, errors.New("empty vocabulary")
	}
	if len(cfg.IDF) != len(cfg.Vocabulary) {
		return nil, fmt.Errorf("idf length %d does not match vocabulary size %d", len(cfg.IDF), len(cfg.Vocabulary))
	}
	if cfg.MinN < 1 || cfg.MaxN < cfg.MinN {
		return nil, fmt.Errorf("invalid ngram range [%d, %d]", cfg.MinN, cfg.MaxN)
	}
	f := &Featurizer{
		vocab:       make(map[string]int, len(cfg.Vocabulary)),
		idf:         append([]float64(nil), cfg.IDF...),
		minN:        cfg.MinN,
		maxN:        cfg.MaxN,
		norm:        cfg.Norm,
		sublinearTF: cfg.SublinearTF,
		binary:      cfg.Binary,
	}
	for term, idx := range cfg.Vocabulary {
		if idx < 0 || idx >= len(cfg.IDF) {
			return nil, fmt.Errorf("vocabulary index %d for %q out of range", idx, term)
		}
		f.vocab[term] = idx
	}
	if len(cfg.StopWords) > 0 {
		f.stop = make(map[string]struct{}, len(cfg.StopWords))
		for _, w := range cfg.StopWords {
			f.stop[w] = struct{}{}
		}
	}
	return f, nil
}

// Dim returns the vocabulary size.
func (f *Featurizer) Dim() int { return len(f.idf) }

// Analyze returns the n-grams text produces before vocabulary lookup.
func (f *Featurizer) Analyze(text string) []string {
	terms := RemoveStopWords(Terms(text), f.stop)
	return NGrams(terms, f.minN, f.maxN)
}

// Transform returns the normalised TF-IDF vector for text. Out-of-vocabulary
// n-grams are dropped, and text with no known n-gram yields the zero vector.
func (f *Featurizer) Transform(text string) linear.SparseVector {
	counts := make(map[int]float64)
	for _, gram := range f.Analyze(text) {
		if idx, ok := f.vocab[gram]; ok {
			counts[idx]++
		}
	}
	for idx, tf := range counts {
		switch {
		case f.binary:
			tf = 1
		case f.sublinearTF:
			tf = 1 + math.Log(tf)
		}
		counts[idx] = tf * f.idf[idx]
	}

	vec := linear.FromCounts(counts, len(f.idf))
	switch f.norm {
	case NormL2:
		vec.Scale(vec.L2Norm())
	case NormL1:
		vec.Scale(vec.L1Norm())
	}
	return vec
}
