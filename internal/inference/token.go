package inference

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/artifact"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/linear"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/tokenfeat"
	apperrors "github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/errors"
)

// TokenPrediction is the label chosen for one token.
type TokenPrediction struct {
	Token       string  `json:"token"`
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// TokenModel is a loaded slot tagger. Every position is classified on its
// own; no transition model links neighbouring labels, so a sequence such as
// O followed by I_X is a possible output.
type TokenModel struct {
	art        *artifact.Token
	vocab      map[string]int
	classifier *linear.Classifier
	classes    []string
}

// LoadTokenModel validates a and builds a ready-to-score tagger.
func LoadTokenModel(a *artifact.Token) (*TokenModel, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil token artifact", apperrors.ErrInvalidArtifact)
	}
	if err := artifact.ValidateToken(a); err != nil {
		return nil, err
	}
	a = a.Clone()
	clf, err := linear.NewClassifier(a.Coef, a.Intercept, len(a.Classes), linear.Multinomial)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidArtifact, err)
	}
	return &TokenModel{art: a, vocab: a.Vocabulary, classifier: clf, classes: a.ClassNames()}, nil
}

// vectorize maps rendered feature keys onto the model's columns, dropping
// unknown keys.
func (m *TokenModel) vectorize(features map[string]float64) linear.SparseVector {
	counts := make(map[int]float64, len(features))
	for key, v := range features {
		if idx, ok := m.vocab[key]; ok && v != 0 {
			counts[idx] = v
		}
	}
	return linear.FromCounts(counts, len(m.vocab))
}

// Predict scores every token and returns one prediction per position.
func (m *TokenModel) Predict(tokens []string) []TokenPrediction {
	out := make([]TokenPrediction, len(tokens))
	for i := range tokens {
		s := m.classifier.Score(m.vectorize(tokenfeat.Features(tokens, i)))
		out[i] = TokenPrediction{
			Token:       tokens[i],
			Label:       m.classes[s.Index],
			Probability: s.Probabilities[s.Index],
		}
	}
	return out
}

// TagSequence returns one label per token, in order.
func (m *TokenModel) TagSequence(tokens []string) []string {
	preds := m.Predict(tokens)
	labels := make([]string, len(preds))
	for i, p := range preds {
		labels[i] = p.Label
	}
	return labels
}

// Classes returns the label alphabet in score order.
func (m *TokenModel) Classes() []string {
	return append([]string(nil), m.classes...)
}

// Artifact returns a copy of the artifact the model was loaded from.
func (m *TokenModel) Artifact() *artifact.Token { return m.art.Clone() }

// TagSequence is a convenience wrapper around (*TokenModel).TagSequence.
func TagSequence(tokens []string, m *TokenModel) []string {
	return m.TagSequence(tokens)
}
