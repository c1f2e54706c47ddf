// Package inference binds decoded artifacts to their featurizers and linear
// scorers. Loaded models are immutable and safe for concurrent use without
// locking.
package inference

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/artifact"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/linear"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/textfeat"
	apperrors "github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/errors"
)

// Prediction is the outcome of classifying one text.
type Prediction struct {
	Label  string    `json:"label"`
	Index  int       `json:"index"`
	Scores []float64 `json:"scores"`
}

// Probability returns the score of the predicted class.
func (p Prediction) Probability() float64 {
	if p.Index < 0 || p.Index >= len(p.Scores) {
		return 0
	}
	return p.Scores[p.Index]
}

// DocumentModel is a loaded document classifier.
type DocumentModel struct {
	art        *artifact.Document
	featurizer *textfeat.Featurizer
	classifier *linear.Classifier
	classes    []string
}

// LoadDocumentModel validates a and builds a ready-to-score model from a
// private copy of it.
func LoadDocumentModel(a *artifact.Document) (*DocumentModel, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil document artifact", apperrors.ErrInvalidArtifact)
	}
	if err := artifact.ValidateDocument(a); err != nil {
		return nil, err
	}
	a = a.Clone()

	norm, err := textfeat.ParseNorm(a.Norm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidArtifact, err)
	}
	mode, err := linear.ParseMode(a.MultiClass)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidArtifact, err)
	}

	feat, err := textfeat.New(textfeat.Config{
		Vocabulary:  a.Vocabulary,
		IDF:         a.IDF,
		MinN:        a.MinN(),
		MaxN:        a.MaxN(),
		StopWords:   a.StopWords,
		Norm:        norm,
		SublinearTF: a.SublinearTF,
		Binary:      a.Binary,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidArtifact, err)
	}
	clf, err := linear.NewClassifier(a.Coef, a.Intercept, len(a.Classes), mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidArtifact, err)
	}

	return &DocumentModel{
		art:        a,
		featurizer: feat,
		classifier: clf,
		classes:    a.ClassNames(),
	}, nil
}

// Classify featurizes text and scores it. Empty or fully unknown text
// scores the zero vector, so the result reflects the intercepts alone.
func (m *DocumentModel) Classify(text string) Prediction {
	s := m.classifier.Score(m.featurizer.Transform(text))
	return Prediction{Label: m.classes[s.Index], Index: s.Index, Scores: s.Probabilities}
}

// Vectorize exposes the TF-IDF vector Classify would score.
func (m *DocumentModel) Vectorize(text string) linear.SparseVector {
	return m.featurizer.Transform(text)
}

// Classes returns the class labels in score order.
func (m *DocumentModel) Classes() []string {
	return append([]string(nil), m.classes...)
}

// Labels returns the class labels as exported, numeric or not.
func (m *DocumentModel) Labels() []artifact.ClassLabel {
	return append([]artifact.ClassLabel(nil), m.art.Classes...)
}

// Binary reports whether the model has a single decision row.
func (m *DocumentModel) Binary() bool { return m.classifier.Binary() }

// Artifact returns a copy of the artifact the model was loaded from.
func (m *DocumentModel) Artifact() *artifact.Document { return m.art.Clone() }

// Classify is a convenience wrapper around (*DocumentModel).Classify.
func Classify(text string, m *DocumentModel) Prediction {
	return m.Classify(text)
}
