package evaluate

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/artifact"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/inference"
)

// Binary labels used when scoring the command gate.
const (
	LabelCommand = "command"
	LabelOther   = "other"
)

// Binary scores the command gate. A prediction is a command when the
// model's upper class wins.
func Binary(m *inference.DocumentModel, examples []DocumentExample) (*Report, error) {
	if !m.Binary() {
		return nil, fmt.Errorf("model has %d classes, want a binary model", len(m.Classes()))
	}
	truth := make([]string, len(examples))
	pred := make([]string, len(examples))
	for i, ex := range examples {
		truth[i] = LabelOther
		if ex.IsCommand() {
			truth[i] = LabelCommand
		}
		pred[i] = LabelOther
		if m.Classify(ex.Text).Index == 1 {
			pred[i] = LabelCommand
		}
	}
	return NewReport(truth, pred)
}

// Intent scores an intent model on the command examples that carry an
// intent. names, when non-nil, resolves integer classes to intent names.
func Intent(m *inference.DocumentModel, names []string, examples []DocumentExample) (*Report, error) {
	labels, err := artifact.ResolveClassNames(m.Labels(), names)
	if err != nil {
		return nil, err
	}
	var truth, pred []string
	for _, ex := range examples {
		if !ex.IsCommand() || ex.Intent == "" {
			continue
		}
		truth = append(truth, ex.Intent)
		pred = append(pred, labels[m.Classify(ex.Text).Index])
	}
	return NewReport(truth, pred)
}

// Tokens scores a token model position by position.
func Tokens(m *inference.TokenModel, examples []TokenExample) (*Report, error) {
	var truth, pred []string
	for _, ex := range examples {
		truth = append(truth, ex.Labels...)
		pred = append(pred, m.TagSequence(ex.Tokens)...)
	}
	return NewReport(truth, pred)
}
