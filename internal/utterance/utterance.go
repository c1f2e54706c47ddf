// Package utterance runs the full classification cascade over one utterance:
// a binary command gate, then intent classification and slot extraction for
// utterances that pass the gate.
package utterance

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/artifact"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/inference"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/slots"
	apperrors "github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/tracing"
)

// DefaultThreshold is the command probability an utterance must reach.
const DefaultThreshold = 0.6

// Models resolves loaded models by name. ClassNames returns the optional
// name list for a model with integer classes, or nil.
type Models interface {
	Document(name string) (*inference.DocumentModel, error)
	Token(name string) (*inference.TokenModel, error)
	ClassNames(name string) []string
}

// Config names the models each stage uses. Empty intent or token names
// disable that stage.
type Config struct {
	BinaryModel string
	IntentModel string
	TokenModel  string
	Threshold   float64
}

// Intent is the top intent and its probability.
type Intent struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Result is the cascade outcome.
type Result struct {
	ProbCommand         float64                    `json:"prob_command"`
	IsCommand           bool                       `json:"is_command"`
	TopIntent           *Intent                    `json:"top_intent,omitempty"`
	IntentProbabilities map[string]float64         `json:"intent_probabilities,omitempty"`
	Slots               map[slots.Name]slots.Value `json:"slots,omitempty"`
	TokenPredictions    []slots.Prediction         `json:"token_predictions,omitempty"`
}

// Classifier runs the cascade against whatever models are currently loaded.
type Classifier struct {
	models Models
	cfg    Config
}

// New returns a Classifier. A non-positive threshold falls back to
// DefaultThreshold.
func New(models Models, cfg Config) *Classifier {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	return &Classifier{models: models, cfg: cfg}
}

// Threshold returns the configured command threshold.
func (c *Classifier) Threshold() float64 { return c.cfg.Threshold }

// Classify runs the cascade with the configured threshold.
func (c *Classifier) Classify(text string) (*Result, error) {
	return c.ClassifyWithThreshold(text, c.cfg.Threshold)
}

// ClassifyWithThreshold runs the cascade with an explicit command
// threshold, which must lie in (0, 1].
func (c *Classifier) ClassifyWithThreshold(text string, threshold float64) (*Result, error) {
	return c.Run(context.Background(), text, threshold)
}

// Run is ClassifyWithThreshold with a context. Each stage records a child
// span when ctx carries one, and a cancelled ctx stops the cascade between
// stages.
func (c *Classifier) Run(ctx context.Context, text string, threshold float64) (*Result, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 0, "threshold %v outside (0, 1]", threshold)
	}
	bin, err := c.models.Document(c.cfg.BinaryModel)
	if err != nil {
		return nil, fmt.Errorf("binary stage: %w", err)
	}
	if !bin.Binary() {
		return nil, apperrors.Newf(apperrors.ErrInvalidArtifact, 0, "model %q is not binary", c.cfg.BinaryModel)
	}

	_, span := tracing.StartChildSpan(ctx, "gate")
	p := bin.Classify(text)
	res := &Result{ProbCommand: p.Scores[1]}
	res.IsCommand = res.ProbCommand >= threshold
	span.SetAttr("prob_command", res.ProbCommand)
	span.End()
	if !res.IsCommand {
		return res, nil
	}

	if c.cfg.IntentModel != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, span := tracing.StartChildSpan(ctx, "intent")
		err := c.intent(text, res)
		span.End()
		if err != nil {
			return nil, err
		}
	}
	if c.cfg.TokenModel != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if tm, err := c.models.Token(c.cfg.TokenModel); err == nil {
			_, span := tracing.StartChildSpan(ctx, "slots")
			res.TokenPredictions = slots.Tag(tm, text)
			res.Slots = slots.Extract(text, res.TokenPredictions)
			span.SetAttr("slots", len(res.Slots))
			span.End()
		}
	}
	return res, nil
}

func (c *Classifier) intent(text string, res *Result) error {
	m, err := c.models.Document(c.cfg.IntentModel)
	if err != nil {
		// The intent stage is optional.
		return nil
	}
	names, err := artifact.ResolveClassNames(m.Labels(), c.models.ClassNames(c.cfg.IntentModel))
	if err != nil {
		return apperrors.Newf(apperrors.ErrInvalidArtifact, 0, "intent classes: %v", err)
	}
	p := m.Classify(text)
	res.IntentProbabilities = make(map[string]float64, len(names))
	for i, name := range names {
		res.IntentProbabilities[name] = p.Scores[i]
	}
	res.TopIntent = &Intent{Label: names[p.Index], Probability: p.Probability()}
	return nil
}
