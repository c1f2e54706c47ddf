package linear

import (
	"errors"
	"fmt"
	"math"
)

// Mode selects how multiclass logits turn into probabilities.
type Mode int

const (
	// Multinomial applies a softmax over all logits.
	Multinomial Mode = iota
	// OneVsRest applies a sigmoid per row and renormalises.
	OneVsRest
)

func (m Mode) String() string {
	switch m {
	case Multinomial:
		return "multinomial"
	case OneVsRest:
		return "ovr"
	default:
		return "unknown"
	}
}

// ParseMode maps the artifact's multi_class value onto a Mode. Empty means
// multinomial.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "multinomial", "auto":
		return Multinomial, nil
	case "ovr":
		return OneVsRest, nil
	default:
		return Multinomial, fmt.Errorf("unknown multi_class %q", s)
	}
}

// Scores is the output of a single decision.
type Scores struct {
	// Index is the predicted class position.
	Index int
	// Logits holds one raw decision value per weight row.
	Logits []float64
	// Probabilities holds one probability per class.
	Probabilities []float64
}

// Classifier is an immutable logistic-regression decision function. A single
// weight row with two classes is the binary case; otherwise there is one
// row per class.
type Classifier struct {
	weights    [][]float64
	bias       []float64
	numClasses int
	mode       Mode
}

// NewClassifier checks the shapes and returns a Classifier that owns the
// given slices. Callers must not mutate them afterwards.
func NewClassifier(weights [][]float64, bias []float64, numClasses int, mode Mode) (*Classifier, error) {
	if len(weights) == 0 {
		return nil, errors.New("classifier has no weight rows")
	}
	if len(bias) != len(weights) {
		return nil, fmt.Errorf("bias length %d does not match %d weight rows", len(bias), len(weights))
	}
	switch {
	case len(weights) == 1 && numClasses != 2:
		return nil, fmt.Errorf("binary classifier needs 2 classes, got %d", numClasses)
	case len(weights) > 1 && numClasses != len(weights):
		return nil, fmt.Errorf("%d weight rows but %d classes", len(weights), numClasses)
	}
	cols := len(weights[0])
	for i, row := range weights {
		if len(row) != cols {
			return nil, fmt.Errorf("weight row %d has %d columns, want %d", i, len(row), cols)
		}
	}
	return &Classifier{weights: weights, bias: bias, numClasses: numClasses, mode: mode}, nil
}

// NumClasses returns the size of the output alphabet.
func (c *Classifier) NumClasses() int { return c.numClasses }

// NumFeatures returns the number of weight columns.
func (c *Classifier) NumFeatures() int { return len(c.weights[0]) }

// Binary reports whether this is the one-row, two-class case.
func (c *Classifier) Binary() bool { return len(c.weights) == 1 }

// Score evaluates the decision function on x.
//
// Binary: p = sigmoid(w·x + b); the upper class wins when p >= 0.5, so an
// exact 0.5 resolves to index 1. Multiclass: the class with the largest
// logit wins and exact ties resolve to the lowest index.
func (c *Classifier) Score(x SparseVector) Scores {
	logits := make([]float64, len(c.weights))
	for i, row := range c.weights {
		logits[i] = x.Dot(row) + c.bias[i]
	}

	if c.Binary() {
		p := Sigmoid(logits[0])
		idx := 0
		if p >= 0.5 {
			idx = 1
		}
		return Scores{Index: idx, Logits: logits, Probabilities: []float64{1 - p, p}}
	}

	var probs []float64
	if c.mode == OneVsRest {
		probs = normalizedSigmoids(logits)
	} else {
		probs = Softmax(logits)
	}
	return Scores{Index: Argmax(logits), Logits: logits, Probabilities: probs}
}

// Sigmoid is the logistic function, evaluated so that neither branch
// overflows.
func Sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// Softmax returns exp(z_i - max) / sum_j exp(z_j - max).
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxLogit := logits[Argmax(logits)]
	out := make([]float64, len(logits))
	var sum float64
	for i, z := range logits {
		out[i] = math.Exp(z - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Argmax returns the index of the largest value; ties go to the lowest index.
func Argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

func normalizedSigmoids(logits []float64) []float64 {
	out := make([]float64, len(logits))
	var sum float64
	for i, z := range logits {
		out[i] = Sigmoid(z)
		sum += out[i]
	}
	if sum == 0 {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
