// Package slots turns per-token tagger output into named slot values such
// as the group or merchant an utterance mentions.
package slots

import (
	"math"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/inference"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/tokenfeat"
)

// Name identifies a slot.
type Name string

const (
	GroupName  Name = "groupName"
	Merchant   Name = "merchant"
	PaidByHint Name = "paidByHint"
	Note       Name = "note"
)

// Value is the text chosen for a slot and how confident the tagger was.
type Value struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Prediction is a tagged span of the original text.
type Prediction struct {
	tokenfeat.Span
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// ForLabel maps a tag such as B_MERCHANT onto its slot by suffix.
func ForLabel(label string) (Name, bool) {
	switch {
	case strings.HasSuffix(label, "GROUP"):
		return GroupName, true
	case strings.HasSuffix(label, "MERCHANT"):
		return Merchant, true
	case strings.HasSuffix(label, "PAYER"):
		return PaidByHint, true
	case strings.HasSuffix(label, "NOTE"):
		return Note, true
	default:
		return "", false
	}
}

func prefix(label string) string {
	p, _, _ := strings.Cut(label, "_")
	return p
}

// Tag segments text and labels every span with m. Probabilities are
// rounded to four decimals.
func Tag(m *inference.TokenModel, text string) []Prediction {
	spans := tokenfeat.Segment(text)
	if len(spans) == 0 {
		return []Prediction{}
	}
	preds := m.Predict(tokenfeat.Texts(spans))
	out := make([]Prediction, len(spans))
	for i, s := range spans {
		out[i] = Prediction{
			Span:        s,
			Label:       preds[i].Label,
			Probability: round(preds[i].Probability, 4),
		}
	}
	return out
}

type span struct {
	slot       Name
	start, end int
	probs      []float64
}

// Extract merges consecutive predictions into slot spans. A B_ prefix or a
// change of slot starts a new span; O or an unmapped label closes the
// current one. When a slot is found more than once the most confident span
// wins, and the earlier span wins a tie.
func Extract(text string, preds []Prediction) map[Name]Value {
	out := make(map[Name]Value)
	var active *span

	flush := func() {
		if active == nil {
			return
		}
		raw := strings.TrimSpace(text[active.start:active.end])
		if raw != "" {
			conf := round(mean(active.probs), 3)
			if cur, ok := out[active.slot]; !ok || conf > cur.Confidence {
				out[active.slot] = Value{Value: strings.Join(strings.Fields(raw), " "), Confidence: conf}
			}
		}
		active = nil
	}

	for _, p := range preds {
		slot, ok := ForLabel(p.Label)
		pre := prefix(p.Label)
		if !ok || pre == "O" {
			flush()
			continue
		}
		if pre == "B" || active == nil || active.slot != slot {
			flush()
			active = &span{slot: slot, start: p.Start, end: p.End, probs: []float64{p.Probability}}
			continue
		}
		active.end = p.End
		active.probs = append(active.probs, p.Probability)
	}
	flush()
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
