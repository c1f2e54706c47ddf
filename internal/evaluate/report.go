package evaluate

import (
	"fmt"
	"sort"
	"strings"
)

// ClassScore holds the metrics for one label.
type ClassScore struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report is a per-class classification report with overall accuracy and
// macro and support-weighted averages.
type Report struct {
	Classes     []ClassScore `json:"classes"`
	Accuracy    float64      `json:"accuracy"`
	MacroAvg    ClassScore   `json:"macro_avg"`
	WeightedAvg ClassScore   `json:"weighted_avg"`
	Total       int          `json:"total"`
}

// NewReport compares predictions with ground truth. Labels that occur only
// in predictions are listed with zero support. Undefined ratios are 0.
func NewReport(truth, pred []string) (*Report, error) {
	if len(truth) != len(pred) {
		return nil, fmt.Errorf("%d truths but %d predictions", len(truth), len(pred))
	}
	tp := map[string]int{}
	predicted := map[string]int{}
	support := map[string]int{}
	correct := 0
	for i := range truth {
		support[truth[i]]++
		predicted[pred[i]]++
		if truth[i] == pred[i] {
			tp[truth[i]]++
			correct++
		}
	}

	labels := make([]string, 0, len(support)+len(predicted))
	seen := map[string]bool{}
	for _, m := range []map[string]int{support, predicted} {
		for l := range m {
			if !seen[l] {
				seen[l] = true
				labels = append(labels, l)
			}
		}
	}
	sort.Strings(labels)

	r := &Report{Total: len(truth), MacroAvg: ClassScore{Label: "macro avg"}, WeightedAvg: ClassScore{Label: "weighted avg"}}
	if len(truth) > 0 {
		r.Accuracy = float64(correct) / float64(len(truth))
	}
	for _, l := range labels {
		c := ClassScore{
			Label:     l,
			Precision: ratio(tp[l], predicted[l]),
			Recall:    ratio(tp[l], support[l]),
			Support:   support[l],
		}
		if c.Precision+c.Recall > 0 {
			c.F1 = 2 * c.Precision * c.Recall / (c.Precision + c.Recall)
		}
		r.Classes = append(r.Classes, c)

		r.MacroAvg.Precision += c.Precision
		r.MacroAvg.Recall += c.Recall
		r.MacroAvg.F1 += c.F1
		w := float64(c.Support)
		r.WeightedAvg.Precision += w * c.Precision
		r.WeightedAvg.Recall += w * c.Recall
		r.WeightedAvg.F1 += w * c.F1
	}
	if n := float64(len(labels)); n > 0 {
		r.MacroAvg.Precision /= n
		r.MacroAvg.Recall /= n
		r.MacroAvg.F1 /= n
	}
	if t := float64(len(truth)); t > 0 {
		r.WeightedAvg.Precision /= t
		r.WeightedAvg.Recall /= t
		r.WeightedAvg.F1 /= t
	}
	r.MacroAvg.Support = len(truth)
	r.WeightedAvg.Support = len(truth)
	return r, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// String renders the report as an aligned text table.
func (r *Report) String() string {
	width := len("weighted avg")
	for _, c := range r.Classes {
		width = max(width, len(c.Label))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%*s %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	row := func(c ClassScore) {
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	for _, c := range r.Classes {
		row(c)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.Total)
	row(r.MacroAvg)
	row(r.WeightedAvg)
	return b.String()
}
