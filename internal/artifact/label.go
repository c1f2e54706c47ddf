package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ClassLabel is a class as exported by the trainer: either a JSON string or
// a JSON number. Name holds the label as text; Numeric records which form
// it arrived in so it re-encodes the same way.
type ClassLabel struct {
	Name    string
	Numeric bool
}

// StringLabel returns a string class label.
func StringLabel(name string) ClassLabel { return ClassLabel{Name: name} }

// IntLabel returns a numeric class label.
func IntLabel(n int) ClassLabel { return ClassLabel{Name: strconv.Itoa(n), Numeric: true} }

func (l ClassLabel) String() string { return l.Name }

// Int returns the label as an integer when it is numeric and integral.
func (l ClassLabel) Int() (int, bool) {
	if !l.Numeric {
		return 0, false
	}
	n, err := strconv.Atoi(l.Name)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (l ClassLabel) MarshalJSON() ([]byte, error) {
	if l.Numeric {
		if !json.Valid([]byte(l.Name)) {
			return nil, fmt.Errorf("numeric class label %q is not a JSON number", l.Name)
		}
		return []byte(l.Name), nil
	}
	return json.Marshal(l.Name)
}

func (l *ClassLabel) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = ClassLabel{Name: s}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("class label must be a string or number: %w", err)
	}
	if n == "" {
		return fmt.Errorf("class label must be a string or number, got %s", data)
	}
	*l = ClassLabel{Name: n.String(), Numeric: true}
	return nil
}

// Labels converts plain strings into class labels.
func Labels(names ...string) []ClassLabel {
	out := make([]ClassLabel, len(names))
	for i, n := range names {
		out[i] = StringLabel(n)
	}
	return out
}

// ResolveClassNames maps numeric class labels onto names[label]. String
// labels pass through unchanged. An empty names list returns the labels as
// rendered text.
func ResolveClassNames(classes []ClassLabel, names []string) ([]string, error) {
	out := make([]string, len(classes))
	for i, c := range classes {
		n, ok := c.Int()
		if !ok || len(names) == 0 {
			out[i] = c.Name
			continue
		}
		if n < 0 || n >= len(names) {
			return nil, fmt.Errorf("class %d has no name (have %d names)", n, len(names))
		}
		out[i] = names[n]
	}
	return out, nil
}
