// Package evaluate scores loaded models against labeled JSONL data and
// produces per-class precision, recall and F1 reports.
package evaluate

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/errors"
)

const maxLineBytes = 1 << 20

// DocumentExample is one line of an utterance dataset. Label is "command"
// for commands; Intent is set only on commands.
type DocumentExample struct {
	Text   string `json:"text"`
	Label  string `json:"label"`
	Intent string `json:"intent,omitempty"`
}

// IsCommand reports whether the example is labeled as a command.
func (e DocumentExample) IsCommand() bool {
	return strings.EqualFold(e.Label, "command")
}

// TokenExample is one line of a token dataset.
type TokenExample struct {
	Tokens []string `json:"tokens"`
	Labels []string `json:"labels"`
}

// ReadDocuments parses an utterance dataset. Blank lines are skipped.
func ReadDocuments(r io.Reader) ([]DocumentExample, error) {
	var out []DocumentExample
	err := eachLine(r, func(line int, data []byte) error {
		var ex DocumentExample
		if err := json.Unmarshal(data, &ex); err != nil {
			return fmt.Errorf("%w: line %d: %v", apperrors.ErrInvalidInput, line, err)
		}
		if ex.Label == "" {
			return fmt.Errorf("%w: line %d: missing label", apperrors.ErrInvalidInput, line)
		}
		out = append(out, ex)
		return nil
	})
	return out, err
}

// ReadTokens parses a token dataset. Every line must carry as many labels
// as tokens.
func ReadTokens(r io.Reader) ([]TokenExample, error) {
	var out []TokenExample
	err := eachLine(r, func(line int, data []byte) error {
		var ex TokenExample
		if err := json.Unmarshal(data, &ex); err != nil {
			return fmt.Errorf("%w: line %d: %v", apperrors.ErrInvalidInput, line, err)
		}
		if len(ex.Tokens) != len(ex.Labels) {
			return fmt.Errorf("%w: line %d: %d tokens but %d labels",
				apperrors.ErrInvalidInput, line, len(ex.Tokens), len(ex.Labels))
		}
		out = append(out, ex)
		return nil
	})
	return out, err
}

func eachLine(r io.Reader, fn func(line int, data []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		data := bytes.TrimSpace(sc.Bytes())
		if len(data) == 0 {
			continue
		}
		if err := fn(line, data); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading dataset: %w", err)
	}
	return nil
}
