package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	apperrors "github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/errors"
)

// Kind names an artifact family.
type Kind string

const (
	KindDocument Kind = "document"
	KindToken    Kind = "token"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindDocument, KindToken:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown artifact kind %q", s)
	}
}

// EncodeDocument validates d and renders it as JSON.
func EncodeDocument(d *Document) ([]byte, error) {
	if err := ValidateDocument(d); err != nil {
		return nil, err
	}
	return marshal(d)
}

// DecodeDocument parses and validates a document artifact. Unknown fields
// are ignored.
func DecodeDocument(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: decoding document artifact: %v", apperrors.ErrInvalidArtifact, err)
	}
	if err := ValidateDocument(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// EncodeToken validates t and renders it as JSON.
func EncodeToken(t *Token) ([]byte, error) {
	if err := ValidateToken(t); err != nil {
		return nil, err
	}
	return marshal(t)
}

// DecodeToken parses and validates a token artifact.
func DecodeToken(data []byte) (*Token, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: decoding token artifact: %v", apperrors.ErrInvalidArtifact, err)
	}
	if f, ok := documentField(fields); ok {
		return nil, fmt.Errorf("%w: token artifact has document field %q", apperrors.ErrInvalidArtifact, f)
	}
	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: decoding token artifact: %v", apperrors.ErrInvalidArtifact, err)
	}
	if err := ValidateToken(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// documentOnlyFields are keys only a document artifact carries. Presence
// counts, even with a null value.
var documentOnlyFields = []string{
	"idf", "ngram_range", "max_features", "stop_words",
	"norm", "sublinear_tf", "binary", "multi_class",
}

func documentField(fields map[string]json.RawMessage) (string, bool) {
	for _, f := range documentOnlyFields {
		if _, ok := fields[f]; ok {
			return f, true
		}
	}
	return "", false
}

// DetectKind guesses the artifact family from its fields: any vectorizer
// field marks a document artifact, which then has to validate as one.
func DetectKind(data []byte) (Kind, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidArtifact, err)
	}
	if _, ok := documentField(fields); ok {
		return KindDocument, nil
	}
	return KindToken, nil
}

// LoadDocumentFile reads and decodes a document artifact from disk.
func LoadDocumentFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	d, err := DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// LoadTokenFile reads and decodes a token artifact from disk.
func LoadTokenFile(path string) (*Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	t, err := DecodeToken(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// LoadClassNames reads a JSON list of class names, as written next to an
// intent model whose classes are label-encoded integers.
func LoadClassNames(r io.Reader) ([]string, error) {
	var names []string
	if err := json.NewDecoder(r).Decode(&names); err != nil {
		return nil, fmt.Errorf("decoding class names: %w", err)
	}
	return names, nil
}

// WriteFile encodes an artifact and writes it to path.
func WriteFile(path string, v any) error {
	var (
		data []byte
		err  error
	)
	switch a := v.(type) {
	case *Document:
		data, err = EncodeDocument(a)
	case *Token:
		data, err = EncodeToken(a)
	default:
		return fmt.Errorf("unsupported artifact type %T", v)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// marshal renders JSON without HTML escaping so non-ASCII and symbol-bearing
// feature keys stay readable.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
