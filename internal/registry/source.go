// Package registry loads model artifacts from a Source, builds the
// inference models concurrently and serves them by name. A reload swaps the
// whole model set atomically; readers never see a half-loaded set.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/artifact"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/config"
)

// Entry is one raw artifact as stored by a Source.
type Entry struct {
	Name       string
	Kind       artifact.Kind
	Version    int
	Payload    []byte
	ClassNames []string
}

// Source yields the artifacts that should be live.
type Source interface {
	Fetch(ctx context.Context) ([]Entry, error)
}

// FileSource reads artifacts named in the config from a directory.
type FileSource struct {
	Dir   string
	Specs []config.ModelSpec
}

// NewFileSource returns a FileSource for the models section of the config.
func NewFileSource(cfg config.ModelsConfig) *FileSource {
	return &FileSource{Dir: cfg.Dir, Specs: cfg.Specs}
}

func (s *FileSource) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.Dir, p)
}

// Fetch reads every configured file. A missing or unreadable artifact fails
// the whole fetch; decoding happens later, per model.
func (s *FileSource) Fetch(ctx context.Context) ([]Entry, error) {
	entries := make([]Entry, 0, len(s.Specs))
	for _, spec := range s.Specs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		kind, err := artifact.ParseKind(spec.Kind)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", spec.Name, err)
		}
		payload, err := os.ReadFile(s.resolve(spec.Path))
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", spec.Name, err)
		}
		e := Entry{Name: spec.Name, Kind: kind, Payload: payload}
		if spec.ClassNames != "" {
			f, err := os.Open(s.resolve(spec.ClassNames))
			if err != nil {
				return nil, fmt.Errorf("model %s class names: %w", spec.Name, err)
			}
			e.ClassNames, err = artifact.LoadClassNames(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("model %s: %w", spec.Name, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}
