package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/artifact"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/inference"
)

// loadedArtifact is a decoded artifact file of either kind.
type loadedArtifact struct {
	Kind     artifact.Kind
	Document *artifact.Document
	Token    *artifact.Token
}

func readArtifact(path string) (*loadedArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	kind, err := artifact.DetectKind(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	a := &loadedArtifact{Kind: kind}
	switch kind {
	case artifact.KindDocument:
		a.Document, err = artifact.DecodeDocument(data)
	case artifact.KindToken:
		a.Token, err = artifact.DecodeToken(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

func loadDocumentModel(path string) (*inference.DocumentModel, error) {
	a, err := artifact.LoadDocumentFile(path)
	if err != nil {
		return nil, err
	}
	return inference.LoadDocumentModel(a)
}

func loadTokenModel(path string) (*inference.TokenModel, error) {
	a, err := artifact.LoadTokenFile(path)
	if err != nil {
		return nil, err
	}
	return inference.LoadTokenModel(a)
}

func loadNames(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening class names: %w", err)
	}
	defer f.Close()
	return artifact.LoadClassNames(f)
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <artifact>...",
		Short: "Decode and validate artifact files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				a, err := readArtifact(path)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%s)\n", path, a.Kind)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d artifacts invalid", failed, len(args))
			}
			return nil
		},
	}
}

// artifactSummary is what inspect prints.
type artifactSummary struct {
	Kind        artifact.Kind `json:"kind"`
	Classes     []string      `json:"classes"`
	Binary      bool          `json:"binary,omitempty"`
	Vocabulary  int           `json:"vocabulary_size"`
	NGramRange  []int         `json:"ngram_range,omitempty"`
	Norm        string        `json:"norm,omitempty"`
	SublinearTF bool          `json:"sublinear_tf,omitempty"`
	StopWords   int           `json:"stop_words,omitempty"`
	TopFeatures []string      `json:"top_features,omitempty"`
}

func newInspectCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "inspect <artifact>",
		Short: "Print an artifact's classes, vocabulary size and settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := readArtifact(args[0])
			if err != nil {
				return err
			}
			s := artifactSummary{Kind: a.Kind}
			switch a.Kind {
			case artifact.KindDocument:
				d := a.Document
				s.Classes = d.ClassNames()
				s.Binary = d.IsBinary()
				s.Vocabulary = d.VocabularySize()
				s.NGramRange = []int{d.MinN(), d.MaxN()}
				s.Norm = d.Norm
				if s.Norm == "" {
					s.Norm = "l2"
				}
				s.SublinearTF = d.SublinearTF
				s.StopWords = len(d.StopWords)
				s.TopFeatures = firstTerms(d.Vocabulary, top)
			case artifact.KindToken:
				t := a.Token
				s.Classes = t.ClassNames()
				s.Vocabulary = t.FeatureCount()
				s.TopFeatures = firstTerms(t.Vocabulary, top)
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().IntVar(&top, "features", 0, "also list the first n vocabulary terms by column")
	return cmd
}

func firstTerms(vocab map[string]int, n int) []string {
	if n <= 0 {
		return nil
	}
	terms := make([]string, 0, len(vocab))
	for term := range vocab {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool { return vocab[terms[i]] < vocab[terms[j]] })
	return terms[:min(n, len(terms))]
}
