package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/artifact"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/evaluate"
)

func newEvalCmd() *cobra.Command {
	var modelPath, dataPath, namesPath, mode string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "eval --model <artifact> --data <jsonl>",
		Short: "Score an artifact against a labeled JSONL dataset",
		Long: `eval prints per-class precision, recall and F1.

Document artifacts read {"text","label","intent"} lines. A binary model is
scored on command vs other; a multiclass model on the intent of command
lines. Token artifacts read {"tokens","labels"} lines.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := readArtifact(modelPath)
			if err != nil {
				return err
			}
			f, err := os.Open(dataPath)
			if err != nil {
				return fmt.Errorf("opening dataset: %w", err)
			}
			defer f.Close()

			var report *evaluate.Report
			if a.Kind == artifact.KindToken {
				examples, err := evaluate.ReadTokens(f)
				if err != nil {
					return err
				}
				m, err := loadTokenModel(modelPath)
				if err != nil {
					return err
				}
				report, err = evaluate.Tokens(m, examples)
				if err != nil {
					return err
				}
			} else {
				examples, err := evaluate.ReadDocuments(f)
				if err != nil {
					return err
				}
				m, err := loadDocumentModel(modelPath)
				if err != nil {
					return err
				}
				if mode == "" {
					mode = "intent"
					if m.Binary() {
						mode = "binary"
					}
				}
				switch mode {
				case "binary":
					report, err = evaluate.Binary(m, examples)
				case "intent":
					names, nerr := loadNames(namesPath)
					if nerr != nil {
						return nerr
					}
					report, err = evaluate.Intent(m, names, examples)
				default:
					return fmt.Errorf("unknown mode %q, want binary or intent", mode)
				}
				if err != nil {
					return err
				}
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), report)
			}
			fmt.Fprint(cmd.OutOrStdout(), report.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "artifact file")
	cmd.Flags().StringVar(&dataPath, "data", "", "JSONL dataset")
	cmd.Flags().StringVar(&namesPath, "names", "", "JSON list of intent names for integer classes")
	cmd.Flags().StringVar(&mode, "mode", "", "binary or intent (default: from the model)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}
