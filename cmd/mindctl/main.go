// Command mindctl inspects, evaluates and publishes classifier artifacts.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:   "mindctl",
		Short: "Inspect, evaluate and publish utterance classifier artifacts",
		Long: `mindctl works with exported classifier artifacts.

Examples:
  mindctl validate models/bin_manual.json
  mindctl inspect models/intent_manual.json
  mindctl classify --model models/bin_manual.json "split the bill"
  mindctl tag --model models/token_manual.json "dinner at Goa trip"
  mindctl utterance --addr localhost:9091 "split dinner with the Goa trip"
  mindctl eval --model models/bin_manual.json --data data/utterances.jsonl
  mindctl publish --name bin --file models/bin_manual.json
  mindctl keys create --name deploy --scope models:reload`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetupWriter(cmd.ErrOrStderr(), logLevel, "text")
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newValidateCmd(),
		newInspectCmd(),
		newClassifyCmd(),
		newTagCmd(),
		newUtteranceCmd(),
		newEvalCmd(),
		newPublishCmd(),
		newVersionsCmd(),
		newActivateCmd(),
		newKeysCmd(),
		newStatsCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
