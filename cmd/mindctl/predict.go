package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/artifact"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/rpcapi"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/slots"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/utterance"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/rpc"
)

// callRemote makes one RPC call against a running classifier service.
func callRemote(addr, method string, params, result any) error {
	c, err := rpc.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Call(method, params, result); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func newClassifyCmd() *cobra.Command {
	var modelPath, namesPath, addr string
	cmd := &cobra.Command{
		Use:   "classify --model <artifact> <text>",
		Short: "Classify text with a document artifact",
		Long: `classify scores text with a local document artifact. With --addr it asks
a running classifier service instead, and --model names a loaded model.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if addr != "" {
				var resp proto.ClassifyResponse
				if err := callRemote(addr, rpcapi.MethodClassify, proto.ClassifyRequest{Model: modelPath, Text: text}, &resp); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			}
			m, err := loadDocumentModel(modelPath)
			if err != nil {
				return err
			}
			names, err := loadNames(namesPath)
			if err != nil {
				return err
			}
			labels, err := artifact.ResolveClassNames(m.Labels(), names)
			if err != nil {
				return err
			}
			p := m.Classify(text)
			scores := make(map[string]float64, len(labels))
			for i, l := range labels {
				scores[l] = p.Scores[i]
			}
			return printJSON(cmd.OutOrStdout(), proto.ClassifyResponse{
				Model:  modelPath,
				Label:  labels[p.Index],
				Index:  p.Index,
				Scores: scores,
			})
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "document artifact file, or model name with --addr")
	cmd.Flags().StringVar(&namesPath, "names", "", "JSON list of class names for integer classes")
	cmd.Flags().StringVar(&addr, "addr", "", "RPC address of a running classifier service")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

// tagOutput is what tag prints.
type tagOutput struct {
	Tokens []slots.Prediction         `json:"tokens"`
	Slots  map[slots.Name]slots.Value `json:"slots"`
}

func newTagCmd() *cobra.Command {
	var modelPath, addr string
	cmd := &cobra.Command{
		Use:   "tag --model <artifact> <text>",
		Short: "Segment text, tag each token and extract slots",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if addr != "" {
				var resp proto.TagResponse
				if err := callRemote(addr, rpcapi.MethodTag, proto.TagRequest{Model: modelPath, Text: text}, &resp); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			}
			m, err := loadTokenModel(modelPath)
			if err != nil {
				return err
			}
			preds := slots.Tag(m, text)
			return printJSON(cmd.OutOrStdout(), tagOutput{Tokens: preds, Slots: slots.Extract(text, preds)})
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "token artifact file, or model name with --addr")
	cmd.Flags().StringVar(&addr, "addr", "", "RPC address of a running classifier service")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func newUtteranceCmd() *cobra.Command {
	var addr string
	var threshold float64
	cmd := &cobra.Command{
		Use:   "utterance --addr <host:port> <text>",
		Short: "Run the command cascade on a running classifier service",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := proto.UtteranceRequest{Text: strings.Join(args, " "), Threshold: threshold}
			var res utterance.Result
			if err := callRemote(addr, rpcapi.MethodUtterance, req, &res); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "RPC address of a running classifier service")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "command threshold (0 uses the service default)")
	_ = cmd.MarkFlagRequired("addr")
	return cmd
}
