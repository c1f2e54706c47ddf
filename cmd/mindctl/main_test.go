package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/rpcapi"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/service"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/utterance"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/rpc"
)

func fixture(name string) string {
	return filepath.Join("..", "..", "internal", "artifact", "testdata", name)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidate(t *testing.T) {
	out, err := run(t, "validate", fixture("bin_manual.json"), fixture("token_manual.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "(document)")
	assert.Contains(t, out, "(token)")
}

func TestValidateReportsBadArtifact(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"idf":[1.0],"vocabulary":{}}`), 0o644))

	out, err := run(t, "validate", fixture("bin_manual.json"), bad)
	require.Error(t, err)
	assert.Contains(t, out, "FAIL "+bad)
	assert.Contains(t, err.Error(), "1 of 2")
}

func TestValidateRejectsDocumentMissingIDF(t *testing.T) {
	data, err := os.ReadFile(fixture("bin_manual.json"))
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	delete(fields, "idf")
	data, err = json.Marshal(fields)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "no_idf.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	out, err := run(t, "validate", path)
	require.Error(t, err)
	assert.Contains(t, out, "FAIL "+path)
	assert.Contains(t, out, "idf")
}

func TestInspect(t *testing.T) {
	out, err := run(t, "inspect", "--features", "3", fixture("bin_manual.json"))
	require.NoError(t, err)

	var s artifactSummary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, "document", string(s.Kind))
	assert.True(t, s.Binary)
	assert.Equal(t, 6, s.Vocabulary)
	assert.Equal(t, []int{1, 2}, s.NGramRange)
	assert.Equal(t, "l2", s.Norm)
	assert.Equal(t, []string{"split", "bill", "split bill"}, s.TopFeatures)
}

func TestClassify(t *testing.T) {
	out, err := run(t, "classify", "--model", fixture("intent_manual.json"),
		"--names", fixture("intent_classes.json"), "settle", "up", "with", "me")
	require.NoError(t, err)

	var resp proto.ClassifyResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "settle_up", resp.Label)
	assert.Equal(t, 1, resp.Index)
	assert.Len(t, resp.Scores, 3)
}

func TestClassifyRequiresModel(t *testing.T) {
	_, err := run(t, "classify", "hello")
	assert.Error(t, err)
}

func TestTag(t *testing.T) {
	out, err := run(t, "tag", "--model", fixture("token_manual.json"), "at Goa trip")
	require.NoError(t, err)

	var got tagOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Tokens, 3)
	assert.Equal(t, "B_GROUP", got.Tokens[1].Label)
	assert.Equal(t, "Goa trip", got.Slots["groupName"].Value)
}

func TestEvalBinary(t *testing.T) {
	data := filepath.Join(t.TempDir(), "data.jsonl")
	require.NoError(t, os.WriteFile(data, []byte(
		`{"text":"split the bill, I paid","label":"command","intent":"split_bill"}
{"text":"weather today","label":"non_command"}
`), 0o644))

	out, err := run(t, "eval", "--model", fixture("bin_manual.json"), "--data", data)
	require.NoError(t, err)
	assert.Contains(t, out, "command")
	assert.Contains(t, out, "accuracy")
}

func TestEvalTokensJSON(t *testing.T) {
	data := filepath.Join(t.TempDir(), "tokens.jsonl")
	require.NoError(t, os.WriteFile(data, []byte(
		`{"tokens":["at","Goa","trip"],"labels":["O","B_GROUP","I_GROUP"]}`+"\n"), 0o644))

	out, err := run(t, "eval", "--json", "--model", fixture("token_manual.json"), "--data", data)
	require.NoError(t, err)
	var r struct {
		Accuracy float64 `json:"accuracy"`
		Total    int     `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, 3, r.Total)
	assert.InDelta(t, 1.0, r.Accuracy, 1e-9)
}

func TestEvalRejectsUnknownMode(t *testing.T) {
	data := filepath.Join(t.TempDir(), "data.jsonl")
	require.NoError(t, os.WriteFile(data, []byte(`{"text":"x","label":"command"}`), 0o644))
	_, err := run(t, "eval", "--mode", "slots", "--model", fixture("bin_manual.json"), "--data", data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestRootCommands(t *testing.T) {
	var names []string
	for _, c := range newRootCmd().Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"validate", "inspect", "classify", "tag", "utterance", "eval", "publish", "versions", "activate", "keys", "stats"} {
		assert.Contains(t, names, want)
	}
}

func TestPublishNeedsNameAndFile(t *testing.T) {
	_, err := run(t, "publish", "--name", "bin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--name and --file are required")
}

func startService(t *testing.T) string {
	t.Helper()
	cfg := config.Default().Models
	cfg.Dir = filepath.Join("..", "..", "internal", "artifact", "testdata")
	reg := registry.New(registry.NewFileSource(cfg))
	_, err := reg.Load(context.Background())
	require.NoError(t, err)
	svc := service.New(reg, service.Options{
		Cascade: utterance.Config{BinaryModel: "bin", IntentModel: "intent", TokenModel: "token"},
	})

	s := rpc.NewServer()
	rpcapi.Register(s, svc)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.ServeListener(ln)
	t.Cleanup(s.Stop)
	return ln.Addr().String()
}

func TestRemoteCommands(t *testing.T) {
	addr := startService(t)

	out, err := run(t, "classify", "--addr", addr, "--model", "intent", "settle", "up", "with", "me")
	require.NoError(t, err)
	var cls proto.ClassifyResponse
	require.NoError(t, json.Unmarshal([]byte(out), &cls))
	assert.Equal(t, "settle_up", cls.Label)

	out, err = run(t, "tag", "--addr", addr, "--model", "token", "at Goa trip")
	require.NoError(t, err)
	var tag proto.TagResponse
	require.NoError(t, json.Unmarshal([]byte(out), &tag))
	assert.Equal(t, []string{"O", "B_GROUP", "I_GROUP"}, tag.Labels)

	out, err = run(t, "utterance", "--addr", addr, "weather", "today")
	require.NoError(t, err)
	var res utterance.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.IsCommand)

	_, err = run(t, "classify", "--addr", addr, "--model", "ghost", "x")
	assert.ErrorContains(t, err, "ghost")
}
