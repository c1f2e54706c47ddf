package rpcapi

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/service"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/utterance"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/rpc"
)

func dial(t *testing.T) *rpc.Client {
	t.Helper()
	cfg := config.Default().Models
	cfg.Dir = filepath.Join("..", "..", "artifact", "testdata")
	reg := registry.New(registry.NewFileSource(cfg))
	_, err := reg.Load(context.Background())
	require.NoError(t, err)
	svc := service.New(reg, service.Options{
		Cascade: utterance.Config{BinaryModel: "bin", IntentModel: "intent", TokenModel: "token"},
	})

	s := rpc.NewServer()
	Register(s, svc)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.ServeListener(ln)
	t.Cleanup(s.Stop)

	c, err := rpc.Dial(ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClassifyOverRPC(t *testing.T) {
	c := dial(t)
	var resp proto.ClassifyResponse
	require.NoError(t, c.Call(MethodClassify, proto.ClassifyRequest{Model: "intent", Text: "I paid"}, &resp))
	assert.Equal(t, "add_expense", resp.Label)

	err := c.Call(MethodClassify, proto.ClassifyRequest{Model: "ghost", Text: "x"}, &resp)
	assert.ErrorContains(t, err, "ghost")
}

func TestTagAndUtteranceOverRPC(t *testing.T) {
	c := dial(t)
	var tag proto.TagResponse
	require.NoError(t, c.Call(MethodTag, proto.TagRequest{Model: "token", Text: "at Goa trip"}, &tag))
	assert.Equal(t, []string{"O", "B_GROUP", "I_GROUP"}, tag.Labels)

	var res utterance.Result
	require.NoError(t, c.Call(MethodUtterance, proto.UtteranceRequest{Text: "weather today"}, &res))
	assert.False(t, res.IsCommand)

	var models proto.ModelsResponse
	require.NoError(t, c.Call(MethodModels, struct{}{}, &models))
	assert.Len(t, models.Models, 3)
}

func TestBadParams(t *testing.T) {
	c := dial(t)
	err := c.Call(MethodUtterance, "not an object", nil)
	assert.ErrorContains(t, err, "invalid input")
}
