package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "utterance", "req-1")
	cctx, gate := StartChildSpan(ctx, "gate")
	gate.SetAttr("prob_command", 0.9)
	gate.End()
	_, nested := StartChildSpan(cctx, "nested")
	nested.End()
	root.End()

	require.Same(t, root, FromContext(ctx))
	children := root.Children()
	require.Len(t, children, 1)
	assert.Equal(t, "req-1", children[0].TraceID)
	assert.Len(t, children[0].Children(), 1)
	v, ok := gate.Attr("prob_command")
	require.True(t, ok)
	assert.Equal(t, 0.9, v)
}

func TestEndIsIdempotent(t *testing.T) {
	_, s := StartSpan(context.Background(), "x", "")
	s.End()
	d := s.Duration
	s.End()
	assert.Equal(t, d, s.Duration)
}

func TestDetachedChild(t *testing.T) {
	_, s := StartChildSpan(context.Background(), "orphan")
	assert.Empty(t, s.TraceID)
}

func TestLogOnlyAtDebug(t *testing.T) {
	var buf bytes.Buffer
	ctx, root := StartSpan(context.Background(), "root", "t")
	_, child := StartChildSpan(ctx, "child")
	child.End()
	root.End()

	root.Log(ctx, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	assert.Empty(t, buf.String())

	root.Log(ctx, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "msg=span"))
	assert.Contains(t, out, "span=child")
}
