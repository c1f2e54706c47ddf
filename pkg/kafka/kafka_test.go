package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/resilience"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.queue[0]
	r.queue = r.queue[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestConsumerCommitsHandledAndSkippedMessages(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Offset: 1, Value: []byte(`{"ok":true}`), Headers: []kafka.Header{{Key: RequestIDHeader, Value: []byte("req-1")}}},
		{Offset: 2, Value: []byte(`not json`)},
	}}
	var seenIDs []string
	handler := func(ctx context.Context, msg Message) error {
		seenIDs = append(seenIDs, logger.RequestID(ctx))
		_, err := DecodeJSON[struct {
			OK bool `json:"ok"`
		}](msg.Value)
		return err
	}

	c := NewConsumerWithReader(r, "utterances", handler)
	require.NoError(t, c.Start(context.Background()))

	assert.Equal(t, []int64{1, 2}, r.committed)
	assert.Equal(t, []string{"req-1", ""}, seenIDs)
}

func TestConsumerRetriesFailedOffsetBeforeMovingOn(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 10}, {Offset: 11}}}
	calls := map[int64]int{}
	var order []int64
	handler := func(_ context.Context, msg Message) error {
		calls[msg.Offset]++
		order = append(order, msg.Offset)
		if msg.Offset == 10 && calls[10] < 3 {
			return errors.New("model not loaded")
		}
		return nil
	}

	c := NewConsumerWithReader(r, "utterances", handler).
		WithBackoff(resilience.RetryConfig{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	require.NoError(t, c.Start(context.Background()))

	assert.Equal(t, map[int64]int{10: 3, 11: 1}, calls)
	assert.Equal(t, []int64{10, 10, 10, 11}, order)
	assert.Equal(t, []int64{10, 11}, r.committed)
}

func TestConsumerLeavesFailingOffsetUncommittedOnShutdown(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 20}, {Offset: 21}}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := map[int64]int{}
	handler := func(_ context.Context, msg Message) error {
		calls[msg.Offset]++
		if calls[msg.Offset] == 3 {
			cancel()
		}
		return errors.New("broker down")
	}

	c := NewConsumerWithReader(r, "utterances", handler).
		WithBackoff(resilience.RetryConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})
	require.NoError(t, c.Start(ctx))

	assert.Equal(t, map[int64]int{20: 3}, calls)
	assert.Empty(t, r.committed)
}

func TestDecodeJSONWrapsSkip(t *testing.T) {
	_, err := DecodeJSON[map[string]any]([]byte("{"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSkip)
}

func TestProducerCopiesRequestID(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "predictions")
	ctx := logger.WithRequestID(context.Background(), "abc")

	require.NoError(t, p.Publish(ctx, Event{Key: "u1", Value: map[string]int{"n": 1}}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "u1", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"n":1}`, string(w.msgs[0].Value))
	require.Len(t, w.msgs[0].Headers, 1)
	assert.Equal(t, "abc", string(w.msgs[0].Headers[0].Value))
}

func TestProducerBatchAndErrors(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "predictions")
	require.NoError(t, p.PublishBatch(context.Background(), nil))
	assert.Empty(t, w.msgs)

	require.NoError(t, p.PublishBatch(context.Background(), []Event{{Key: "a", Value: 1}, {Key: "b", Value: 2}}))
	assert.Len(t, w.msgs, 2)
	assert.Empty(t, w.msgs[0].Headers)

	err := p.Publish(context.Background(), Event{Key: "bad", Value: func() {}})
	assert.Error(t, err)

	w.err = errors.New("broker down")
	err = p.Publish(context.Background(), Event{Key: "c", Value: 3})
	assert.ErrorContains(t, err, "broker down")
}
