package analytics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, events)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	agg.Record(PredictionEvent{Type: EventUtterance, Source: SourceHTTP, IsCommand: true, Intent: "split_bill", Slots: []string{"merchant"}, LatencyMs: 4})
	agg.Record(PredictionEvent{Type: EventUtterance, Source: SourceStream, IsCommand: true, Intent: "split_bill", Slots: []string{"merchant", "groupName"}, LatencyMs: 2, CacheHit: true})
	agg.Record(PredictionEvent{Type: EventUtterance, Source: SourceHTTP, LatencyMs: 1})
	agg.Record(PredictionEvent{Type: EventClassify, Source: SourceRPC, Model: "intent", Label: "settle_up", LatencyMs: 3})
	agg.Record(PredictionEvent{Type: EventTag, Source: SourceHTTP, Error: "boom"})
	agg.Record(PredictionEvent{Type: EventReload})

	s := agg.Stats()
	assert.Equal(t, int64(5), s.TotalPredictions)
	assert.Equal(t, int64(3), s.ByType[EventUtterance])
	assert.Equal(t, int64(3), s.BySource[SourceHTTP])
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(3), s.CacheMisses)
	assert.Equal(t, int64(2), s.Commands)
	assert.InDelta(t, 2.0/3.0, s.CommandRate, 1e-9)
	assert.Equal(t, []LabelCount{{Label: "split_bill", Count: 2}}, s.TopIntents)
	assert.Equal(t, []LabelCount{{Label: "intent:settle_up", Count: 1}}, s.TopLabels)
	assert.Equal(t, int64(2), s.SlotFills["merchant"])
	assert.Equal(t, int64(1), s.Reloads)
	assert.InDelta(t, 2.5, s.AvgLatencyMs, 1e-9)
	assert.Equal(t, int64(3), s.P50LatencyMs)
	assert.Equal(t, int64(4), s.P99LatencyMs)
}

func TestAggregatorLatencyWindow(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < latencyWindow+10; i++ {
		agg.Record(PredictionEvent{Type: EventClassify, LatencyMs: int64(i)})
	}
	assert.Len(t, agg.latencies, latencyWindow)
	assert.Equal(t, int64(10), slices.Min(agg.latencies))
	assert.Equal(t, int64(latencyWindow+9), slices.Max(agg.latencies))
}

func TestTopNTieBreak(t *testing.T) {
	got := topN(map[string]int64{"b": 2, "a": 2, "c": 5}, 2)
	assert.Equal(t, []LabelCount{{"c", 5}, {"a", 2}}, got)
}

func TestHandleEventSkipsGarbage(t *testing.T) {
	agg := NewAggregator()
	h := HandleEvent(agg)
	err := h(context.Background(), kafka.Message{Value: []byte("nope")})
	assert.ErrorIs(t, err, kafka.ErrSkip)

	require.NoError(t, h(context.Background(), kafka.Message{Value: []byte(`{"type":"classify","model":"bin","label":"1","latency_ms":2}`)}))
	assert.Equal(t, int64(1), agg.Stats().TotalPredictions)
}

func TestCollectorFlushesOnBatchSize(t *testing.T) {
	pub := &fakePublisher{}
	agg := NewAggregator()
	c := NewCollector(pub, agg, 2, time.Hour)

	c.Track(PredictionEvent{Type: EventClassify, Model: "bin"})
	c.Track(PredictionEvent{Type: EventClassify, Model: "bin"})

	assert.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), agg.Stats().TotalPredictions)
}

func TestCollectorFinalFlushOnShutdown(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, nil, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	c.Track(PredictionEvent{Type: EventTag})
	cancel()
	<-c.Done()
	assert.Equal(t, 1, pub.count())
	assert.Zero(t, c.Buffered())
}

func TestCollectorRequeuesOnFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	c := NewCollector(pub, nil, 100, time.Hour)
	for i := 0; i < 3; i++ {
		c.Track(PredictionEvent{Type: EventTag})
	}
	c.Flush(context.Background())
	assert.Equal(t, 3, c.Buffered())

	pub.err = nil
	c.Flush(context.Background())
	assert.Zero(t, c.Buffered())
	assert.Equal(t, 3, pub.count())
}

func TestCollectorWithoutPublisher(t *testing.T) {
	agg := NewAggregator()
	c := NewCollector(nil, agg, 1, time.Hour)
	c.Track(PredictionEvent{Type: EventClassify})
	assert.Zero(t, c.Buffered())
	assert.Equal(t, int64(1), agg.Stats().TotalPredictions)
}

func TestHandlerServesStats(t *testing.T) {
	agg := NewAggregator()
	agg.Record(PredictionEvent{Type: EventUtterance, IsCommand: true})
	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_predictions":1`)
}

type fakeHistory struct {
	limit     int
	snapshots []Stats
	err       error
}

func (f *fakeHistory) ListSnapshots(_ context.Context, limit int) ([]Stats, error) {
	f.limit = limit
	return f.snapshots, f.err
}

func TestHandlerHistory(t *testing.T) {
	hist := &fakeHistory{snapshots: []Stats{{TotalPredictions: 7}, {TotalPredictions: 3}}}
	h := NewHandler(NewAggregator()).WithHistory(hist)

	rec := httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history?limit=5000", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxHistoryLimit, hist.limit)
	assert.Contains(t, rec.Body.String(), `"count":2`)

	rec = httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	hist.err = errors.New("db down")
	rec = httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, defaultHistoryLimit, hist.limit)
}

func TestHandlerHistoryDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(NewAggregator()).History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
