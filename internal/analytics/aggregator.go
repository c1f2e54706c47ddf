package analytics

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/kafka"
)

const latencyWindow = 10000

// Stats is a point-in-time summary of recorded predictions.
type Stats struct {
	TotalPredictions int64               `json:"total_predictions"`
	ByType           map[EventType]int64 `json:"by_type"`
	BySource         map[Source]int64    `json:"by_source"`
	Errors           int64               `json:"errors"`
	CacheHits        int64               `json:"cache_hits"`
	CacheMisses      int64               `json:"cache_misses"`
	Commands         int64               `json:"commands"`
	NonCommands      int64               `json:"non_commands"`
	CommandRate      float64             `json:"command_rate"`
	AvgLatencyMs     float64             `json:"avg_latency_ms"`
	P50LatencyMs     int64               `json:"p50_latency_ms"`
	P95LatencyMs     int64               `json:"p95_latency_ms"`
	P99LatencyMs     int64               `json:"p99_latency_ms"`
	TopIntents       []LabelCount        `json:"top_intents"`
	TopLabels        []LabelCount        `json:"top_labels"`
	SlotFills        map[string]int64    `json:"slot_fills"`
	Reloads          int64               `json:"reloads"`
	PerMinute        float64             `json:"predictions_per_minute"`
	CapturedAt       time.Time           `json:"captured_at"`
}

// LabelCount is one entry of a top-N list.
type LabelCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// Aggregator folds prediction events into running counters. Latency
// percentiles cover the most recent events only.
type Aggregator struct {
	mu        sync.Mutex
	total     int64
	byType    map[EventType]int64
	bySource  map[Source]int64
	errors    int64
	hits      int64
	misses    int64
	commands  int64
	nonCmds   int64
	reloads   int64
	latencies []int64
	next      int
	intents   map[string]int64
	labels    map[string]int64
	slotFills map[string]int64
	startTime time.Time
	now       func() time.Time

	logger *slog.Logger
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		byType:    make(map[EventType]int64),
		bySource:  make(map[Source]int64),
		latencies: make([]int64, 0, 1024),
		intents:   make(map[string]int64),
		labels:    make(map[string]int64),
		slotFills: make(map[string]int64),
		startTime: time.Now(),
		now:       time.Now,
		logger:    slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent adapts the aggregator to a Kafka consumer of the analytics
// topic. Undecodable events are skipped.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		event, err := kafka.DecodeJSON[PredictionEvent](msg.Value)
		if err != nil {
			agg.logger.Warn("failed to decode analytics event", "offset", msg.Offset, "error", err)
			return err
		}
		agg.Record(event)
		return nil
	}
}

// Record folds one event into the running stats.
func (a *Aggregator) Record(event PredictionEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Type == EventReload {
		a.reloads++
		return
	}
	a.total++
	a.byType[event.Type]++
	if event.Source != "" {
		a.bySource[event.Source]++
	}
	if event.Error != "" {
		a.errors++
		return
	}
	if event.CacheHit {
		a.hits++
	} else {
		a.misses++
	}

	switch event.Type {
	case EventUtterance:
		if event.IsCommand {
			a.commands++
		} else {
			a.nonCmds++
		}
		if event.Intent != "" {
			a.intents[event.Intent]++
		}
		for _, s := range event.Slots {
			a.slotFills[s]++
		}
	case EventClassify:
		if event.Label != "" {
			a.labels[event.Model+":"+event.Label]++
		}
	}

	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % latencyWindow
	}
}

// Stats returns a snapshot of the running stats.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	stats := Stats{
		TotalPredictions: a.total,
		ByType:           cloneMap(a.byType),
		BySource:         cloneMap(a.bySource),
		Errors:           a.errors,
		CacheHits:        a.hits,
		CacheMisses:      a.misses,
		Commands:         a.commands,
		NonCommands:      a.nonCmds,
		Reloads:          a.reloads,
		TopIntents:       topN(a.intents, 10),
		TopLabels:        topN(a.labels, 10),
		SlotFills:        cloneMap(a.slotFills),
		CapturedAt:       now.UTC(),
	}
	if n := a.commands + a.nonCmds; n > 0 {
		stats.CommandRate = float64(a.commands) / float64(n)
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if elapsed := now.Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.PerMinute = float64(a.total) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count descending, then label ascending.
func topN(counts map[string]int64, n int) []LabelCount {
	result := make([]LabelCount, 0, len(counts))
	for label, count := range counts {
		result = append(result, LabelCount{Label: label, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Label < result[j].Label
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

func cloneMap[K comparable](m map[K]int64) map[K]int64 {
	out := make(map[K]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
