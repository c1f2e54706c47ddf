package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Stats accumulates request outcomes from concurrent workers.
type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64
	commands      atomic.Int64

	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
	}
}

// Result is one completed request.
type Result struct {
	Duration   time.Duration
	StatusCode int
	CacheHit   bool
	IsCommand  bool
	Err        error
}

func (s *Stats) Record(r Result) {
	s.totalRequests.Add(1)
	if r.Err != nil {
		s.errorCount.Add(1)
		return
	}
	if r.StatusCode >= 200 && r.StatusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}
	if r.CacheHit {
		s.cacheHits.Add(1)
	}
	if r.IsCommand {
		s.commands.Add(1)
	}

	s.mu.Lock()
	s.latencies = append(s.latencies, r.Duration)
	s.statusCodes[r.StatusCode]++
	s.mu.Unlock()
}

// Summary is the latency distribution of successful round trips.
type Summary struct {
	Min, Avg, P50, P90, P95, P99, Max, StdDev time.Duration
}

func (s *Stats) Summary() (Summary, bool) {
	s.mu.Lock()
	latencies := make([]time.Duration, len(s.latencies))
	copy(latencies, s.latencies)
	s.mu.Unlock()
	if len(latencies) == 0 {
		return Summary{}, false
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg := sum / time.Duration(len(latencies))
	var sumSquared float64
	for _, l := range latencies {
		diff := float64(l) - float64(avg)
		sumSquared += diff * diff
	}
	return Summary{
		Min:    latencies[0],
		Avg:    avg,
		P50:    percentile(latencies, 50),
		P90:    percentile(latencies, 90),
		P95:    percentile(latencies, 95),
		P99:    percentile(latencies, 99),
		Max:    latencies[len(latencies)-1],
		StdDev: time.Duration(math.Sqrt(sumSquared / float64(len(latencies)))),
	}, true
}

// percentile uses the nearest-rank method on sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

func (s *Stats) Print(w io.Writer, elapsed time.Duration) {
	total := s.totalRequests.Load()
	success := s.successCount.Load()
	errs := s.errorCount.Load()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", success)
	fmt.Fprintf(w, "Errors:          %d\n", errs)
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(errs)/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/elapsed.Seconds())
	}
	if success > 0 {
		fmt.Fprintf(w, "Cache Hit Rate:  %.2f%%\n", float64(s.cacheHits.Load())/float64(success)*100)
		fmt.Fprintf(w, "Command Rate:    %.2f%%\n", float64(s.commands.Load())/float64(success)*100)
	}

	if sum, ok := s.Summary(); ok {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", sum.Min)
		fmt.Fprintf(w, "Avg:    %s\n", sum.Avg)
		fmt.Fprintf(w, "P50:    %s\n", sum.P50)
		fmt.Fprintf(w, "P90:    %s\n", sum.P90)
		fmt.Fprintf(w, "P95:    %s\n", sum.P95)
		fmt.Fprintf(w, "P99:    %s\n", sum.P99)
		fmt.Fprintf(w, "Max:    %s\n", sum.Max)
		fmt.Fprintf(w, "StdDev: %s\n", sum.StdDev)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	s.mu.Lock()
	codes := make([]int, 0, len(s.statusCodes))
	for code := range s.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, s.statusCodes[code])
	}
	s.mu.Unlock()
}
