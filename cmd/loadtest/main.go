package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	RPS         float64
	Utterances  []string
}

var defaultUtterances = []string{
	"split the bill with the goa trip group",
	"I paid 450 for dinner at Toit",
	"settle up with Rahul",
	"add 1200 for cab to the airport",
	"what's the weather today",
	"remind me to call mom",
	"split ₹900 for groceries with flatmates",
	"who owes me money",
	"play some music",
	"Priya paid for the movie tickets",
	"log 300 for coffee at Third Wave",
	"how was your day",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the classifier service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	rps := flag.Float64("rps", 0, "overall request rate cap (0 for unlimited)")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		RPS:         *rps,
		Utterances:  defaultUtterances,
	}

	fmt.Println("=== Utterance Classifier Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Utterances:  %d unique\n", len(cfg.Utterances))
	fmt.Println()

	stats := runLoadTest(cfg)
	stats.Print(os.Stdout, cfg.Duration)
	if stats.totalRequests.Load() == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Concurrency)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			idx := workerID
			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				text := cfg.Utterances[idx%len(cfg.Utterances)]
				idx++
				r := send(ctx, client, cfg.BaseURL, text)
				if ctx.Err() != nil {
					return
				}
				stats.Record(r)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func send(ctx context.Context, client *http.Client, baseURL, text string) Result {
	body, _ := json.Marshal(map[string]string{"text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/utterances", bytes.NewReader(body))
	if err != nil {
		return Result{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return Result{Duration: time.Since(start), Err: err}
	}
	defer resp.Body.Close()

	var out struct {
		IsCommand bool `json:"is_command"`
	}
	if resp.StatusCode == http.StatusOK {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	io.Copy(io.Discard, resp.Body)
	return Result{
		Duration:   time.Since(start),
		StatusCode: resp.StatusCode,
		CacheHit:   resp.Header.Get("X-Cache") == "HIT",
		IsCommand:  out.IsCommand,
	}
}
