// Package analytics tracks classification traffic: handlers emit one event
// per prediction, the collector batches them to Kafka and an in-process
// aggregator, and the aggregator serves rolling stats.
package analytics

import "time"

// EventType names the surface that produced a prediction.
type EventType string

const (
	EventClassify  EventType = "classify"
	EventTag       EventType = "tag"
	EventUtterance EventType = "utterance"
	EventReload    EventType = "model_reload"
)

// Source is the transport a prediction arrived on.
type Source string

const (
	SourceHTTP   Source = "http"
	SourceRPC    Source = "rpc"
	SourceStream Source = "stream"
)

// PredictionEvent describes one served prediction. Fields that do not apply
// to the event type are left zero.
type PredictionEvent struct {
	Type        EventType `json:"type"`
	Source      Source    `json:"source"`
	Model       string    `json:"model,omitempty"`
	Label       string    `json:"label,omitempty"`
	Probability float64   `json:"probability,omitempty"`
	IsCommand   bool      `json:"is_command,omitempty"`
	Intent      string    `json:"intent,omitempty"`
	Slots       []string  `json:"slots,omitempty"`
	Tokens      int       `json:"tokens,omitempty"`
	LatencyMs   int64     `json:"latency_ms"`
	CacheHit    bool      `json:"cache_hit"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
}
