// Package proto defines the request and response messages shared by the
// HTTP API, the internal RPC layer (see pkg/rpc) and the streaming worker.
package proto

import "time"

// ---------- Classification ----------

// ClassifyRequest asks a document model to classify one text.
type ClassifyRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

// ClassifyResponse is the predicted label and per-class probabilities.
type ClassifyResponse struct {
	Model  string             `json:"model"`
	Label  string             `json:"label"`
	Index  int                `json:"index"`
	Scores map[string]float64 `json:"scores"`
	Cached bool               `json:"cached,omitempty"`
}

// TagRequest asks a token model to label a token sequence. When Tokens is
// empty, Text is segmented first.
type TagRequest struct {
	Model  string   `json:"model"`
	Tokens []string `json:"tokens,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// TagResponse holds one label, and its probability, per token.
type TagResponse struct {
	Model         string    `json:"model"`
	Tokens        []string  `json:"tokens"`
	Labels        []string  `json:"labels"`
	Probabilities []float64 `json:"probabilities"`
}

// UtteranceRequest runs the full cascade. A zero Threshold means the
// configured default.
type UtteranceRequest struct {
	Text      string  `json:"text"`
	Threshold float64 `json:"threshold,omitempty"`
}

// ---------- Models ----------

// ModelInfo describes a loaded model.
type ModelInfo struct {
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	Version    int       `json:"version,omitempty"`
	Checksum   string    `json:"checksum"`
	Classes    []string  `json:"classes"`
	Features   int       `json:"features"`
	NGramRange []int     `json:"ngram_range,omitempty"`
	LoadedAt   time.Time `json:"loaded_at"`
}

// ModelsResponse lists the loaded models.
type ModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ReloadResponse reports the outcome of a model reload.
type ReloadResponse struct {
	Loaded int      `json:"loaded"`
	Failed []string `json:"failed,omitempty"`
}

// ---------- Streaming ----------

// UtteranceMessage is consumed from the utterances topic.
type UtteranceMessage struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PredictionMessage is published to the predictions topic. Result is the
// cascade output; Error is set instead when the utterance was rejected.
type PredictionMessage struct {
	ID           string    `json:"id"`
	Result       any       `json:"result,omitempty"`
	Error        string    `json:"error,omitempty"`
	ClassifiedAt time.Time `json:"classified_at"`
}
