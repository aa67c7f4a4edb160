package domain

// CitationType distinguishes the source kind of a citation.
type CitationType string

const (
	CitationRequirement CitationType = "requirement"
	CitationComponent   CitationType = "component"
	CitationSection     CitationType = "document_section"
)

// Citation is derived mechanically from graph rows or semantic passages,
// never parsed out of model prose.
type Citation struct {
	Type   CitationType `json:"type"`
	ID     string       `json:"id,omitempty"`
	Source string       `json:"source,omitempty"`
	Score  float64      `json:"score,omitempty"`
}

// AnswerMetadata is the caller-facing execution summary.
type AnswerMetadata struct {
	QueryPath         QueryPath   `json:"query_path"`
	RoutingConfidence float64     `json:"routing_confidence"`
	MatchedEntities   EntityMap   `json:"matched_entities"`
	ExtractedEntities EntityIDMap `json:"extracted_entities,omitempty"`
	QueryText         string      `json:"query_text,omitempty"`
	QueryMethod       string      `json:"query_method,omitempty"`
	FallbackReason    string      `json:"fallback_reason,omitempty"`
	ProcessingTimeMS  float64     `json:"processing_time_ms"`
	Language          string      `json:"language"`
	CacheHit          bool        `json:"cache_hit,omitempty"`
	Error             string      `json:"error,omitempty"`
}

// Answer is the core's output contract.
type Answer struct {
	Text      string         `json:"answer"`
	Citations []Citation     `json:"citations"`
	Metadata  AnswerMetadata `json:"metadata"`
}

// StreamEvent is one item of a streaming answer. Exactly one field is
// set. Citations and metadata arrive only after the final text chunk.
type StreamEvent struct {
	Status   string  `json:"status,omitempty"`
	Chunk    string  `json:"chunk,omitempty"`
	Done     *Answer `json:"done,omitempty"`
	ErrorMsg string  `json:"error,omitempty"`
}
