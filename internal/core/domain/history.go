package domain

import "time"

// AnswerRecord is the persisted trace of one answered question.
type AnswerRecord struct {
	ID             string    `json:"id"`
	Question       string    `json:"question"`
	Language       string    `json:"language"`
	QueryPath      QueryPath `json:"query_path"`
	Confidence     float64   `json:"confidence"`
	FallbackReason string    `json:"fallback_reason,omitempty"`
	CitationCount  int       `json:"citation_count"`
	DurationMS     float64   `json:"duration_ms"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// QuestionEnvelope carries an asynchronously submitted question.
type QuestionEnvelope struct {
	ID           string `json:"id"`
	Question     string `json:"question"`
	ReplySubject string `json:"reply_subject,omitempty"`
}
