package domain

import (
	"encoding/json"
	"time"
)

// Canonical pipeline stages, executed strictly in this order.
const (
	StageJDNormalize  = "A_JD_NORMALIZER"
	StageJDExtract    = "B_JD_EXTRACT"
	StageResumeParse  = "C_RESUME_PARSE"
	StageMatcherScore = "D_MATCHER_SCORER"
	StageRecommend    = "E_RECOMMEND"
	StageLatexAdapt   = "F_LATEX_ADAPT"
)

// StageOrder is the fixed, total execution order. Each stage's input is a
// pure function of prior stage outputs plus the original payloads and seed.
var StageOrder = []string{
	StageJDNormalize,
	StageJDExtract,
	StageResumeParse,
	StageMatcherScore,
	StageRecommend,
	StageLatexAdapt,
}

// JobPayload is the message body appended to the stream by producers.
// Both payloads are schemaless JSON objects; the worker and the pipeline
// read only the fields they understand.
type JobPayload struct {
	JobPayload     map[string]any `json:"job_payload"`
	ResumePayload  map[string]any `json:"resume_payload"`
	Seed           *int64         `json:"seed,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// Entry is one stream message as delivered by the broker.
type Entry struct {
	ID             string
	Payload        string // JSON-encoded JobPayload
	IdempotencyKey string
}

// DeadLetter is the durable record of a permanently failed entry.
type DeadLetter struct {
	OriginalID string `json:"original_id"`
	Payload    string `json:"payload"`
	Reason     string `json:"reason"`
}

// StageResult is a single stage's output. Stages produce free-form JSON
// objects; the well-known fields below are read through the helpers so a
// degraded or cached result behaves the same as a fresh one.
type StageResult map[string]any

// ErrorResult converts a stage failure into a terminal, contained result.
func ErrorResult(err error) StageResult {
	return StageResult{
		"error":         true,
		"error_message": err.Error(),
		"confidence":    0.0,
	}
}

// Errored reports whether this result records a contained stage failure.
func (r StageResult) Errored() bool {
	b, _ := r["error"].(bool)
	return b
}

// Number returns the named field as a float64 when it holds any JSON
// numeric representation.
func (r StageResult) Number(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Assessment is the final pipeline output. It is created once per run and
// never mutated afterward; score corrections are modelled as history
// appends by the repository, not as updates.
type Assessment struct {
	ID           string                 `json:"id"`
	CreatedAt    time.Time              `json:"created_at"`
	Stages       map[string]StageResult `json:"stages"`
	FinalScore   float64                `json:"final_score"`
	JobID        string                 `json:"job_id,omitempty"`
	ResumeID     string                 `json:"resume_id,omitempty"`
	Meta         map[string]any         `json:"meta"`
	AssessmentID *string                `json:"assessment_id"`
}
