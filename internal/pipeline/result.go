package pipeline

import (
	"github.com/fyrsmithlabs/archie/internal/matching"
	"github.com/fyrsmithlabs/archie/internal/publish"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusPublished      Status = "published"
	StatusIgnored        Status = "ignored"
	StatusNotExtractable Status = "not-extractable"
	StatusFailed         Status = "failed"
	StatusDryRun         Status = "dry-run"
)

// Result reports how a run ended. Every run produces one, failed runs
// included.
type Result struct {
	RunID          string          `json:"run_id"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Status         Status          `json:"status"`
	Action         matching.Action `json:"action,omitempty"`
	// Stage is the last stage reached, or the stage that failed.
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`

	Title           string   `json:"title,omitempty"`
	Category        string   `json:"category,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Confidence      float64  `json:"confidence,omitempty"`
	Rationale       string   `json:"rationale,omitempty"`
	ValueAssessment string   `json:"value_assessment,omitempty"`
	// MatchFallback is set when the match decision failed and CREATE was
	// used instead.
	MatchFallback bool `json:"match_fallback,omitempty"`

	FilePath             string          `json:"file_path,omitempty"`
	Content              string          `json:"content,omitempty"`
	ChangeRequest        *publish.Result `json:"change_request,omitempty"`
	ExistingDocumentLink string          `json:"existing_document_link,omitempty"`

	MessagesProcessed int `json:"messages_processed"`
	TextLength        int `json:"text_length,omitempty"`

	ErrorKind Kind   `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
	Err       error  `json:"-"`
}

func (r *Result) fail(se *StageError) {
	r.Status = StatusFailed
	r.Stage = se.Stage
	r.ErrorKind = se.Kind
	r.Error = se.Error()
	r.Err = se
}
