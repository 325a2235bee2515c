package domain

import (
	"errors"
	"time"
)

// ImageTask is one unit of work: a prepared image ready for recognition.
type ImageTask struct {
	SourcePath string // File the image came from
	Name       string // Display name used in reports, e.g. "a.png" or "scan.pdf#2"
	PageNumber int    // 1-based position in the batch
	Data       []byte // Encoded image submitted to the service
	MIMEType   string
}

// PageImage represents a single rendered PDF page
type PageImage struct {
	PageNumber int
	ImagePath  string // Path to temporary JPG file
	Width      int
	Height     int
}

// RecognitionRequest is the payload for one call to the recognition service.
type RecognitionRequest struct {
	Image      []byte
	MIMEType   string
	Prompt     string
	Model      string
	SourceName string // Used to name debug artifacts
}

// ExtractionResult is the recorded outcome for one processed image.
// Exactly one of Text or ErrorMessage is meaningful, depending on Success.
type ExtractionResult struct {
	PageNumber   int       `json:"page_number"`
	FileName     string    `json:"file_name"`
	SourcePath   string    `json:"source_path"`
	Success      bool      `json:"success"`
	Text         string    `json:"text,omitempty"`
	ErrorKind    ErrorType `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// NewSuccessResult records extracted text for a task.
func NewSuccessResult(task ImageTask, text string, at time.Time) ExtractionResult {
	return ExtractionResult{
		PageNumber:  task.PageNumber,
		FileName:    task.Name,
		SourcePath:  task.SourcePath,
		Success:     true,
		Text:        text,
		ProcessedAt: at,
	}
}

// NewFailureResult records a failed task. Errors without a DomainError in
// their chain are reported as api failures.
func NewFailureResult(task ImageTask, err error, at time.Time) ExtractionResult {
	kind := ErrorTypeAPI
	msg := err.Error()
	var de *DomainError
	if errors.As(err, &de) {
		kind = de.Type
		msg = de.Description()
	}
	return ExtractionResult{
		PageNumber:   task.PageNumber,
		FileName:     task.Name,
		SourcePath:   task.SourcePath,
		Success:      false,
		ErrorKind:    kind,
		ErrorMessage: msg,
		ProcessedAt:  at,
	}
}

// RunSummary holds aggregate counters and metadata for one batch execution.
type RunSummary struct {
	RunID       string
	Provider    string
	Model       string
	PromptStyle string
	InputDir    string
	StartedAt   time.Time
	FinishedAt  time.Time
	Total       int
	Successes   int
	Errors      int
}

// Record updates the counters for one result.
func (s *RunSummary) Record(r ExtractionResult) {
	s.Total++
	if r.Success {
		s.Successes++
	} else {
		s.Errors++
	}
}

// Duration is the wall time of the run.
func (s RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// BatchResult is everything a run produced, in enumeration order.
type BatchResult struct {
	Summary RunSummary
	Results []ExtractionResult
}

// Failed returns the failed results, preserving order.
func (b *BatchResult) Failed() []ExtractionResult {
	var out []ExtractionResult
	for _, r := range b.Results {
		if !r.Success {
			out = append(out, r)
		}
	}
	return out
}

// EventType represents the type of stream event
type EventType string

const (
	EventStart          EventType = "start"
	EventPageProcessing EventType = "page_processing"
	EventPageComplete   EventType = "page_complete"
	EventError          EventType = "error"
	EventComplete       EventType = "complete"
)

// StreamEvent represents an event emitted during processing
type StreamEvent struct {
	Type       EventType   `json:"type"`
	PageNumber int         `json:"page_number,omitempty"`
	Total      int         `json:"total,omitempty"`
	Payload    interface{} `json:"payload,omitempty"` // Status message or error text
	Timestamp  time.Time   `json:"timestamp"`
}
