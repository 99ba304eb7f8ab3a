package domain

import "time"

const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// RunRecord is one processed document as persisted in the run history.
type RunRecord struct {
	ID          string
	BookName    string
	SourcePath  string
	SourceHash  string
	OutputPath  string
	ArchivePath string
	Status      string
	FailedStage string
	Error       string
	LLMProvider string
	LLMModel    string
	Stats       Stats
	StartedAt   time.Time
	FinishedAt  time.Time
}

func (r RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

type ParagraphMarker struct {
	RunID          string
	ParagraphIndex int
	Kind           Kind
	Status         Status
	Markers        []string
	Excerpt        string
}
