package classify

import (
	"context"
	"errors"
	"fmt"
	"log"

	"docstyler/internal/domain"
	"docstyler/internal/integrations/llm"
)

// ErrNoMarkers is returned when a run finishes with not a single marked record.
// It indicates a systemic problem (credentials, model, style set) rather than
// a hard document.
var ErrNoMarkers = errors.New("no paragraph received a marker")

const (
	StageClassify = "classify"
	StageRescue   = "rescue"
	StageDone     = "done"
)

// Event reports progress in [0,100] of the classification run.
type Event struct {
	Stage    string
	Progress int
	Message  string
}

type Observer func(Event)

type Result struct {
	Paragraphs []domain.Paragraph
	Stats      domain.Stats
	Residue    Residue
}

type Orchestrator struct {
	scheduler *Scheduler
	rescuer   *Rescuer
	observer  Observer
}

func NewOrchestrator(transport llm.Transport, styles *domain.StyleSet, settings Settings) *Orchestrator {
	client := NewClient(transport, styles, settings)
	return &Orchestrator{
		scheduler: NewScheduler(client, settings),
		rescuer:   NewRescuer(client, settings),
	}
}

// WithObserver sets the callback that receives progress events.
func (o *Orchestrator) WithObserver(fn Observer) *Orchestrator {
	o.observer = fn
	return o
}

func (o *Orchestrator) emit(stage string, progress int, format string, args ...any) {
	if o.observer == nil {
		return
	}
	o.observer(Event{Stage: stage, Progress: progress, Message: fmt.Sprintf(format, args...)})
}

// Run classifies a copy of paragraphs: primary pass, then a rescue pass when
// enough records are left unmarked. The returned sequence has the same length
// and order as the input. When nothing got marked Run returns the result
// together with ErrNoMarkers.
func (o *Orchestrator) Run(ctx context.Context, paragraphs []domain.Paragraph) (*Result, error) {
	records := domain.CloneAll(paragraphs)
	for i := range records {
		if records[i].Status == "" {
			records[i].Status = domain.StatusPending
		}
	}
	stats := domain.Stats{Total: len(records)}

	o.emit(StageClassify, 0, "classificando %d parágrafos", len(records))
	primary, err := o.scheduler.Run(ctx, records, func(done, total int) {
		o.emit(StageClassify, percent(done, total, 0, 80), "%d/%d parágrafos classificados", done, total)
	})
	ApplyPatches(records, primary.Patches)
	stats.Processed = primary.Processed
	stats.APICalls = primary.APICalls
	stats.FailedBatches = primary.FailedBatches
	stats.Usage.Add(primary.Usage)
	stats.Recount(records)
	if err != nil {
		return o.finish(records, stats), err
	}
	log.Printf("classify primary done total=%d marked=%d unmarked=%d api_calls=%d failed_batches=%d", stats.Total, stats.Marked, stats.Unmarked, stats.APICalls, stats.FailedBatches)

	o.emit(StageRescue, 80, "%d parágrafos sem marcação", stats.Unmarked)
	rescue, err := o.rescuer.Run(ctx, records, func(done, total int) {
		o.emit(StageRescue, percent(done, total, 80, 99), "segunda passada %d/%d", done, total)
	})
	ApplyPatches(records, rescue.Patches)
	stats.APICalls += rescue.Calls
	stats.RescueCalls = rescue.Calls
	stats.Rescued = len(rescue.Patches)
	stats.Usage.Add(rescue.Usage)
	stats.Recount(records)
	if err != nil {
		return o.finish(records, stats), err
	}

	result := o.finish(records, stats)
	log.Printf("classify done total=%d marked=%d unmarked=%d api_calls=%d rescue_calls=%d rescued=%d tokens=%d", stats.Total, stats.Marked, stats.Unmarked, stats.APICalls, stats.RescueCalls, stats.Rescued, stats.Usage.TotalTokens())
	if stats.Total > 0 && stats.Marked == 0 {
		if primary.LastErr != nil {
			return result, fmt.Errorf("%w: %d paragraphs, %d api calls, %d failed batches, last error: %w", ErrNoMarkers, stats.Total, stats.APICalls, stats.FailedBatches, primary.LastErr)
		}
		return result, fmt.Errorf("%w: %d paragraphs, %d api calls, %d failed batches", ErrNoMarkers, stats.Total, stats.APICalls, stats.FailedBatches)
	}
	o.emit(StageDone, 100, "%d de %d parágrafos marcados", stats.Marked, stats.Total)
	return result, nil
}

func (o *Orchestrator) finish(records []domain.Paragraph, stats domain.Stats) *Result {
	return &Result{
		Paragraphs: records,
		Stats:      stats,
		Residue:    AnalyzeResidue(records),
	}
}

func percent(done, total, from, to int) int {
	if total <= 0 {
		return to
	}
	return from + (to-from)*done/total
}
