package classify

import (
	"context"
	"errors"
	"testing"

	"docstyler/internal/domain"
	"docstyler/internal/integrations/llm"
)

func newTestOrchestrator(tr *scriptedTransport, settings Settings) *Orchestrator {
	o := NewOrchestrator(tr, testStyleSet(), settings)
	rec := &pauseRecorder{}
	o.scheduler.sleep = rec.sleep
	o.rescuer.sleep = rec.sleep
	return o
}

func TestOrchestratorCleanRun(t *testing.T) {
	tr := &scriptedTransport{fallback: answer("QUESTAO")}
	var events []Event
	o := newTestOrchestrator(tr, testSettings()).WithObserver(func(e Event) { events = append(events, e) })

	input := makeParagraphs(300)
	result, err := o.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	s := result.Stats
	if s.Total != 300 || s.Marked != 300 || s.Unmarked != 0 || s.APICalls != 2 || s.FailedBatches != 0 || s.RescueCalls != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}
	if result.Paragraphs[0].Markers[0] != "[[QUESTAO]]" || result.Paragraphs[0].Status != domain.StatusClassified {
		t.Fatalf("unexpected record %+v", result.Paragraphs[0])
	}
	if input[0].Marked() {
		t.Fatal("orchestrator mutated the caller's slice")
	}
	if len(events) == 0 || events[len(events)-1].Stage != StageDone || events[len(events)-1].Progress != 100 {
		t.Fatalf("unexpected events %+v", events)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Progress < events[i-1].Progress {
			t.Fatalf("progress went backwards: %+v", events)
		}
	}
}

func TestOrchestratorShrinkThenRescue(t *testing.T) {
	tr := &scriptedTransport{
		byCall:   map[int]func([]int) (string, error){0: failWith(errors.New("timeout"))},
		fallback: answer("[[ALTERNATIVA]]"),
	}
	result, err := newTestOrchestrator(tr, testSettings()).Run(context.Background(), makeParagraphs(150))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	s := result.Stats
	// 2 primary attempts, then 75 pending records rescued in 4 sub-batches.
	if s.RescueCalls != 4 || s.APICalls != 6 || s.Rescued != 75 {
		t.Fatalf("unexpected stats %+v", s)
	}
	if s.Marked != 150 || s.Unmarked != 0 || len(result.Paragraphs) != 150 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestOrchestratorSystemicFailure(t *testing.T) {
	tr := &scriptedTransport{fallback: answer("")}
	result, err := newTestOrchestrator(tr, testSettings()).Run(context.Background(), makeParagraphs(40))
	if !errors.Is(err, ErrNoMarkers) {
		t.Fatalf("expected ErrNoMarkers, got %v", err)
	}
	if result == nil || result.Stats.Marked != 0 || len(result.Paragraphs) != 40 {
		t.Fatalf("result should still be returned: %+v", result)
	}
	if result.Stats.RescueCalls != 2 {
		t.Fatalf("rescue should have run: %+v", result.Stats)
	}
	if result.Residue.RealContent != 40 {
		t.Fatalf("unexpected residue %+v", result.Residue)
	}
}

func TestOrchestratorAllBatchesFail(t *testing.T) {
	unauthorized := &llm.StatusError{Provider: "openai", StatusCode: 401, Body: "bad key"}
	tr := &scriptedTransport{fallback: failWith(unauthorized)}
	result, err := newTestOrchestrator(tr, testSettings()).Run(context.Background(), makeParagraphs(12))
	if !errors.Is(err, ErrNoMarkers) {
		t.Fatalf("expected ErrNoMarkers, got %v", err)
	}
	var statusErr *llm.StatusError
	if !errors.As(err, &statusErr) || !statusErr.Unauthorized() {
		t.Fatalf("systemic failure should carry the transport cause, got %v", err)
	}
	if result.Stats.FailedBatches != 1 || result.Paragraphs[0].Status != domain.StatusFailed {
		t.Fatalf("unexpected result %+v", result.Stats)
	}
}

func TestAnalyzeResidue(t *testing.T) {
	paragraphs := []domain.Paragraph{
		{Index: 0, Text: "   "},
		{Index: 1, Text: "Fig. 3"},
		{Index: 2, Text: "----- 12 -----"},
		{Index: 3, Text: "Texto real que o modelo deixou passar."},
		{Index: 4, Text: "Marcado", Markers: []string{"[[QUESTAO]]"}},
	}
	r := AnalyzeResidue(paragraphs)
	if r.Empty != 1 || r.VeryShort != 1 || r.Formatting != 1 || r.RealContent != 1 {
		t.Fatalf("unexpected residue %+v", r)
	}
	if len(r.Examples) != 1 || r.Examples[0].Index != 3 {
		t.Fatalf("unexpected examples %+v", r.Examples)
	}
}
