package classify

import (
	"context"
	"log"

	"docstyler/internal/domain"
)

type rescueClassifier interface {
	Rescue(ctx context.Context, batch []domain.Paragraph, lookup neighborLookup) (Outcome, error)
}

type RescueResult struct {
	Ran     bool
	Patches []Patch
	Calls   int
	Failed  int
	Usage   domain.Usage
}

// Rescuer gives unmarked records a second, context-aware look. It only runs
// when more than RescueThreshold records are unmarked.
type Rescuer struct {
	classifier rescueClassifier
	settings   Settings
	sleep      sleepFunc
}

func NewRescuer(classifier rescueClassifier, settings Settings) *Rescuer {
	return &Rescuer{
		classifier: classifier,
		settings:   settings.withDefaults(),
		sleep:      sleepContext,
	}
}

// Run reads paragraphs without mutating them and returns patches only for
// records that gained at least one marker. Markers found by earlier
// sub-batches are visible as neighbor context to later ones.
func (r *Rescuer) Run(ctx context.Context, paragraphs []domain.Paragraph, progress func(done, total int)) (RescueResult, error) {
	var result RescueResult
	unmarked := domain.Unmarked(paragraphs)
	if len(unmarked) <= r.settings.RescueThreshold {
		log.Printf("classify rescue skipped unmarked=%d threshold=%d", len(unmarked), r.settings.RescueThreshold)
		return result, nil
	}
	result.Ran = true
	log.Printf("classify rescue unmarked=%d sub_batch=%d", len(unmarked), r.settings.RescueBatchSize)

	pos := indexPositions(paragraphs)
	overlay := make(map[int][]string)
	lookup := func(index int) (domain.Paragraph, bool) {
		i, ok := pos[index]
		if !ok {
			return domain.Paragraph{}, false
		}
		p := paragraphs[i]
		if markers, ok := overlay[index]; ok {
			p.Markers = markers
		}
		return p, true
	}

	size := r.settings.RescueBatchSize
	for start := 0; start < len(unmarked); start += size {
		if start > 0 {
			if err := r.sleep(ctx, r.settings.BatchPause); err != nil {
				return result, err
			}
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		end := min(start+size, len(unmarked))
		batch := unmarked[start:end]

		out, err := r.classifier.Rescue(ctx, batch, lookup)
		result.Calls++
		result.Usage.Add(out.Usage)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			result.Failed++
			log.Printf("classify rescue sub-batch first=%d failed (non-fatal): %v", firstIndex(batch), err)
		}
		for _, patch := range out.Patches {
			if len(patch.Markers) == 0 {
				continue
			}
			overlay[patch.Index] = patch.Markers
			result.Patches = append(result.Patches, patch)
		}
		if progress != nil {
			progress(end, len(unmarked))
		}
	}
	log.Printf("classify rescue done calls=%d rescued=%d failed=%d", result.Calls, len(result.Patches), result.Failed)
	return result, nil
}
