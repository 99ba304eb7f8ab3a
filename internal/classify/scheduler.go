package classify

import (
	"context"
	"log"

	"docstyler/internal/domain"
)

type batchClassifier interface {
	Classify(ctx context.Context, batch []domain.Paragraph) (Outcome, error)
}

// ScheduleResult is the outcome of the primary pass.
type ScheduleResult struct {
	Patches       []Patch
	Processed     int
	APICalls      int
	FailedBatches int
	Usage         domain.Usage
	// LastErr is the most recent attempt error, nil when every attempt succeeded.
	LastErr error
}

// Scheduler partitions a sequence into fixed-size batches and drives them
// through the classifier one at a time, retrying failures on a halved batch.
type Scheduler struct {
	classifier batchClassifier
	settings   Settings
	sleep      sleepFunc
}

func NewScheduler(classifier batchClassifier, settings Settings) *Scheduler {
	return &Scheduler{
		classifier: classifier,
		settings:   settings.withDefaults(),
		sleep:      sleepContext,
	}
}

// Run classifies paragraphs without mutating them. progress is called after
// each slice with the number of records handled so far and may be nil. The only
// error returned is the context's.
//
// A slice whose attempts all fail yields StatusFailed patches for every record.
// A retry that succeeds on a shrunk slice covers only that prefix; the rest of
// the slice gets no patch and stays pending.
func (s *Scheduler) Run(ctx context.Context, paragraphs []domain.Paragraph, progress func(done, total int)) (ScheduleResult, error) {
	var result ScheduleResult
	total := len(paragraphs)
	size := s.settings.BatchSize
	slices := (total + size - 1) / size

	for start, n := 0, 1; start < total; start, n = start+size, n+1 {
		if start > 0 {
			if err := s.sleep(ctx, s.settings.BatchPause); err != nil {
				return result, err
			}
		}
		end := min(start+size, total)
		slice := paragraphs[start:end]
		log.Printf("classify slice=%d/%d records=%d", n, slices, len(slice))

		if err := s.runSlice(ctx, slice, n, &result); err != nil {
			return result, err
		}
		if progress != nil {
			progress(end, total)
		}
	}
	return result, nil
}

func (s *Scheduler) runSlice(ctx context.Context, slice []domain.Paragraph, n int, result *ScheduleResult) error {
	attempt := slice
	attempts := s.settings.MaxRetries + 1
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := s.sleep(ctx, s.settings.RetryPause); err != nil {
				return err
			}
			log.Printf("classify slice=%d attempt=%d/%d records=%d", n, i+1, attempts, len(attempt))
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		out, err := s.classifier.Classify(ctx, attempt)
		result.APICalls++
		result.Usage.Add(out.Usage)
		if err == nil {
			result.Patches = append(result.Patches, out.Patches...)
			result.Processed += len(attempt)
			if len(attempt) < len(slice) {
				log.Printf("classify slice=%d covered=%d of %d, remainder left pending", n, len(attempt), len(slice))
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		result.LastErr = err
		if len(attempt) > s.settings.ShrinkFloor && i+1 < attempts {
			log.Printf("classify slice=%d shrinking from=%d to=%d", n, len(attempt), len(attempt)/2)
			attempt = attempt[:len(attempt)/2]
		}
	}

	log.Printf("classify slice=%d failed after %d attempts, continuing without markers", n, attempts)
	result.FailedBatches++
	result.Processed += len(slice)
	for _, p := range slice {
		result.Patches = append(result.Patches, Patch{Index: p.Index, Status: domain.StatusFailed})
	}
	return nil
}
