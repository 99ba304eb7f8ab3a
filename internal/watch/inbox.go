package watch

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"docstyler/internal/config"
	"docstyler/internal/domain"
	"docstyler/internal/processor"
	"docstyler/internal/storage/sqlite"

	"github.com/robfig/cron/v3"
)

type documentProcessor interface {
	Process(ctx context.Context, req processor.Request, monitor *processor.Monitor) (*processor.Result, error)
}

// Notifier receives the outcome of every document the sweep processed.
type Notifier interface {
	NotifySuccess(result *processor.Result) error
	NotifyFailure(path string, err error) error
}

// SweepResult tracks separate counters for each outcome.
type SweepResult struct {
	Found            int
	Processed        int
	AlreadyProcessed int
	Failed           int
	Errors           []string
}

// Sweep processes every .docx in dir whose content was not processed
// successfully before. Documents are handled one at a time.
func Sweep(ctx context.Context, dir string, db *sql.DB, proc documentProcessor, styles *domain.StyleSet, notifier Notifier) (SweepResult, error) {
	var result SweepResult
	paths, err := listDocuments(dir)
	if err != nil {
		return result, fmt.Errorf("list inbox: %w", err)
	}
	result.Found = len(paths)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		hash, err := processor.HashFile(path)
		if err != nil {
			log.Printf("inbox hash error path=%s: %v", path, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", filepath.Base(path), err))
			continue
		}
		exists, dbErr := sqlite.SourceRefExists(db, hash)
		if dbErr != nil {
			log.Printf("Error checking document history: %v", dbErr)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", filepath.Base(path), dbErr))
			continue
		}
		if exists {
			result.AlreadyProcessed++
			continue
		}

		res, procErr := proc.Process(ctx, processor.Request{Path: path, Styles: styles}, processor.NewMonitor(nil))
		if procErr != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", filepath.Base(path), procErr))
			if notifier != nil {
				if err := notifier.NotifyFailure(path, procErr); err != nil {
					log.Printf("inbox notify failure (non-fatal): %v", err)
				}
			}
			continue
		}
		result.Processed++
		if notifier != nil {
			if err := notifier.NotifySuccess(res); err != nil {
				log.Printf("inbox notify success (non-fatal): %v", err)
			}
		}
	}
	return result, nil
}

func listDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".") {
			continue
		}
		if strings.EqualFold(filepath.Ext(name), ".docx") {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// FormatSweepSummary returns a human-readable summary of a SweepResult.
func FormatSweepSummary(r SweepResult) string {
	if r.Found == 0 {
		return "Inbox empty."
	}
	var parts []string
	parts = append(parts, fmt.Sprintf("%d processed", r.Processed))
	if r.AlreadyProcessed > 0 {
		parts = append(parts, fmt.Sprintf("%d already processed", r.AlreadyProcessed))
	}
	if r.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", r.Failed))
	}
	msg := fmt.Sprintf("Found %d documents: %s", r.Found, strings.Join(parts, ", "))
	if len(r.Errors) > 0 {
		msg += fmt.Sprintf("\nErrors:\n%s", strings.Join(r.Errors, "\n"))
	}
	return msg
}

// StartInboxScheduler starts a cron-based scheduler that periodically sweeps
// the inbox directory. The schedule is a standard 5-field cron expression.
// It returns once ctx is done.
func StartInboxScheduler(ctx context.Context, cfg config.Config, db *sql.DB, proc documentProcessor, styles *domain.StyleSet, notifier Notifier) {
	schedule := strings.TrimSpace(cfg.WatchSchedule)
	if schedule == "" || cfg.WatchDir == "" {
		log.Println("Inbox watch disabled (watch_dir or watch_schedule not set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid watch_schedule '%s': %v, inbox watch disabled", schedule, err)
		return
	}
	log.Printf("Inbox watch scheduled (cron: %s) dir=%s", schedule, cfg.WatchDir)

	for {
		now := time.Now()
		next := sched.Next(now)
		wait := next.Sub(now)
		log.Printf("Next inbox sweep at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Println("Inbox watch stopped")
			return
		case <-timer.C:
		}

		result, sweepErr := Sweep(ctx, cfg.WatchDir, db, proc, styles, notifier)
		if sweepErr != nil {
			log.Printf("Inbox sweep error: %v", sweepErr)
		}
		log.Printf("Inbox sweep complete: %s", FormatSweepSummary(result))
	}
}
