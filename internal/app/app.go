package app

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docstyler/internal/config"
	"docstyler/internal/domain"
	"docstyler/internal/httpx"
	"docstyler/internal/integrations/llm"
	slackbot "docstyler/internal/integrations/slack"
	"docstyler/internal/processor"
	"docstyler/internal/storage/sqlite"
	"docstyler/internal/watch"
)

type options struct {
	input   string
	book    string
	styles  string
	watch   bool
	history int
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.StringVar(&opts.input, "input", "", "path of the .docx to process")
	fs.StringVar(&opts.book, "book", "", "book name used for output files (default: input file name)")
	fs.StringVar(&opts.styles, "styles", "", "style set YAML (overrides styles_path)")
	fs.BoolVar(&opts.watch, "watch", false, "sweep watch_dir on watch_schedule until interrupted")
	fs.IntVar(&opts.history, "history", 0, "print the N most recent runs and exit")
	if err := fs.Parse(args[1:]); err != nil {
		return opts, err
	}
	if opts.input == "" && len(fs.Args()) > 0 {
		opts.input = fs.Arg(0)
	}
	if opts.input == "" && !opts.watch && opts.history <= 0 {
		return opts, errors.New("nothing to do: pass -input <file.docx>, -watch or -history N")
	}
	return opts, nil
}

func Main() {
	opts, err := parseFlags(os.Args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("%v", err)
	}

	cfg := config.LoadConfig()
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	if opts.styles != "" {
		cfg.StylesPath = opts.styles
	}

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	log.Printf("Database initialized at %s", cfg.DBPath)
	defer db.Close()

	if opts.history > 0 {
		printHistory(db, opts.history)
		return
	}

	styles, err := domain.LoadStyleSet(cfg.StylesPath)
	if err != nil {
		log.Fatalf("Failed to load styles from %s: %v", cfg.StylesPath, err)
	}

	transport, model, err := llm.NewTransport(cfg.ProviderConfig())
	if err != nil {
		log.Fatalf("Failed to init LLM transport: %v", err)
	}
	log.Printf(
		"Config loaded. Provider=%s Model=%s Styles=%d Removals=%d BatchSize=%d MaxRetries=%d Timeout=%s RescueThreshold=%d RemovalEnabled=%t ExternalHTTPTimeout=%s",
		cfg.LLMProvider,
		model,
		len(styles.Styles),
		len(styles.Removals),
		cfg.LLMBatchSize,
		cfg.LLMMaxRetries,
		cfg.LLMTimeout(),
		cfg.RescueThreshold,
		cfg.RemovalEnabled,
		appliedHTTPTimeout,
	)

	proc := processor.New(processor.Options{
		OutputDir:      cfg.OutputDir,
		TempDir:        cfg.TempDir,
		MaxFileSize:    cfg.MaxFileSizeBytes(),
		RemovalEnabled: cfg.RemovalEnabled,
		Provider:       cfg.LLMProvider,
		Model:          model,
		Settings:       cfg.ClassifySettings(),
	}, transport, db)

	var notifier watch.Notifier
	if cfg.SlackConfigured() {
		notifier = slackbot.NewNotifier(cfg.SlackBotToken, cfg.SlackChannelID)
		log.Printf("Slack notifications enabled channel=%s", cfg.SlackChannelID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.input != "" {
		if err := processOne(ctx, proc, notifier, opts, styles); err != nil {
			stop()
			db.Close()
			os.Exit(1)
		}
	}

	if opts.watch {
		if !cfg.WatchConfigured() {
			log.Fatalf("-watch requires watch_dir and watch_schedule")
		}
		log.Println("Starting docstyler inbox watch...")
		watch.StartInboxScheduler(ctx, cfg, db, proc, styles, notifier)
	}
}

func processOne(ctx context.Context, proc *processor.Processor, notifier watch.Notifier, opts options, styles *domain.StyleSet) error {
	monitor := processor.NewMonitor(nil)
	result, err := proc.Process(ctx, processor.Request{Path: opts.input, BookName: opts.book, Styles: styles}, monitor)
	if err != nil {
		var se *processor.StageError
		if errors.As(err, &se) {
			log.Printf("Processing failed at stage %s after %s: %v", se.Stage, processor.FormatElapsed(monitor.Elapsed()), se.Err)
			log.Printf("Suggestion: %s", se.Suggestion)
		} else {
			log.Printf("Processing failed: %v", err)
		}
		if notifier != nil {
			if nerr := notifier.NotifyFailure(opts.input, err); nerr != nil {
				log.Printf("Slack failure notification (non-fatal): %v", nerr)
			}
		}
		return err
	}

	fmt.Println(summaryLine(result))
	if notifier != nil {
		if nerr := notifier.NotifySuccess(result); nerr != nil {
			log.Printf("Slack notification (non-fatal): %v", nerr)
		}
	}
	return nil
}

func summaryLine(r *processor.Result) string {
	return fmt.Sprintf("%s: %d/%d marked, %d styled, %d api calls, %s -> %s (%s)",
		r.BookName, r.Stats.Marked, r.Stats.Total, r.Applied.Styled, r.Stats.APICalls,
		processor.FormatElapsed(r.Duration), r.OutputPath, r.ArchivePath)
}

func printHistory(db *sql.DB, limit int) {
	runs, err := sqlite.GetRecentRuns(db, time.Time{}, limit)
	if err != nil {
		log.Fatalf("Failed to read run history: %v", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return
	}
	for _, r := range runs {
		fmt.Println(historyLine(r))
	}
}

func historyLine(r domain.RunRecord) string {
	line := fmt.Sprintf("%s  %-9s %-24s %d/%d marked  %d calls  %s",
		r.StartedAt.Local().Format("2006-01-02 15:04"), r.Status, r.BookName,
		r.Stats.Marked, r.Stats.Total, r.Stats.APICalls, processor.FormatElapsed(r.Duration()))
	if r.Status == domain.RunFailed {
		line += fmt.Sprintf("  [%s] %s", r.FailedStage, r.Error)
	}
	return line
}
