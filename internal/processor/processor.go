package processor

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docstyler/internal/classify"
	"docstyler/internal/docx"
	"docstyler/internal/domain"
	"docstyler/internal/integrations/llm"
	"docstyler/internal/output"
	"docstyler/internal/storage/sqlite"

	"github.com/google/uuid"
)

// Options are the processor settings taken from configuration.
type Options struct {
	OutputDir      string
	TempDir        string
	MaxFileSize    int64
	RemovalEnabled bool
	Provider       string
	Model          string
	Settings       classify.Settings
}

type Request struct {
	Path     string
	BookName string
	Styles   *domain.StyleSet
}

type Result struct {
	RunID       string
	BookName    string
	SourceHash  string
	OutputPath  string
	ArchivePath string
	Info        docx.Info
	Stats       domain.Stats
	Applied     docx.ApplyStats
	Removals    []docx.Range
	Residue     classify.Residue
	Duration    time.Duration
}

// Processor runs a document through the whole pipeline: validate, read,
// classify, style, remove, save and package.
type Processor struct {
	opts      Options
	transport llm.Transport
	db        *sql.DB
	now       func() time.Time
}

// New builds a processor. db may be nil, in which case runs are not recorded.
func New(opts Options, transport llm.Transport, db *sql.DB) *Processor {
	opts.Settings.Model = opts.Model
	return &Processor{opts: opts, transport: transport, db: db, now: time.Now}
}

// Process handles one document. Failures are returned as *StageError. The
// result is returned with the error whenever classification got far enough
// to produce statistics.
func (p *Processor) Process(ctx context.Context, req Request, monitor *Monitor) (*Result, error) {
	started := p.now()
	run := domain.RunRecord{
		ID:          uuid.NewString(),
		SourcePath:  req.Path,
		Status:      domain.RunFailed,
		LLMProvider: p.opts.Provider,
		LLMModel:    p.opts.Model,
		StartedAt:   started,
	}
	result := &Result{RunID: run.ID}
	fail := func(stage string, err error) (*Result, error) {
		se := stageError(stage, err)
		run.FailedStage = stage
		run.Error = err.Error()
		run.Stats = result.Stats
		run.FinishedAt = p.now()
		p.record(run, nil)
		log.Printf("processor run=%s failed stage=%s err=%v", run.ID, stage, err)
		result.Duration = run.Duration()
		return result, se
	}

	bookName := req.BookName
	if strings.TrimSpace(bookName) == "" {
		bookName = output.BookNameFromPath(req.Path)
	}
	run.BookName = bookName
	result.BookName = bookName
	log.Printf("processor run=%s start path=%s book=%s", run.ID, req.Path, bookName)

	// 1. validate
	monitor.Update("validando arquivo", 2, filepath.Base(req.Path))
	if err := p.validate(req); err != nil {
		return fail(StageReading, err)
	}

	// 2. read
	monitor.Update("lendo documento", 5, "")
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return fail(StageReading, fmt.Errorf("read document: %w", err))
	}
	run.SourceHash = hashBytes(data)
	result.SourceHash = run.SourceHash
	doc, err := docx.Parse(data)
	if err != nil {
		return fail(StageReading, err)
	}
	paragraphs := doc.Paragraphs()
	result.Info = doc.Info()
	if len(paragraphs) == 0 {
		return fail(StageReading, ErrEmptyDocument)
	}
	monitor.Update("documento lido", 10, fmt.Sprintf("%d elementos, %d parágrafos, %d imagens, %d tabelas",
		len(paragraphs), result.Info.TotalParagraphs, result.Info.TotalImages, result.Info.TotalTables))

	// 3. classify
	orchestrator := classify.NewOrchestrator(p.transport, req.Styles, p.opts.Settings).WithObserver(func(ev classify.Event) {
		monitor.Update("processando com IA", 10+ev.Progress*70/100, ev.Message)
	})
	classified, err := orchestrator.Run(ctx, paragraphs)
	if classified != nil {
		result.Stats = classified.Stats
		result.Residue = classified.Residue
	}
	if err != nil {
		return fail(StageAIProcessing, err)
	}
	marked := classified.Paragraphs
	logResidue(run.ID, classified.Residue)

	// 4. style
	monitor.Update("aplicando estilos", 82, fmt.Sprintf("%d estilos", len(req.Styles.Styles)))
	applier, err := docx.NewApplier(doc)
	if err != nil {
		return fail(StageStyling, err)
	}
	applier.RegisterStyles(req.Styles.Styles)
	result.Applied = applier.Apply(marked)

	// 5. removal
	if p.opts.RemovalEnabled && len(req.Styles.Removals) > 0 {
		monitor.Update("removendo conteúdo marcado", 86, "")
		result.Removals = applier.RemoveMarked(marked, req.Styles.Removals)
	} else {
		ranges := docx.ValidateRemovalRanges(docx.IdentifyRemovalRanges(marked, req.Styles.Removals), len(marked))
		if len(ranges) > 0 {
			log.Printf("processor run=%s removal disabled, %d ranges kept", run.ID, len(ranges))
		}
		monitor.Update("remoção desabilitada", 86, "")
	}

	// 6. save
	monitor.Update("salvando arquivos", 90, "")
	ws, err := output.NewWorkspace(p.opts.OutputDir, p.opts.TempDir, bookName, started)
	if err != nil {
		return fail(StageSaving, err)
	}
	result.OutputPath, err = ws.SaveDocument(applier)
	if err != nil {
		return fail(StageSaving, err)
	}
	run.OutputPath = result.OutputPath

	// 7. package
	monitor.Update("criando arquivo ZIP", 95, "")
	result.ArchivePath, err = ws.CreateArchive()
	if err != nil {
		return fail(StagePackaging, err)
	}
	run.ArchivePath = result.ArchivePath
	if err := ws.CleanupTemp(); err != nil {
		log.Printf("processor run=%s temp cleanup (non-fatal): %v", run.ID, err)
	}

	run.Status = domain.RunSucceeded
	run.Stats = result.Stats
	run.FinishedAt = p.now()
	result.Duration = run.Duration()
	p.record(run, marked)
	monitor.Complete()
	log.Printf("processor run=%s done book=%s marked=%d/%d styled=%d api_calls=%d tokens=%d elapsed=%s",
		run.ID, bookName, result.Stats.Marked, result.Stats.Total, result.Applied.Styled,
		result.Stats.APICalls, result.Stats.Usage.TotalTokens(), FormatElapsed(result.Duration))
	return result, nil
}

func (p *Processor) validate(req Request) error {
	if req.Styles == nil || len(req.Styles.Styles) == 0 {
		return ErrNoStyles
	}
	if !strings.EqualFold(filepath.Ext(req.Path), ".docx") {
		return fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Base(req.Path))
	}
	info, err := os.Stat(req.Path)
	if err != nil {
		return fmt.Errorf("stat document: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrUnsupportedFile, req.Path)
	}
	if p.opts.MaxFileSize > 0 && info.Size() > p.opts.MaxFileSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, info.Size(), p.opts.MaxFileSize)
	}
	return nil
}

func (p *Processor) record(run domain.RunRecord, paragraphs []domain.Paragraph) {
	if p.db == nil {
		return
	}
	if _, err := sqlite.InsertRun(p.db, run); err != nil {
		log.Printf("processor run=%s store run (non-fatal): %v", run.ID, err)
		return
	}
	if len(paragraphs) == 0 {
		return
	}
	if _, err := sqlite.InsertParagraphMarkers(p.db, run.ID, paragraphs); err != nil {
		log.Printf("processor run=%s store markers (non-fatal): %v", run.ID, err)
	}
}

func logResidue(runID string, r classify.Residue) {
	if r.Empty+r.VeryShort+r.Formatting+r.RealContent == 0 {
		return
	}
	log.Printf("processor run=%s residue empty=%d very_short=%d formatting=%d real_content=%d",
		runID, r.Empty, r.VeryShort, r.Formatting, r.RealContent)
	for _, ex := range r.Examples {
		log.Printf("processor run=%s unmarked index=%d text=%q", runID, ex.Index, ex.Text)
	}
}

// HashFile returns the hex SHA-256 of the file at path. It identifies a
// document independently of its name.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return hashBytes(data), nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
