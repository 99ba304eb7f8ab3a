package processor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"docstyler/internal/classify"
	"docstyler/internal/docx"
	"docstyler/internal/domain"
	"docstyler/internal/integrations/llm"
	"docstyler/internal/storage/sqlite"
)

const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

var promptIndex = regexp.MustCompile(`Parágrafo (\d+):`)

func testStyles() *domain.StyleSet {
	return &domain.StyleSet{
		Styles: []domain.StyleDefinition{
			{Name: "Questão", Marker: "[[QUESTAO]]", Prompt: "Enunciado", WordStyle: "Questao", Color: "#1F4E79"},
			{Name: "Alternativa", Marker: "[[ALTERNATIVA]]", Prompt: "A) B) C)", WordStyle: "Alternativa"},
		},
		Removals: []domain.RemovalDefinition{
			{Name: "Comentário", Prompt: "Comentários", StartMarker: "[[REMOVER_INICIO]]", EndMarker: "[[REMOVER_FIM]]"},
		},
	}
}

var fixtureParagraphs = []struct {
	text   string
	marker string
}{
	{"1. Quanto é 2+2?", "[[QUESTAO]]"},
	{"A) 4", "[[ALTERNATIVA]]"},
	{"Comentário do professor", "[[REMOVER_INICIO]]"},
	{"Lembrem de revisar.", ""},
	{"Fim do comentário", "[[REMOVER_FIM]]"},
	{"2. Quanto é 3+3?", "[[QUESTAO]]"},
	{"B) 6", "[[ALTERNATIVA]]"},
}

func writeFixture(t *testing.T, dir string) string {
	t.Helper()
	var body strings.Builder
	for _, p := range fixtureParagraphs {
		fmt.Fprintf(&body, `<w:p><w:r><w:t>%s</w:t></w:r></w:p>`, p.text)
	}
	document := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="` + wordNS + `"><w:body>` + body.String() +
		`<w:sectPr/></w:body></w:document>`
	contentTypes := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
		`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, part := range []struct{ name, content string }{
		{"[Content_Types].xml", contentTypes},
		{"word/document.xml", document},
	} {
		w, err := zw.Create(part.name)
		if err != nil {
			t.Fatalf("create %s: %v", part.name, err)
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			t.Fatalf("write %s: %v", part.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	path := filepath.Join(dir, "Simulado Um.docx")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

// fixtureTransport answers every prompted index with the fixture's marker.
func fixtureTransport(calls *int) llm.Transport {
	return llm.TransportFunc(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		*calls++
		var user string
		for _, m := range req.Messages {
			if m.Role == llm.RoleUser {
				user = m.Content
			}
		}
		type item struct {
			Index   int      `json:"index"`
			Markers []string `json:"markers"`
		}
		var items []item
		for _, match := range promptIndex.FindAllStringSubmatch(user, -1) {
			idx, _ := strconv.Atoi(match[1])
			markers := []string{}
			if m := fixtureParagraphs[idx].marker; m != "" {
				markers = append(markers, m)
			}
			items = append(items, item{Index: idx, Markers: markers})
		}
		data, err := json.Marshal(map[string]any{"paragraphs": items})
		if err != nil {
			return llm.Response{}, err
		}
		return llm.Response{Content: string(data), Usage: llm.Usage{InputTokens: 100, OutputTokens: 40}}, nil
	})
}

func testOptions(root string) Options {
	return Options{
		OutputDir:      filepath.Join(root, "output"),
		TempDir:        filepath.Join(root, "temp"),
		MaxFileSize:    1 << 20,
		RemovalEnabled: true,
		Provider:       "openai",
		Model:          "gpt-test",
		Settings:       classify.Settings{RetryPause: -1, BatchPause: -1},
	}
}

func newTestProcessor(t *testing.T, root string, transport llm.Transport, withDB bool) (*Processor, *Options) {
	t.Helper()
	opts := testOptions(root)
	p := New(opts, transport, nil)
	if withDB {
		db, err := sqlite.InitDB(filepath.Join(root, "runs.db"))
		if err != nil {
			t.Fatalf("InitDB failed: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		p.db = db
	}
	p.now = func() time.Time { return time.Date(2025, 5, 2, 14, 0, 0, 0, time.UTC) }
	return p, &opts
}

func TestProcessEndToEnd(t *testing.T) {
	root := t.TempDir()
	input := writeFixture(t, root)
	calls := 0
	p, opts := newTestProcessor(t, root, fixtureTransport(&calls), true)

	var updates []Progress
	monitor := NewMonitor(func(pr Progress) { updates = append(updates, pr) })
	result, err := p.Process(context.Background(), Request{Path: input, Styles: testStyles()}, monitor)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.BookName != "Simulado_Um" {
		t.Fatalf("book name should derive from the file name, got %q", result.BookName)
	}
	if calls != 1 || result.Stats.APICalls != 1 {
		t.Fatalf("expected a single classification call, got calls=%d stats=%+v", calls, result.Stats)
	}
	if result.Stats.Total != 7 || result.Stats.Marked != 6 || result.Stats.Unmarked != 1 || result.Stats.RescueCalls != 0 {
		t.Fatalf("unexpected stats: %+v", result.Stats)
	}
	if result.Applied.Styled != 4 || result.Applied.ByStyle["Questão"] != 2 {
		t.Fatalf("unexpected apply stats: %+v", result.Applied)
	}
	if len(result.Removals) != 1 || result.Removals[0].Start != 2 || result.Removals[0].End != 4 {
		t.Fatalf("unexpected removals: %+v", result.Removals)
	}
	if result.Info.TotalParagraphs != 7 {
		t.Fatalf("unexpected info: %+v", result.Info)
	}

	if filepath.Base(result.OutputPath) != "Simulado_Um_completo.docx" {
		t.Fatalf("unexpected output path: %s", result.OutputPath)
	}
	out, err := docx.Open(result.OutputPath)
	if err != nil {
		t.Fatalf("output is not a readable docx: %v", err)
	}
	records := out.Paragraphs()
	if len(records) != 4 {
		t.Fatalf("expected removal to leave 4 records, got %d", len(records))
	}
	if records[0].Style != "Questao" || records[1].Style != "Alternativa" || records[2].Text != "2. Quanto é 3+3?" {
		t.Fatalf("unexpected styled output: %+v", records)
	}
	if _, err := os.Stat(result.ArchivePath); err != nil {
		t.Fatalf("archive missing: %v", err)
	}
	if entries, _ := os.ReadDir(opts.TempDir); len(entries) != 0 {
		t.Fatalf("temp dir should be empty after cleanup, got %d entries", len(entries))
	}

	if len(updates) == 0 || updates[len(updates)-1].Progress != 100 {
		t.Fatalf("monitor should finish at 100%%: %+v", updates)
	}
	for i := 1; i < len(updates); i++ {
		if updates[i].Progress < updates[i-1].Progress {
			t.Fatalf("progress went backwards at %d: %+v", i, updates)
		}
	}

	stored, err := sqlite.GetRunByID(p.db, result.RunID)
	if err != nil {
		t.Fatalf("run not recorded: %v", err)
	}
	if stored.Status != domain.RunSucceeded || stored.Stats.Marked != 6 || stored.ArchivePath != result.ArchivePath {
		t.Fatalf("unexpected stored run: %+v", stored)
	}
	seen, err := sqlite.SourceRefExists(p.db, result.SourceHash)
	if err != nil || !seen {
		t.Fatalf("source hash should be known after a successful run: seen=%v err=%v", seen, err)
	}
	markers, err := sqlite.GetParagraphMarkers(p.db, result.RunID)
	if err != nil || len(markers) != 7 {
		t.Fatalf("expected 7 stored markers, got %d err=%v", len(markers), err)
	}
}

func TestProcessRemovalDisabledKeepsContent(t *testing.T) {
	root := t.TempDir()
	input := writeFixture(t, root)
	calls := 0
	p, _ := newTestProcessor(t, root, fixtureTransport(&calls), false)
	p.opts.RemovalEnabled = false

	result, err := p.Process(context.Background(), Request{Path: input, BookName: "Livro", Styles: testStyles()}, nil)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(result.Removals) != 0 {
		t.Fatalf("no removal expected: %+v", result.Removals)
	}
	out, err := docx.Open(result.OutputPath)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	if n := len(out.Paragraphs()); n != 7 {
		t.Fatalf("expected all 7 records kept, got %d", n)
	}
}

func TestProcessRejectsInvalidInput(t *testing.T) {
	root := t.TempDir()
	valid := writeFixture(t, root)
	textFile := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(textFile, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	garbage := filepath.Join(root, "broken.docx")
	if err := os.WriteFile(garbage, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		styles  *domain.StyleSet
		maxSize int64
		want    error
	}{
		{"wrong extension", textFile, testStyles(), 1 << 20, ErrUnsupportedFile},
		{"too large", valid, testStyles(), 10, ErrFileTooLarge},
		{"not a zip", garbage, testStyles(), 1 << 20, docx.ErrNotDocx},
		{"no styles", valid, &domain.StyleSet{}, 1 << 20, ErrNoStyles},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			p, _ := newTestProcessor(t, t.TempDir(), fixtureTransport(&calls), false)
			p.opts.MaxFileSize = tt.maxSize

			_, err := p.Process(context.Background(), Request{Path: tt.path, Styles: tt.styles}, nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var se *StageError
			if !errors.As(err, &se) || se.Stage != StageReading || se.Suggestion == "" {
				t.Fatalf("expected a reading StageError with a suggestion, got %#v", err)
			}
			if calls != 0 {
				t.Fatalf("no LLM call expected, got %d", calls)
			}
		})
	}
}

func TestProcessSystemicFailureIsRecorded(t *testing.T) {
	root := t.TempDir()
	input := writeFixture(t, root)
	unauthorized := llm.TransportFunc(func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{}, &llm.StatusError{Provider: "openai", StatusCode: 401, Body: "invalid api key"}
	})
	p, opts := newTestProcessor(t, root, unauthorized, true)

	result, err := p.Process(context.Background(), Request{Path: input, Styles: testStyles()}, nil)
	if !errors.Is(err, classify.ErrNoMarkers) {
		t.Fatalf("expected ErrNoMarkers, got %v", err)
	}
	if StageOf(err) != StageAIProcessing {
		t.Fatalf("expected ai_processing stage, got %s", StageOf(err))
	}
	var se *StageError
	errors.As(err, &se)
	if !strings.Contains(se.Suggestion, "API Key") {
		t.Fatalf("unauthorized cause should drive the suggestion, got %q", se.Suggestion)
	}
	if result == nil || result.Stats.FailedBatches != 1 || result.Stats.APICalls != 3 {
		t.Fatalf("stats should survive the failure: %+v", result)
	}
	if _, statErr := os.Stat(opts.OutputDir); !os.IsNotExist(statErr) {
		t.Fatalf("no output expected after a classification failure, stat err=%v", statErr)
	}

	stored, err := sqlite.GetRunByID(p.db, result.RunID)
	if err != nil {
		t.Fatalf("failed run not recorded: %v", err)
	}
	if stored.Status != domain.RunFailed || stored.FailedStage != StageAIProcessing {
		t.Fatalf("unexpected stored run: %+v", stored)
	}
	if seen, _ := sqlite.SourceRefExists(p.db, result.SourceHash); seen {
		t.Fatal("a failed run must not mark the source as processed")
	}
}

func TestSuggest(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unauthorized", fmt.Errorf("wrap: %w", &llm.StatusError{StatusCode: 401}), "API Key"},
		{"rate limited", &llm.StatusError{StatusCode: 429}, "Limite de requisições"},
		{"timeout", context.DeadlineExceeded, "Tempo limite"},
		{"no markers", classify.ErrNoMarkers, "prompts de identificação"},
		{"too large", ErrFileTooLarge, "muito grande"},
		{"malformed", docx.ErrMalformed, "corrompido"},
		{"other", errors.New("boom"), "logs detalhados"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Suggest(tt.err); !strings.Contains(got, tt.want) {
				t.Fatalf("Suggest(%v) = %q, want it to contain %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestMonitorClampsAndFormats(t *testing.T) {
	var got []Progress
	m := NewMonitor(func(p Progress) { got = append(got, p) })
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.start = base
	m.now = func() time.Time { return base.Add(187 * time.Second) }

	m.Update("lendo", 140, "x")
	m.Complete()
	if len(got) != 2 || got[0].Progress != 100 || got[0].Elapsed != 187*time.Second {
		t.Fatalf("unexpected updates: %+v", got)
	}
	if m.Last().Step != "done" {
		t.Fatalf("unexpected last update: %+v", m.Last())
	}
	if FormatElapsed(m.Elapsed()) != "3m 07s" {
		t.Fatalf("FormatElapsed = %q", FormatElapsed(m.Elapsed()))
	}

	var nilMonitor *Monitor
	nilMonitor.Update("ignored", 10, "")
	nilMonitor.Complete()
}
