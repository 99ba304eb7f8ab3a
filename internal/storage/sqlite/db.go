package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"docstyler/internal/domain"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const excerptRunes = 160

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id             TEXT PRIMARY KEY,
		book_name      TEXT NOT NULL,
		source_path    TEXT NOT NULL,
		source_hash    TEXT NOT NULL DEFAULT '',
		output_path    TEXT DEFAULT '',
		archive_path   TEXT DEFAULT '',
		status         TEXT NOT NULL,
		failed_stage   TEXT DEFAULT '',
		error          TEXT DEFAULT '',
		llm_provider   TEXT DEFAULT '',
		llm_model      TEXT DEFAULT '',
		total          INTEGER DEFAULT 0,
		processed      INTEGER DEFAULT 0,
		marked         INTEGER DEFAULT 0,
		unmarked       INTEGER DEFAULT 0,
		api_calls      INTEGER DEFAULT 0,
		failed_batches INTEGER DEFAULT 0,
		rescue_calls   INTEGER DEFAULT 0,
		rescued        INTEGER DEFAULT 0,
		input_tokens   INTEGER DEFAULT 0,
		output_tokens  INTEGER DEFAULT 0,
		started_at     DATETIME NOT NULL,
		finished_at    DATETIME,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_runs_source_hash ON runs(source_hash);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS paragraph_markers (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id          TEXT NOT NULL,
		paragraph_index INTEGER NOT NULL,
		kind            TEXT NOT NULL DEFAULT 'paragraph',
		status          TEXT NOT NULL DEFAULT 'pending',
		markers         TEXT DEFAULT '[]',
		excerpt         TEXT DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_pm_run ON paragraph_markers(run_id);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// InsertRun stores run and returns its ID, generating one when run.ID is empty.
func InsertRun(db *sql.DB, run domain.RunRecord) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	var finished any
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt
	}
	s := run.Stats
	_, err := db.Exec(
		`INSERT INTO runs (id, book_name, source_path, source_hash, output_path, archive_path, status, failed_stage, error,
			llm_provider, llm_model, total, processed, marked, unmarked, api_calls, failed_batches, rescue_calls, rescued,
			input_tokens, output_tokens, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.BookName, run.SourcePath, run.SourceHash, run.OutputPath, run.ArchivePath, run.Status, run.FailedStage, run.Error,
		run.LLMProvider, run.LLMModel, s.Total, s.Processed, s.Marked, s.Unmarked, s.APICalls, s.FailedBatches, s.RescueCalls, s.Rescued,
		s.Usage.InputTokens, s.Usage.OutputTokens, run.StartedAt, finished,
	)
	if err != nil {
		return "", err
	}
	return run.ID, nil
}

// InsertParagraphMarkers stores the final marker assignment of every record.
func InsertParagraphMarkers(db *sql.DB, runID string, paragraphs []domain.Paragraph) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO paragraph_markers (run_id, paragraph_index, kind, status, markers, excerpt)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, p := range paragraphs {
		status := p.Status
		if status == "" {
			status = domain.StatusPending
		}
		markers, err := json.Marshal(nonNil(p.Markers))
		if err != nil {
			return inserted, err
		}
		_, err = stmt.Exec(runID, p.Index, string(p.Kind), string(status), string(markers), excerpt(p.Text))
		if err != nil {
			return inserted, err
		}
		inserted++
	}

	return inserted, tx.Commit()
}

// SourceRefExists reports whether a document with this content hash was
// already processed successfully.
func SourceRefExists(db *sql.DB, sourceHash string) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM runs WHERE source_hash = ? AND status = ?", sourceHash, domain.RunSucceeded).Scan(&count)
	return count > 0, err
}

const runColumns = `id, book_name, source_path, source_hash, output_path, archive_path, status, failed_stage, error,
	llm_provider, llm_model, total, processed, marked, unmarked, api_calls, failed_batches, rescue_calls, rescued,
	input_tokens, output_tokens, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.RunRecord, error) {
	var run domain.RunRecord
	var finished sql.NullTime
	s := &run.Stats
	err := row.Scan(
		&run.ID, &run.BookName, &run.SourcePath, &run.SourceHash, &run.OutputPath, &run.ArchivePath,
		&run.Status, &run.FailedStage, &run.Error, &run.LLMProvider, &run.LLMModel,
		&s.Total, &s.Processed, &s.Marked, &s.Unmarked, &s.APICalls, &s.FailedBatches, &s.RescueCalls, &s.Rescued,
		&s.Usage.InputTokens, &s.Usage.OutputTokens, &run.StartedAt, &finished,
	)
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return run, err
}

func GetRunByID(db *sql.DB, id string) (domain.RunRecord, error) {
	return scanRun(db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
}

func GetRecentRuns(db *sql.DB, since time.Time, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(
		`SELECT `+runColumns+` FROM runs WHERE started_at >= ? ORDER BY started_at DESC, id LIMIT ?`,
		since, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func GetParagraphMarkers(db *sql.DB, runID string) ([]domain.ParagraphMarker, error) {
	rows, err := db.Query(
		`SELECT run_id, paragraph_index, kind, status, markers, excerpt
		 FROM paragraph_markers WHERE run_id = ? ORDER BY paragraph_index`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ParagraphMarker
	for rows.Next() {
		var pm domain.ParagraphMarker
		var kind, status, markers string
		if err := rows.Scan(&pm.RunID, &pm.ParagraphIndex, &kind, &status, &markers, &pm.Excerpt); err != nil {
			return nil, err
		}
		pm.Kind = domain.Kind(kind)
		pm.Status = domain.Status(status)
		if err := json.Unmarshal([]byte(markers), &pm.Markers); err != nil {
			return nil, fmt.Errorf("decode markers run=%s index=%d: %w", runID, pm.ParagraphIndex, err)
		}
		out = append(out, pm)
	}
	return out, rows.Err()
}

// GetMarkerCounts tallies how often each marker was assigned in a run.
func GetMarkerCounts(db *sql.DB, runID string) (map[string]int, error) {
	markers, err := GetParagraphMarkers(db, runID)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, pm := range markers {
		for _, m := range pm.Markers {
			counts[m]++
		}
	}
	return counts, nil
}

func excerpt(text string) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) <= excerptRunes {
		return string(r)
	}
	return string(r[:excerptRunes])
}

func nonNil(markers []string) []string {
	if markers == nil {
		return []string{}
	}
	return markers
}
