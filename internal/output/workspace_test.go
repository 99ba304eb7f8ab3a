package output

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type stringDoc string

func (s stringDoc) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, string(s))
	return int64(n), err
}

type failingDoc struct{}

func (failingDoc) WriteTo(io.Writer) (int64, error) {
	return 0, errors.New("disk full")
}

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	root := t.TempDir()
	now := time.Date(2025, 3, 14, 9, 30, 5, 0, time.UTC)
	w, err := NewWorkspace(filepath.Join(root, "output"), filepath.Join(root, "temp"), "Livro de Matemática", now)
	if err != nil {
		t.Fatalf("NewWorkspace failed: %v", err)
	}
	return w
}

func TestNewWorkspaceLayout(t *testing.T) {
	w := newTestWorkspace(t)

	if w.BookName != "Livro_de_Matemática" {
		t.Fatalf("unexpected book name: %q", w.BookName)
	}
	if filepath.Base(w.Dir) != "Livro_de_Matemática_20250314_093005" {
		t.Fatalf("unexpected dir: %s", w.Dir)
	}
	if filepath.Base(w.DocumentPath()) != "Livro_de_Matemática_completo.docx" {
		t.Fatalf("unexpected document path: %s", w.DocumentPath())
	}
	if filepath.Dir(w.ArchivePath()) != filepath.Dir(w.Dir) {
		t.Fatalf("archive should sit next to the output dir: %s", w.ArchivePath())
	}
	for _, dir := range []string{w.Dir, w.TempDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

func TestNewWorkspaceRejectsEmptyName(t *testing.T) {
	root := t.TempDir()
	_, err := NewWorkspace(root, root, "  //  ", time.Now())
	if !errors.Is(err, ErrEmptyBookName) {
		t.Fatalf("expected ErrEmptyBookName, got %v", err)
	}
}

func TestSaveDocumentArchiveAndCleanup(t *testing.T) {
	w := newTestWorkspace(t)

	path, err := w.SaveDocument(stringDoc("docx-bytes"))
	if err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "docx-bytes" {
		t.Fatalf("unexpected saved document: %q err=%v", data, err)
	}

	archive, err := w.CreateArchive()
	if err != nil {
		t.Fatalf("CreateArchive failed: %v", err)
	}
	zr, err := zip.OpenReader(archive)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 1 {
		t.Fatalf("expected 1 archived file, got %d", len(zr.File))
	}
	want := "Livro_de_Matemática_20250314_093005/Livro_de_Matemática_completo.docx"
	if zr.File[0].Name != want {
		t.Fatalf("archive entry = %q, want %q", zr.File[0].Name, want)
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "docx-bytes" {
		t.Fatalf("unexpected archived content: %q", body)
	}

	if err := w.CleanupTemp(); err != nil {
		t.Fatalf("CleanupTemp failed: %v", err)
	}
	if _, err := os.Stat(w.TempDir); !os.IsNotExist(err) {
		t.Fatalf("temp dir should be gone, stat err=%v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("cleanup must not touch output: %v", err)
	}
}

func TestSaveDocumentFailureLeavesNoOutput(t *testing.T) {
	w := newTestWorkspace(t)

	if _, err := w.SaveDocument(failingDoc{}); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected write error, got %v", err)
	}
	if _, err := os.Stat(w.DocumentPath()); !os.IsNotExist(err) {
		t.Fatalf("no partial document expected in output dir, stat err=%v", err)
	}
}

func TestBookNameHelpers(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Simulado 1", "Simulado_1"},
		{"a/b:c", "a_b_c"},
		{"  .hidden  ", "hidden"},
	}
	for _, tt := range tests {
		if got := SanitizeBookName(tt.in); got != tt.want {
			t.Fatalf("SanitizeBookName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := BookNameFromPath("/in/Apostila Final.docx"); got != "Apostila_Final" {
		t.Fatalf("BookNameFromPath = %q", got)
	}
}
