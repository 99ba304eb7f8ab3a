package output

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const timestampLayout = "20060102_150405"

var ErrEmptyBookName = errors.New("book name is empty")

// Workspace is the output directory of one processed book:
//
//	<output_dir>/<book>_<timestamp>/<book>_completo.docx
//	<output_dir>/<book>_<timestamp>.zip
//
// Intermediate files are staged under <temp_dir>/<book>_<timestamp>/.
type Workspace struct {
	BookName string
	Dir      string
	TempDir  string
	name     string
	root     string
}

func NewWorkspace(outputDir, tempDir, bookName string, now time.Time) (*Workspace, error) {
	book := SanitizeBookName(bookName)
	if book == "" {
		return nil, ErrEmptyBookName
	}
	name := fmt.Sprintf("%s_%s", book, now.Format(timestampLayout))
	w := &Workspace{
		BookName: book,
		Dir:      filepath.Join(outputDir, name),
		TempDir:  filepath.Join(tempDir, name),
		name:     name,
		root:     outputDir,
	}
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if err := os.MkdirAll(w.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return w, nil
}

func (w *Workspace) DocumentPath() string {
	return filepath.Join(w.Dir, w.BookName+"_completo.docx")
}

func (w *Workspace) ArchivePath() string {
	return filepath.Join(w.root, w.name+".zip")
}

// SaveDocument stages doc in the temp dir and moves it into place, so a failed
// write never leaves a partial file in the output directory.
func (w *Workspace) SaveDocument(doc io.WriterTo) (string, error) {
	staged := filepath.Join(w.TempDir, filepath.Base(w.DocumentPath()))
	f, err := os.Create(staged)
	if err != nil {
		return "", fmt.Errorf("create staged document: %w", err)
	}
	if _, err := doc.WriteTo(f); err != nil {
		f.Close()
		return "", fmt.Errorf("write staged document: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close staged document: %w", err)
	}

	dst := w.DocumentPath()
	if err := os.Rename(staged, dst); err != nil {
		// temp and output may live on different filesystems
		if err := copyFile(staged, dst); err != nil {
			return "", fmt.Errorf("move document into output dir: %w", err)
		}
	}
	log.Printf("output document saved path=%s", dst)
	return dst, nil
}

// Files lists the regular files of the output directory, sorted.
func (w *Workspace) Files() ([]string, error) {
	var files []string
	err := filepath.WalkDir(w.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// CreateArchive zips the output directory next to it. Entries are stored under
// the workspace name so the archive unpacks into its own folder.
func (w *Workspace) CreateArchive() (string, error) {
	files, err := w.Files()
	if err != nil {
		return "", fmt.Errorf("list output files: %w", err)
	}
	path := w.ArchivePath()
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	zw := zip.NewWriter(f)
	for _, file := range files {
		rel, err := filepath.Rel(w.Dir, file)
		if err != nil {
			zw.Close()
			f.Close()
			return "", err
		}
		if err := addToArchive(zw, file, filepath.ToSlash(filepath.Join(w.name, rel))); err != nil {
			zw.Close()
			f.Close()
			return "", fmt.Errorf("archive %s: %w", rel, err)
		}
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return "", fmt.Errorf("finish archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}
	log.Printf("output archive created path=%s files=%d", path, len(files))
	return path, nil
}

func addToArchive(zw *zip.Writer, src, name string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate
	dst, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(dst, in)
	return err
}

// CleanupTemp removes the workspace's staging directory.
func (w *Workspace) CleanupTemp() error {
	if err := os.RemoveAll(w.TempDir); err != nil {
		return fmt.Errorf("remove temp dir: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// SanitizeBookName turns a user-supplied book name into a safe file-name stem.
func SanitizeBookName(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	s = replacer.Replace(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), "_")
	return strings.Trim(s, "._")
}

// BookNameFromPath derives a book name from a document path.
func BookNameFromPath(path string) string {
	base := filepath.Base(path)
	return SanitizeBookName(strings.TrimSuffix(base, filepath.Ext(base)))
}
