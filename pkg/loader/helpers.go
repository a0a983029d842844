package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hazyhaar/ncov-pipeline/pkg/parser"
	"github.com/hazyhaar/ncov-pipeline/pkg/store"
)

// listDir returns the files of dir whose names satisfy match, sorted by name.
func listDir(dir string, match func(name string) bool) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var files []File
	for _, e := range entries {
		if e.IsDir() || !match(e.Name()) {
			continue
		}
		files = append(files, File{ID: e.Name(), Name: e.Name(), Path: filepath.Join(dir, e.Name())})
	}
	return files, nil
}

// fileOrDir resolves path to one file, or to the files with extension ext
// when path is a directory.
func fileOrDir(path, ext string) ([]File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return listDir(path, func(name string) bool { return strings.EqualFold(filepath.Ext(name), ext) })
	}
	return []File{{ID: filepath.Base(path), Name: filepath.Base(path), Path: path}}, nil
}

// withContentIDs keys each file by name and a content digest, for sources the
// fetcher appends to in place: a grown file gets a fresh ledger identifier.
func withContentIDs(files []File) ([]File, error) {
	for i := range files {
		sum, err := digest(files[i].Path)
		if err != nil {
			return nil, err
		}
		files[i].ID = files[i].Name + "@" + sum
	}
	return files, nil
}

func digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

// insert writes a row and updates the counters.
func (s *Stats) insert(ctx context.Context, tx *store.Tx, table string, row parser.Row, mode store.Mode) error {
	ok, err := tx.Insert(ctx, table, row, mode)
	if err != nil {
		return err
	}
	if ok {
		s.Rows++
	} else {
		s.Duplicates++
	}
	return nil
}

// skip records a row dropped for a coercion failure.
func (s *Stats) skip(logger *slog.Logger, f File, where string, err error) {
	s.Skipped++
	logger.Debug("row skipped", "file", f.Name, "at", where, "error", err)
}

// drop records fields no column declares.
func (s *Stats) drop(names []string) {
	if len(names) == 0 {
		return
	}
	if s.Unknown == nil {
		s.Unknown = make(map[string]int)
	}
	for _, n := range names {
		s.Unknown[n]++
	}
}

// UnknownFields returns the dropped field names in order.
func (s Stats) UnknownFields() []string {
	names := make([]string, 0, len(s.Unknown))
	for n := range s.Unknown {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (e *Env) logger() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
