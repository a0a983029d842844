// Package loader moves source files into fact and reference tables. Each
// source kind is a Loader registered under a short name; the Runner drives
// every loader through the same discover, filter and per-file transaction
// cycle against the ingestion ledger.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
	"github.com/hazyhaar/ncov-pipeline/pkg/store"
)

// Loader ingests one source kind.
type Loader interface {
	// Name is the registry key and configuration key (e.g. "jhu").
	Name() string
	// Source is the ledger source kind (e.g. "JHU").
	Source() string
	// Description returns a human-readable description.
	Description() string
	// Reference reports whether the loader fills a reference table on first
	// run rather than fact tables on update.
	Reference() bool
	// Discover lists candidate files. A missing path yields an error wrapping
	// fs.ErrNotExist.
	Discover(opts Options) ([]File, error)
	// Load parses f, discovered under opts, and inserts its rows inside tx.
	// Row-level coercion failures are counted in Stats; any returned error
	// aborts the file.
	Load(ctx context.Context, tx *store.Tx, f File, opts Options, env *Env) (Stats, error)
}

// Options carries the per-source configuration.
type Options struct {
	// Path is a directory for multi-file sources and a file otherwise.
	Path string
	// Tags restricts snapshot files to these tags.
	Tags []string
	// Comma is the field delimiter of reference CSVs.
	Comma rune
	// Encoding is an htmlindex encoding name for reference CSVs.
	Encoding string
}

// File is one discovered source file.
type File struct {
	// ID is the ledger identifier.
	ID   string
	Name string
	Path string
}

// Env is what loaders need beyond the transaction.
type Env struct {
	Registry *schema.Registry
	Places   *Places
	Logger   *slog.Logger
}

// Stats counts what happened to the rows of one file.
type Stats struct {
	Rows       int
	Skipped    int
	Duplicates int
	Unknown    map[string]int
}

// FileError aborts one file: its transaction is rolled back, it stays out of
// the ledger and the run moves on.
type FileError struct {
	Source string
	File   string
	Err    error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Source, e.File, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

var (
	registryMu sync.RWMutex
	loaders    = make(map[string]Loader)
)

// Register adds a loader to the global registry.
func Register(l Loader) {
	registryMu.Lock()
	defer registryMu.Unlock()
	loaders[l.Name()] = l
}

// Get returns a registered loader by name.
func Get(name string) (Loader, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	l, ok := loaders[name]
	if !ok {
		return nil, fmt.Errorf("unknown source: %q", name)
	}
	return l, nil
}

// All returns registered loaders sorted by name.
func All() []Loader {
	registryMu.RLock()
	defer registryMu.RUnlock()
	result := make([]Loader, 0, len(loaders))
	for _, l := range loaders {
		result = append(result, l)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}
