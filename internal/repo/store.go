// Package repo holds the analysis state for the currently loaded
// repository. A load builds a complete snapshot off to the side and swaps
// it in atomically; readers during a reload keep seeing the prior snapshot.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joescharf/repochat/internal/git"
	"github.com/joescharf/repochat/internal/graph"
	"github.com/joescharf/repochat/internal/models"
	"github.com/joescharf/repochat/internal/store"
)

// ErrNotFound reports a path absent from the current snapshot. Expected,
// not exceptional: callers degrade per-file.
var ErrNotFound = errors.New("file not found in current snapshot")

// ErrNoRepository reports that no snapshot has been loaded yet.
var ErrNoRepository = errors.New("no repository loaded")

// ScanError wraps an unexpected failure enumerating or reading files.
// Individual parse failures are not scan errors; they are isolated inside
// the graph builder.
type ScanError struct {
	Err error
}

func (e *ScanError) Error() string { return fmt.Sprintf("scan repository: %v", e.Err) }
func (e *ScanError) Unwrap() error { return e.Err }

// Snapshot is the immutable analysis state of one loaded repository.
type Snapshot struct {
	SourceURL  string
	FileIndex  map[string]*models.FileRecord
	UsageIndex map[string][]string
}

// Paths returns the snapshot's file paths sorted lexically.
func (s *Snapshot) Paths() []string {
	paths := make([]string, 0, len(s.FileIndex))
	for p := range s.FileIndex {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Store owns the current snapshot behind a read-mostly lock.
type Store struct {
	git          git.Client
	archive      store.Store // optional; nil disables scan archiving
	cloneTimeout time.Duration

	mu      sync.RWMutex
	current *Snapshot
}

// New creates a snapshot store. archive may be nil.
func New(gc git.Client, archive store.Store, cloneTimeout time.Duration) *Store {
	return &Store{
		git:          gc,
		archive:      archive,
		cloneTimeout: cloneTimeout,
	}
}

// Load clones sourceURL into an ephemeral working copy, builds the import
// graph, and swaps the assembled snapshot in. The working copy is removed
// on every exit path. On failure the previous snapshot stays untouched.
func (s *Store) Load(ctx context.Context, sourceURL string) error {
	if s.cloneTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cloneTimeout)
		defer cancel()
	}

	workDir, err := os.MkdirTemp("", "repochat-clone-*")
	if err != nil {
		return &ScanError{Err: fmt.Errorf("create working dir: %w", err)}
	}
	defer os.RemoveAll(workDir)

	if err := s.git.CloneRepo(ctx, sourceURL, workDir); err != nil {
		return err
	}

	fileIndex, usageIndex, err := graph.Build(workDir)
	if err != nil {
		return &ScanError{Err: err}
	}

	snap := &Snapshot{
		SourceURL:  sourceURL,
		FileIndex:  fileIndex,
		UsageIndex: usageIndex,
	}

	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()

	s.archiveScan(ctx, snap)
	return nil
}

// Current returns the current snapshot, or nil if none is loaded. The
// returned snapshot is immutable; a concurrent reload never mutates it.
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SourceURL returns the loaded repository's URL, if any.
func (s *Store) SourceURL() (string, bool) {
	snap := s.Current()
	if snap == nil {
		return "", false
	}
	return snap.SourceURL, true
}

// FileStructure summarizes the current snapshot.
func (s *Store) FileStructure() (*models.FileStructure, error) {
	snap := s.Current()
	if snap == nil {
		return nil, ErrNoRepository
	}
	types := make(map[string]int)
	for p := range snap.FileIndex {
		ext := strings.TrimPrefix(path.Ext(p), ".")
		if ext == "" {
			ext = "none"
		}
		types[ext]++
	}
	return &models.FileStructure{
		TotalFiles: len(snap.FileIndex),
		FileTypes:  types,
	}, nil
}

// FetchFile returns the record for a relative path in the current snapshot.
func (s *Store) FetchFile(filePath string) (*models.FileRecord, error) {
	snap := s.Current()
	if snap == nil {
		return nil, ErrNoRepository
	}
	rec, ok := snap.FileIndex[filePath]
	if !ok {
		return nil, fmt.Errorf("%s: %w", filePath, ErrNotFound)
	}
	return rec, nil
}

// UsageOf returns the import/dependent view of a file in the current snapshot.
func (s *Store) UsageOf(filePath string) (*models.FileUsage, error) {
	snap := s.Current()
	if snap == nil {
		return nil, ErrNoRepository
	}
	rec, ok := snap.FileIndex[filePath]
	if !ok {
		return nil, fmt.Errorf("%s: %w", filePath, ErrNotFound)
	}
	usedBy := snap.UsageIndex[filePath]
	return &models.FileUsage{
		Path:            filePath,
		Imports:         rec.Imports,
		UsedBy:          usedBy,
		DependencyCount: len(rec.Imports),
		DependentCount:  len(usedBy),
	}, nil
}

// structureEntry matches the archived graph_json shape: one entry per file
// with its imports and dependents.
type structureEntry struct {
	Imports []string `json:"imports"`
	UsedBy  []string `json:"used_by"`
}

// archiveScan records the completed scan. Best effort: archive failures are
// logged, never surfaced to the load caller.
func (s *Store) archiveScan(ctx context.Context, snap *Snapshot) {
	if s.archive == nil {
		return
	}

	structure := make(map[string]structureEntry, len(snap.FileIndex))
	for p, rec := range snap.FileIndex {
		structure[p] = structureEntry{
			Imports: rec.Imports,
			UsedBy:  snap.UsageIndex[p],
		}
	}
	graphJSON, err := json.Marshal(structure)
	if err != nil {
		slog.Warn("failed to encode scan graph", "error", err)
		return
	}

	rec := &models.ScanRecord{
		SourceURL:  snap.SourceURL,
		TotalFiles: len(snap.FileIndex),
		TotalEdges: graph.EdgeCount(snap.FileIndex),
		GraphJSON:  string(graphJSON),
	}
	if err := s.archive.RecordScan(ctx, rec); err != nil {
		slog.Warn("failed to archive scan", "error", err)
	}
}
