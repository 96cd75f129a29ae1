package models

import "time"

// FileRecord is one source file captured at scan time. Content is an
// immutable snapshot; imports hold only same-repository targets that
// resolved to a file.
type FileRecord struct {
	Path    string   `json:"path"`
	Content string   `json:"content"`
	Imports []string `json:"imports"`
}

// FileStructure summarizes a loaded repository for prompts and status output.
type FileStructure struct {
	TotalFiles int            `json:"total_files"`
	FileTypes  map[string]int `json:"file_types"`
}

// FileUsage describes one file's position in the import graph.
type FileUsage struct {
	Path            string   `json:"path"`
	Imports         []string `json:"imports"`
	UsedBy          []string `json:"used_by"`
	DependencyCount int      `json:"dependency_count"`
	DependentCount  int      `json:"dependent_count"`
}

// ScanRecord is one archived repository scan.
type ScanRecord struct {
	ID         string    `json:"id"`
	SourceURL  string    `json:"source_url"`
	TotalFiles int       `json:"total_files"`
	TotalEdges int       `json:"total_edges"`
	GraphJSON  string    `json:"-"`
	ScannedAt  time.Time `json:"scanned_at"`
}
