// Package graph builds the import graph for a repository working copy.
//
// The supported language family is Python. Import targets are resolved
// with a two-step rule: a sibling file in the importer's directory, then a
// file at the repository root. Anything else (external packages, dynamic
// imports) is dropped. Files with identical basenames in unrelated
// subdirectories can misresolve under this rule; that approximation is
// intentional and documented rather than fixed.
package graph

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/joescharf/repochat/internal/models"
)

// Files larger than this are skipped during the scan.
const maxFileSize = 100 * 1024

// importQuery captures module names from both import statement forms.
const importQuery = `
(import_statement name: (dotted_name) @module)
(import_statement name: (aliased_import name: (dotted_name) @module))
(import_from_statement module_name: (dotted_name) @module)
(import_from_statement module_name: (relative_import (dotted_name) @module))
`

var pythonLang = python.GetLanguage()

// Build scans root for Python source files and returns the per-file index
// plus the inverted usage index. Per-file parse failures are isolated: the
// file is recorded with no imports. Build never returns a partial graph;
// a walk or read failure fails the whole call.
func Build(root string) (map[string]*models.FileRecord, map[string][]string, error) {
	var files []string
	contents := make(map[string][]byte)

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".py") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		if info.Size() > maxFileSize {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		files = append(files, rel)
		contents[rel] = data
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scan working copy: %w", err)
	}

	fileSet := make(map[string]bool, len(files))
	for _, f := range files {
		fileSet[f] = true
	}

	fileIndex := make(map[string]*models.FileRecord, len(files))
	usageIndex := make(map[string][]string, len(files))
	for _, f := range files {
		usageIndex[f] = []string{}
	}

	for _, f := range files {
		dir := path.Dir(f)
		resolved := []string{}
		seen := make(map[string]bool)
		for _, name := range parseImports(contents[f]) {
			target, ok := resolveImport(fileSet, dir, name)
			if !ok || seen[target] {
				continue
			}
			seen[target] = true
			resolved = append(resolved, target)
		}
		fileIndex[f] = &models.FileRecord{
			Path:    f,
			Content: string(contents[f]),
			Imports: resolved,
		}
	}

	// Invert the import relation. Every resolved target is a known file,
	// so every appended entry has a corresponding usageIndex key.
	for _, f := range files {
		for _, target := range fileIndex[f].Imports {
			usageIndex[target] = append(usageIndex[target], f)
		}
	}

	return fileIndex, usageIndex, nil
}

// EdgeCount returns the number of resolved import edges in a file index.
func EdgeCount(fileIndex map[string]*models.FileRecord) int {
	n := 0
	for _, rec := range fileIndex {
		n += len(rec.Imports)
	}
	return n
}

// parseImports extracts imported module names from Python source using the
// tree-sitter grammar. Dotted names keep only their top-level segment, the
// same way the import is resolved against files on disk. A file that fails
// to parse yields no imports.
func parseImports(source []byte) []string {
	parser := sitter.NewParser()
	parser.SetLanguage(pythonLang)
	tree := parser.Parse(nil, source)
	if tree == nil {
		return nil
	}
	defer tree.Close()

	query, err := sitter.NewQuery([]byte(importQuery), pythonLang)
	if err != nil {
		return nil
	}
	defer query.Close()

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(query, tree.RootNode())

	var names []string
	seen := make(map[string]bool)
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		for _, cap := range match.Captures {
			name := cap.Node.Content(source)
			if i := strings.Index(name, "."); i >= 0 {
				name = name[:i]
			}
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// resolveImport maps a module name to an in-repo file: first a sibling in
// the importer's directory, then a repository-root file. First match wins.
func resolveImport(fileSet map[string]bool, dir, name string) (string, bool) {
	candidate := path.Join(dir, name+".py")
	if fileSet[candidate] {
		return candidate, true
	}
	if fileSet[name+".py"] {
		return name + ".py", true
	}
	return "", false
}
