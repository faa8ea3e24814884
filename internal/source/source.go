// Package source models the caller-supplied file/folder tree and flattens it
// into an ordered list of job entries.
package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Node is either a FileSource or a FolderSource.
type Node interface {
	node()
}

// FileSource is a single file. Inside a FolderSource, RelativeDestPath is
// relative to the folder.
type FileSource struct {
	AbsolutePath     string
	RelativeDestPath string
}

// FolderSource is a folder whose files are emitted in stored order.
type FolderSource struct {
	AbsolutePath     string
	RelativeDestPath string
	Children         []FileSource
}

func (FileSource) node()   {}
func (FolderSource) node() {}

// Entry is one flattened job input.
type Entry struct {
	SourcePath   string
	RelativePath string
}

// Expand flattens nodes depth-first, preserving input order. A folder's
// children replace the folder in place and keep their subfolder names.
func Expand(nodes []Node) []Entry {
	entries := make([]Entry, 0, Count(nodes))
	for _, n := range nodes {
		switch v := n.(type) {
		case FileSource:
			entries = append(entries, Entry{SourcePath: v.AbsolutePath, RelativePath: cleanRel(v.RelativeDestPath)})
		case *FileSource:
			if v != nil {
				entries = append(entries, Entry{SourcePath: v.AbsolutePath, RelativePath: cleanRel(v.RelativeDestPath)})
			}
		case FolderSource:
			entries = appendFolder(entries, v)
		case *FolderSource:
			if v != nil {
				entries = appendFolder(entries, *v)
			}
		}
	}
	return entries
}

func appendFolder(entries []Entry, folder FolderSource) []Entry {
	for _, child := range folder.Children {
		entries = append(entries, Entry{
			SourcePath:   child.AbsolutePath,
			RelativePath: cleanRel(filepath.Join(folder.RelativeDestPath, child.RelativeDestPath)),
		})
	}
	return entries
}

// Count returns the number of leaf files across nodes.
func Count(nodes []Node) int {
	total := 0
	for _, n := range nodes {
		switch v := n.(type) {
		case FileSource:
			total++
		case *FileSource:
			if v != nil {
				total++
			}
		case FolderSource:
			total += len(v.Children)
		case *FolderSource:
			if v != nil {
				total += len(v.Children)
			}
		}
	}
	return total
}

func cleanRel(rel string) string {
	if rel == "" {
		return ""
	}
	return filepath.Clean(rel)
}

// Scan builds nodes from paths on disk. Files become FileSource values named
// by their base name; directories become FolderSource values containing every
// matching file beneath them in lexical walk order. An empty exts accepts
// every regular file.
func Scan(paths []string, exts []string) ([]Node, error) {
	nodes := make([]Node, 0, len(paths))
	for _, raw := range paths {
		path, err := filepath.Abs(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", raw, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("source %s does not exist", path)
			}
			return nil, fmt.Errorf("stat source %s: %w", path, err)
		}
		if !info.IsDir() {
			nodes = append(nodes, FileSource{AbsolutePath: path, RelativeDestPath: filepath.Base(path)})
			continue
		}
		folder, err := scanFolder(path, exts)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, folder)
	}
	return nodes, nil
}

func scanFolder(root string, exts []string) (FolderSource, error) {
	folder := FolderSource{AbsolutePath: root, RelativeDestPath: filepath.Base(root)}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !matchesExt(path, exts) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		folder.Children = append(folder.Children, FileSource{AbsolutePath: path, RelativeDestPath: rel})
		return nil
	})
	if err != nil {
		return FolderSource{}, fmt.Errorf("scan folder %s: %w", root, err)
	}
	return folder, nil
}

func matchesExt(path string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range exts {
		want = strings.ToLower(strings.TrimSpace(want))
		if want == "" {
			continue
		}
		if !strings.HasPrefix(want, ".") {
			want = "." + want
		}
		if ext == want {
			return true
		}
	}
	return false
}
