// Package linkstore persists collected message permalinks as one
// "<channel>_links.txt" file per source channel.
package linkstore

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"relaybot/pkg/relay"
)

const (
	// DefaultDir is the directory link files are kept in.
	DefaultDir = "links"

	fileSuffix = "_links.txt"
)

// ErrNoLinkFile indicates that no link file exists for a source.
var ErrNoLinkFile = errors.New("linkstore: link file not found")

// FileInfo summarizes one stored link file.
type FileInfo struct {
	// Channel is the safe channel name the file was collected from.
	Channel string
	// Path is the file location.
	Path string
	// Count is the number of non-blank lines.
	Count int
}

// Store reads and writes link files under one directory.
type Store struct {
	dir string
}

// New creates a store rooted at dir, or DefaultDir when dir is empty.
func New(dir string) *Store {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultDir
	}

	return &Store{dir: dir}
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// PathFor returns the link file path for a safe channel name.
func (s *Store) PathFor(name string) string {
	return filepath.Join(s.dir, name+fileSuffix)
}

// ResolveSource maps a /sendto source argument to a link file path.
//
// Arguments ending in .txt name a file inside the store directory; anything
// else is treated as a channel reference.
func (s *Store) ResolveSource(arg string) string {
	arg = strings.TrimSpace(arg)
	if strings.HasSuffix(arg, ".txt") {
		return filepath.Join(s.dir, filepath.Base(arg))
	}
	if ref, err := relay.ParseChannelRef(arg); err == nil {
		return s.PathFor(relay.SafeChannelName(ref))
	}

	return s.PathFor(relay.SafeName(arg))
}

// Write replaces the link file of name with links, one per line.
func (s *Store) Write(name string, links []string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create link dir %s: %w", s.dir, err)
	}

	path := s.PathFor(name)
	tmp, err := os.CreateTemp(s.dir, "."+name+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp link file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	writer := bufio.NewWriter(tmp)
	for _, link := range links {
		if _, err := writer.WriteString(link + "\n"); err != nil {
			_ = tmp.Close()
			return "", fmt.Errorf("write link file %s: %w", path, err)
		}
	}
	if err := writer.Flush(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("flush link file %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close link file %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("replace link file %s: %w", path, err)
	}

	return path, nil
}

// Read returns the non-blank, trimmed lines of the file at path.
func (s *Store) Read(path string) ([]string, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, ErrNoLinkFile)
	}
	if err != nil {
		return nil, fmt.Errorf("open link file %s: %w", path, err)
	}
	defer file.Close()

	var links []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			links = append(links, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan link file %s: %w", path, err)
	}

	return links, nil
}

// List returns every link file in the store sorted by channel name.
func (s *Store) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list link dir %s: %w", s.dir, err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		links, err := s.Read(path)
		if err != nil {
			return nil, err
		}
		files = append(files, FileInfo{
			Channel: strings.TrimSuffix(entry.Name(), fileSuffix),
			Path:    path,
			Count:   len(links),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Channel < files[j].Channel
	})

	return files, nil
}
