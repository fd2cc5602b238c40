package localfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/kirillkom/phase-edms/internal/core/ports"
)

// minRemoveDepth is the number of path separators a directory must have before
// Move is allowed to delete it.
const minRemoveDepth = 3

type Roots struct {
	Incoming    string
	ToBeChecked string
	Accepted    string
	Rejected    string
}

// Storage manages transmittal directories under one root per area.
type Storage struct {
	roots map[ports.TransmittalArea]string
}

func New(roots Roots) (*Storage, error) {
	s := &Storage{roots: map[ports.TransmittalArea]string{
		ports.AreaIncoming:    roots.Incoming,
		ports.AreaToBeChecked: roots.ToBeChecked,
		ports.AreaAccepted:    roots.Accepted,
		ports.AreaRejected:    roots.Rejected,
	}}
	for area, root := range s.roots {
		if root == "" {
			return nil, fmt.Errorf("%s root is not configured", area)
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve %s root: %w", area, err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("create %s root: %w", area, err)
		}
		s.roots[area] = abs
	}
	return s, nil
}

func (s *Storage) Path(area ports.TransmittalArea, basename string) string {
	return filepath.Join(s.roots[area], basename)
}

func (s *Storage) Exists(area ports.TransmittalArea, basename string) bool {
	info, err := os.Stat(s.Path(area, basename))
	return err == nil && info.IsDir()
}

func (s *Storage) ListDirs(area ports.TransmittalArea) ([]string, error) {
	entries, err := os.ReadDir(s.roots[area])
	if err != nil {
		return nil, fmt.Errorf("read %s root: %w", area, err)
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			out = append(out, entry.Name())
		}
	}
	return out, nil
}

// ListFiles returns the names of the regular files in dir, sorted.
func (s *Storage) ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var out []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			out = append(out, entry.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Storage) FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (s *Storage) Move(from, to ports.TransmittalArea, basename string, overwrite bool) error {
	src, dst := s.Path(from, basename), s.Path(to, basename)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("move source: %w", err)
	}
	if _, err := os.Stat(dst); err == nil {
		if !overwrite {
			return fmt.Errorf("move target already exists: %s", dst)
		}
		if err := removeAll(dst); err != nil {
			return err
		}
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("rename %s: %w", src, err)
	}
	if err := copyTree(src, dst); err != nil {
		return fmt.Errorf("copy %s across devices: %w", src, err)
	}
	return removeAll(src)
}

// removeAll refuses to delete shallow paths such as a root or a home directory.
func removeAll(path string) error {
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) || strings.Count(clean, string(filepath.Separator)) < minRemoveDepth {
		return fmt.Errorf("refusing to delete %s", clean)
	}
	if err := os.RemoveAll(clean); err != nil {
		return fmt.Errorf("remove %s: %w", clean, err)
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("write file: %w", err)
	}
	return out.Close()
}
