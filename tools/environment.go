package tools

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// sensitiveEnvPatterns are case-insensitive suffixes of variables whose
// values are redacted before being shown to a model.
var sensitiveEnvPatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
	"_CREDENTIALS",
}

const redacted = "[redacted]"

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

// skippedDirs are never descended into when walking a project.
var skippedDirs = map[string]bool{".git": true, ".hg": true, ".svn": true}

// LocalEnvironment resolves tool paths against a project root on the local
// filesystem.
type LocalEnvironment struct {
	root    string
	environ func() []string
}

// NewLocalEnvironment creates an environment rooted at root. An empty root
// means the process working directory.
func NewLocalEnvironment(root string) *LocalEnvironment {
	if root == "" {
		root, _ = os.Getwd()
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &LocalEnvironment{root: root, environ: os.Environ}
}

// Root returns the absolute project root.
func (e *LocalEnvironment) Root() string {
	return e.root
}

// Resolve expands a leading ~ and joins relative paths onto the root.
func (e *LocalEnvironment) Resolve(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(e.root, path)
}

// Rel returns path relative to the root when possible.
func (e *LocalEnvironment) Rel(path string) string {
	rel, err := filepath.Rel(e.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// ReadText reads a file as text. Content that is not valid UTF-8 is decoded
// as Latin-1, which cannot fail.
func (e *LocalEnvironment) ReadText(path string) (string, error) {
	resolved := e.Resolve(path)
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("file not found: %s", resolved)
	}
	if info.IsDir() {
		return "", fmt.Errorf("not a file: %s", resolved)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", resolved, err)
	}
	return decodeText(data), nil
}

func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

// looksBinary reports whether the first block of data holds a NUL byte.
func looksBinary(data []byte) bool {
	if len(data) > 8000 {
		data = data[:8000]
	}
	return bytes.IndexByte(data, 0) >= 0
}

// FileExistsError is returned when a write would replace a file without
// permission.
type FileExistsError struct{ Path string }

func (e *FileExistsError) Error() string {
	return fmt.Sprintf("file already exists: %s (set overwrite=true to replace)", e.Path)
}

// WriteText writes content, creating parent directories. It refuses to
// replace an existing file unless overwrite is set.
func (e *LocalEnvironment) WriteText(path, content string, overwrite bool) (string, error) {
	resolved := e.Resolve(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", &FileExistsError{Path: resolved}
		}
		return "", fmt.Errorf("open %s: %w", resolved, err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", resolved, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", resolved, err)
	}
	return resolved, nil
}

// Files lists regular files under dir in lexical order. Without recursive
// only dir's direct children are returned.
func (e *LocalEnvironment) Files(dir string, recursive bool) ([]string, error) {
	resolved := e.Resolve(dir)
	var files []string

	if !recursive {
		entries, err := os.ReadDir(resolved)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", resolved, err)
		}
		for _, entry := range entries {
			if entry.Type().IsRegular() {
				files = append(files, filepath.Join(resolved, entry.Name()))
			}
		}
		return files, nil
	}

	err := filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == resolved {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != resolved && skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", resolved, err)
	}
	sort.Strings(files)
	return files, nil
}

// Environment returns process environment variables with sensitive values
// redacted.
func (e *LocalEnvironment) Environment() map[string]string {
	out := make(map[string]string)
	for _, kv := range e.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		if isSensitiveEnvVar(name) {
			value = redacted
		}
		out[name] = value
	}
	return out
}
