package tools

import (
	"bufio"
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/martinemde/autodoc/agentloop"
)

// Tags shared by the file tools.
const (
	TagFileOperations = "file_operations"
	TagRead           = "read"
	TagList           = "list"
	TagWrite          = "write"
	TagSearch         = "search"
	TagAnalyze        = "analyze"
)

type readFileArgs struct {
	Name string `json:"name"`
}

type listFilesArgs struct {
	Extension string `json:"extension,omitempty"`
	Recursive bool   `json:"recursive,omitempty"`
}

type writeFileArgs struct {
	Name      string `json:"name"`
	Content   string `json:"content"`
	Overwrite bool   `json:"overwrite,omitempty"`
}

type findTodosArgs struct {
	Path       string `json:"path,omitempty"`
	Recursive  bool   `json:"recursive,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

type analyzeImportsArgs struct {
	Name string `json:"name"`
}

// WriteResult is returned by write_project_file.
type WriteResult struct {
	Status string `json:"status"`
	Path   string `json:"path"`
}

// TodoMatch is one TODO or FIXME line found by find_todos.
type TodoMatch struct {
	File   string `json:"file"`
	LineNo int    `json:"line_no"`
	Line   string `json:"line"`
}

// ImportSummary is returned by analyze_imports. FromImports lists
// "module: names" entries for Python and "path: alias" entries for Go
// imports with an explicit name.
type ImportSummary struct {
	Imports     []string `json:"imports"`
	FromImports []string `json:"from_imports"`
}

// FileTools returns the project file tools bound to env.
func FileTools(env *LocalEnvironment) []agentloop.ToolDescriptor {
	return []agentloop.ToolDescriptor{
		agentloop.StructTool("read_project_file",
			"Read and return the content of a file. name is a path relative to the project root or absolute.",
			readFileArgs{},
			func(_ context.Context, in readFileArgs) (any, error) {
				return env.ReadText(in.Name)
			},
			agentloop.WithTags(TagFileOperations, TagRead)),

		agentloop.StructTool("list_project_files",
			"List files in the project filtered by extension (e.g. \".py\", \".md\"). Returns sorted relative paths.",
			listFilesArgs{Extension: ".py", Recursive: true},
			func(_ context.Context, in listFilesArgs) (any, error) {
				return listProjectFiles(env, in)
			},
			agentloop.WithTags(TagFileOperations, TagList)),

		agentloop.StructTool("write_project_file",
			"Write content to a file. Existing files are only replaced when overwrite is true.",
			writeFileArgs{},
			func(_ context.Context, in writeFileArgs) (any, error) {
				path, err := env.WriteText(in.Name, in.Content, in.Overwrite)
				if err != nil {
					return nil, err
				}
				return WriteResult{Status: "ok", Path: env.Rel(path)}, nil
			},
			agentloop.WithTags(TagFileOperations, TagWrite)),

		agentloop.StructTool("find_todos",
			"Search for TODO and FIXME annotations under path. Returns file, line_no and line for each match.",
			findTodosArgs{Path: ".", Recursive: true, MaxResults: 500},
			func(_ context.Context, in findTodosArgs) (any, error) {
				return findTodos(env, in)
			},
			agentloop.WithTags(TagFileOperations, TagSearch)),

		agentloop.StructTool("analyze_imports",
			"Parse a Go or Python source file and return its import statements.",
			analyzeImportsArgs{},
			func(_ context.Context, in analyzeImportsArgs) (any, error) {
				return analyzeImports(env, in.Name)
			},
			agentloop.WithTags(TagFileOperations, TagAnalyze)),
	}
}

func listProjectFiles(env *LocalEnvironment, in listFilesArgs) ([]string, error) {
	files, err := env.Files(".", in.Recursive)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(in.Extension)
	matched := []string{}
	for _, f := range files {
		if strings.HasSuffix(strings.ToLower(filepath.Base(f)), ext) {
			matched = append(matched, env.Rel(f))
		}
	}
	slices.Sort(matched)
	return matched, nil
}

func findTodos(env *LocalEnvironment, in findTodosArgs) ([]TodoMatch, error) {
	results := []TodoMatch{}
	if in.MaxResults <= 0 {
		return results, nil
	}

	root := env.Resolve(in.Path)
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("path not found: %s", root)
	}

	files := []string{root}
	if info.IsDir() {
		if files, err = env.Files(root, in.Recursive); err != nil {
			return nil, err
		}
	}

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil || looksBinary(data) {
			continue
		}
		scanner := bufio.NewScanner(strings.NewReader(decodeText(data)))
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if !strings.Contains(line, "TODO") && !strings.Contains(line, "FIXME") {
				continue
			}
			results = append(results, TodoMatch{File: env.Rel(f), LineNo: lineNo, Line: strings.TrimSpace(line)})
			if len(results) >= in.MaxResults {
				return results, nil
			}
		}
	}
	return results, nil
}

func analyzeImports(env *LocalEnvironment, name string) (*ImportSummary, error) {
	src, err := env.ReadText(name)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".go":
		return goImports(env.Resolve(name), src)
	case ".py", ".pyi":
		return pythonImports(src), nil
	default:
		return nil, fmt.Errorf("unsupported source file %s: expected .go or .py", name)
	}
}

func goImports(filename, src string) (*ImportSummary, error) {
	f, err := parser.ParseFile(token.NewFileSet(), filename, src, parser.ImportsOnly)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	var imports, named []string
	for _, spec := range f.Imports {
		path, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			path = spec.Path.Value
		}
		imports = append(imports, path)
		if spec.Name != nil {
			named = append(named, path+": "+spec.Name.Name)
		}
	}
	return &ImportSummary{Imports: sortedUnique(imports), FromImports: sortedUnique(named)}, nil
}

var (
	pyImportRe = regexp.MustCompile(`^\s*import\s+(.+)$`)
	pyFromRe   = regexp.MustCompile(`^\s*from\s+(\S+)\s+import\s+(.+)$`)
)

// pythonImports scans import statements line by line, joining parenthesized
// and backslash-continued from-imports.
func pythonImports(src string) *ImportSummary {
	var imports, from []string
	lines := strings.Split(src, "\n")

	for i := 0; i < len(lines); i++ {
		line := stripPyComment(lines[i])

		if m := pyFromRe.FindStringSubmatch(line); m != nil {
			names := m[2]
			for strings.HasSuffix(strings.TrimSpace(names), "\\") && i+1 < len(lines) {
				i++
				names = strings.TrimSuffix(strings.TrimSpace(names), "\\") + " " + stripPyComment(lines[i])
			}
			if strings.HasPrefix(strings.TrimSpace(names), "(") {
				for !strings.Contains(names, ")") && i+1 < len(lines) {
					i++
					names += " " + stripPyComment(lines[i])
				}
				names = strings.NewReplacer("(", "", ")", "").Replace(names)
			}
			from = append(from, m[1]+": "+strings.Join(pyNames(names), ", "))
			continue
		}
		if m := pyImportRe.FindStringSubmatch(line); m != nil {
			imports = append(imports, pyNames(m[1])...)
		}
	}
	return &ImportSummary{Imports: sortedUnique(imports), FromImports: sortedUnique(from)}
}

// pyNames splits "a as b, c" into the imported names ["a", "c"].
func pyNames(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		out = append(out, fields[0])
	}
	return out
}

func stripPyComment(line string) string {
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	return strings.TrimRight(line, " \t\r")
}

func sortedUnique(in []string) []string {
	out := slices.Clone(in)
	if out == nil {
		out = []string{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
