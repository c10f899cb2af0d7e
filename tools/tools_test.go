package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/autodoc/agentloop"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newRegistry(t *testing.T, env *LocalEnvironment) *agentloop.Registry {
	t.Helper()
	c := agentloop.NewCatalog()
	require.NoError(t, Register(c, env))
	return agentloop.BuildRegistry(c, agentloop.RegistryOptions{})
}

func call(t *testing.T, reg *agentloop.Registry, name string, args map[string]any) agentloop.ExecutionRecord {
	t.Helper()
	a, ok := reg.Get(name)
	require.True(t, ok, "tool %s not registered", name)
	return agentloop.NewSandbox().Execute(context.Background(), a, args)
}

func TestRegisterAddsAllTools(t *testing.T) {
	reg := newRegistry(t, NewLocalEnvironment(t.TempDir()))
	var names []string
	for _, a := range reg.List() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{
		"read_project_file", "list_project_files", "write_project_file", "find_todos", "analyze_imports",
		"terminate", "get_current_time", "get_working_directory", "list_environment_variables",
	}, names)
	assert.Equal(t, "terminate", reg.TerminalName())
}

func TestToolSchemas(t *testing.T) {
	reg := newRegistry(t, NewLocalEnvironment(t.TempDir()))

	read, _ := reg.Get("read_project_file")
	assert.Equal(t, []string{"name"}, read.Parameters.Required)
	assert.Equal(t, "string", read.Parameters.Properties["name"].Type)

	list, _ := reg.Get("list_project_files")
	assert.Empty(t, list.Parameters.Required)
	assert.Equal(t, "boolean", list.Parameters.Properties["recursive"].Type)

	write, _ := reg.Get("write_project_file")
	assert.ElementsMatch(t, []string{"name", "content"}, write.Parameters.Required)

	todos, _ := reg.Get("find_todos")
	assert.Equal(t, "integer", todos.Parameters.Properties["max_results"].Type)

	term, _ := reg.Get("terminate")
	assert.True(t, term.Terminal)
	assert.Equal(t, []string{"message"}, term.Parameters.Required)
	assert.Equal(t, []string{TagSystem}, term.Tags)
}

func TestReadProjectFile(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"main.py": "print('hi')\n"})
	reg := newRegistry(t, NewLocalEnvironment(root))

	rec := call(t, reg, "read_project_file", map[string]any{"name": "main.py"})
	require.Nil(t, rec.Error)
	assert.Equal(t, "print('hi')\n", rec.Result)

	rec = call(t, reg, "read_project_file", map[string]any{"name": "missing.py"})
	require.NotNil(t, rec.Error)
	assert.Contains(t, *rec.Error, "file not found")
}

func TestReadProjectFileLatin1Fallback(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "legacy.txt"), []byte{'c', 'a', 'f', 0xe9}, 0o644))

	text, err := NewLocalEnvironment(root).ReadText("legacy.txt")
	require.NoError(t, err)
	assert.Equal(t, "café", text)
}

func TestListProjectFiles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"b.py":            "",
		"a.PY":            "",
		"README.md":       "",
		"pkg/c.py":        "",
		".git/hooks/x.py": "",
	})
	reg := newRegistry(t, NewLocalEnvironment(root))

	rec := call(t, reg, "list_project_files", map[string]any{})
	require.Nil(t, rec.Error)
	assert.Equal(t, []string{"a.PY", "b.py", "pkg/c.py"}, rec.Result)

	rec = call(t, reg, "list_project_files", map[string]any{"extension": ".py", "recursive": false})
	assert.Equal(t, []string{"a.PY", "b.py"}, rec.Result)

	rec = call(t, reg, "list_project_files", map[string]any{"extension": ".md"})
	assert.Equal(t, []string{"README.md"}, rec.Result)
}

func TestWriteProjectFile(t *testing.T) {
	root := t.TempDir()
	reg := newRegistry(t, NewLocalEnvironment(root))

	rec := call(t, reg, "write_project_file", map[string]any{"name": "docs/README.md", "content": "# Hello"})
	require.Nil(t, rec.Error)
	assert.Equal(t, WriteResult{Status: "ok", Path: "docs/README.md"}, rec.Result)

	data, err := os.ReadFile(filepath.Join(root, "docs", "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Hello", string(data))

	rec = call(t, reg, "write_project_file", map[string]any{"name": "docs/README.md", "content": "# Again"})
	require.NotNil(t, rec.Error)
	assert.Contains(t, *rec.Error, "already exists")

	rec = call(t, reg, "write_project_file", map[string]any{"name": "docs/README.md", "content": "# Again", "overwrite": true})
	require.Nil(t, rec.Error)
	data, _ = os.ReadFile(filepath.Join(root, "docs", "README.md"))
	assert.Equal(t, "# Again", string(data))
}

func TestWriteProjectFileMissingContent(t *testing.T) {
	root := t.TempDir()
	reg := newRegistry(t, NewLocalEnvironment(root))

	rec := call(t, reg, "write_project_file", map[string]any{"name": "x.md"})
	require.NotNil(t, rec.Error)
	assert.Equal(t, "Missing required parameters: [content]", *rec.Error)
	assert.NoFileExists(t, filepath.Join(root, "x.md"))
}

func TestFindTodos(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.py":     "x = 1\n# TODO: fix\n",
		"sub/b.go": "package b\n\n// FIXME later\nvar y = 2 // TODO too\n",
		"bin.dat":  "TODO\x00binary",
	})
	reg := newRegistry(t, NewLocalEnvironment(root))

	rec := call(t, reg, "find_todos", map[string]any{})
	require.Nil(t, rec.Error)
	assert.Equal(t, []TodoMatch{
		{File: "a.py", LineNo: 2, Line: "# TODO: fix"},
		{File: "sub/b.go", LineNo: 3, Line: "// FIXME later"},
		{File: "sub/b.go", LineNo: 4, Line: "var y = 2 // TODO too"},
	}, rec.Result)

	rec = call(t, reg, "find_todos", map[string]any{"max_results": 1})
	assert.Len(t, rec.Result, 1)

	rec = call(t, reg, "find_todos", map[string]any{"recursive": false})
	assert.Len(t, rec.Result, 1)

	rec = call(t, reg, "find_todos", map[string]any{"path": "nowhere"})
	require.NotNil(t, rec.Error)
}

func TestAnalyzeImportsPython(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"m.py": `import os, sys as system
import json
from pathlib import Path
from typing import (
    Any,
    Dict,  # comment
)
import os
`})
	reg := newRegistry(t, NewLocalEnvironment(root))

	rec := call(t, reg, "analyze_imports", map[string]any{"name": "m.py"})
	require.Nil(t, rec.Error)
	assert.Equal(t, &ImportSummary{
		Imports:     []string{"json", "os", "sys"},
		FromImports: []string{"pathlib: Path", "typing: Any, Dict"},
	}, rec.Result)
}

func TestAnalyzeImportsGo(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"m.go": `package m

import (
	"fmt"
	str "strings"
	"fmt"
)
`})
	reg := newRegistry(t, NewLocalEnvironment(root))

	rec := call(t, reg, "analyze_imports", map[string]any{"name": "m.go"})
	require.Nil(t, rec.Error)
	assert.Equal(t, &ImportSummary{
		Imports:     []string{"fmt", "strings"},
		FromImports: []string{"strings: str"},
	}, rec.Result)
}

func TestAnalyzeImportsUnsupported(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"notes.txt": "import os"})
	reg := newRegistry(t, NewLocalEnvironment(root))

	rec := call(t, reg, "analyze_imports", map[string]any{"name": "notes.txt"})
	require.NotNil(t, rec.Error)
	assert.Contains(t, *rec.Error, "unsupported source file")
}

func TestSystemTools(t *testing.T) {
	root := t.TempDir()
	env := NewLocalEnvironment(root)
	env.environ = func() []string {
		return []string{"HOME=/home/me", "OPENAI_API_KEY=sk-123", "db_password=hunter2", "BROKEN"}
	}
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 0, time.FixedZone("", 3600))

	c := agentloop.NewCatalog()
	c.MustRegister(SystemTools(env, func() time.Time { return fixed })...)
	reg := agentloop.BuildRegistry(c, agentloop.RegistryOptions{Tags: []string{TagInfo}})

	rec := call(t, reg, "get_current_time", nil)
	assert.Equal(t, "2025-03-04T05:06:07+0100", rec.Result)

	rec = call(t, reg, "get_working_directory", nil)
	assert.Equal(t, env.Root(), rec.Result)

	rec = call(t, reg, "list_environment_variables", nil)
	assert.Equal(t, map[string]string{
		"HOME":           "/home/me",
		"OPENAI_API_KEY": "[redacted]",
		"db_password":    "[redacted]",
	}, rec.Result)

	_, ok := reg.Get("terminate")
	assert.False(t, ok, "terminate is not tagged info")
	require.NoError(t, reg.RegisterTerminate())
	rec = call(t, reg, "terminate", map[string]any{"message": "done"})
	assert.Equal(t, "done\n[Agent terminated]", rec.Result)
}

func TestFileIndexHook(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.py": "import os\n"})
	env := NewLocalEnvironment(root)
	index := NewFileIndex(env)

	c := agentloop.NewCatalog()
	require.NoError(t, Register(c, env))
	reg := agentloop.BuildRegistry(c, agentloop.RegistryOptions{})
	sb := agentloop.NewSandbox(agentloop.WithPostExecuteHook(index.Hook))
	ctx := agentloop.WithActionContext(context.Background(), &agentloop.ActionContext{RunID: "run-1"})

	exec := func(name string, args map[string]any) {
		a, _ := reg.Get(name)
		sb.Execute(ctx, a, args)
	}
	exec("read_project_file", map[string]any{"name": "a.py"})
	exec("analyze_imports", map[string]any{"name": "a.py"})
	exec("write_project_file", map[string]any{"name": "README.md", "content": "x"})
	exec("read_project_file", map[string]any{"name": "missing.py"})

	assert.Equal(t, []string{"a.py"}, index.Read("run-1"))
	assert.Equal(t, []string{"README.md"}, index.Written("run-1"))
	assert.Empty(t, index.Read("other"))
}

func TestResolve(t *testing.T) {
	env := NewLocalEnvironment("/project")
	assert.Equal(t, filepath.Join("/project", "a", "b.go"), env.Resolve("a/b.go"))
	assert.Equal(t, "/etc/hosts", env.Resolve("/etc/hosts"))
	assert.Equal(t, "a/b.go", env.Rel("/project/a/b.go"))

	home, err := os.UserHomeDir()
	if err == nil {
		assert.Equal(t, filepath.Join(home, "x"), env.Resolve("~/x"))
	}
}
