package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/martinemde/autodoc/agentloop"
	"github.com/martinemde/autodoc/config"
	"github.com/martinemde/autodoc/tools"
)

func TestPrintFinalMemory(t *testing.T) {
	var buf bytes.Buffer
	printFinalMemory(&buf, []agentloop.Message{
		{Role: agentloop.RoleUser, Content: "Write a README."},
		{Role: agentloop.RoleAssistant, Content: "# Project"},
	}, 20)

	assert.Equal(t, "\n=== Final Memory (last 20 messages) ===\n"+
		"USER: Write a README.\n\n"+
		"ASSISTANT: # Project\n\n", buf.String())
}

func TestParseTranslator(t *testing.T) {
	tr, err := parseTranslator("function")
	require.NoError(t, err)
	assert.IsType(t, agentloop.FunctionCallingTranslator{}, tr)

	tr, err = parseTranslator("TEXT")
	require.NoError(t, err)
	assert.IsType(t, agentloop.TextProtocolTranslator{}, tr)

	_, err = parseTranslator("xml")
	assert.Error(t, err)
}

func TestBuildRegistryKeepsTerminate(t *testing.T) {
	env := tools.NewLocalEnvironment(t.TempDir())

	registry, err := buildRegistry(env, []string{tools.TagRead}, nil)
	require.NoError(t, err)
	var names []string
	for _, a := range registry.List() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"read_project_file", "terminate"}, names)

	registry, err = buildRegistry(env, nil, []string{"find_todos"})
	require.NoError(t, err)
	assert.Equal(t, 2, registry.Len())
}

func TestPrintTools(t *testing.T) {
	registry, err := buildRegistry(tools.NewLocalEnvironment(t.TempDir()), []string{tools.TagSystem}, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printTools(&buf, registry.List()))
	out := buf.String()
	assert.Contains(t, out, "terminate (terminal) [system]")
	assert.Contains(t, out, `"required":["message"]`)
	assert.Contains(t, out, "get_current_time [system, info]")
}

func TestNewLLMClientRejectsUnknownProvider(t *testing.T) {
	_, err := newLLMClient(config.Config{Provider: "no-such-provider", Model: "x", MaxTokens: 10}, zap.NewNop())
	assert.Error(t, err)
}
