package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/martinemde/autodoc/agentloop"
)

// DefaultGoals steer the agent toward writing a README.
func DefaultGoals() []agentloop.Goal {
	return []agentloop.Goal{
		{Name: "Gather Information", Description: "Read project files and build a README."},
		{Name: "Terminate", Description: "Call terminate when the README is ready."},
	}
}

type goalsFile struct {
	Goals []agentloop.Goal `yaml:"goals" validate:"required,min=1,dive"`
}

// LoadGoals reads goals from a YAML file of the form:
//
//	goals:
//	  - name: Gather Information
//	    description: Read the project files.
func LoadGoals(path string) ([]agentloop.Goal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read goals: %w", err)
	}
	return ParseGoals(data)
}

// ParseGoals decodes and validates a goals document.
func ParseGoals(data []byte) ([]agentloop.Goal, error) {
	var f goalsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse goals: %w", err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("invalid goals: %w", err)
	}
	return f.Goals, nil
}
