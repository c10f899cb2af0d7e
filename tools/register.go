// Package tools provides the project file and system tools an autodoc
// agent works with.
package tools

import (
	"github.com/martinemde/autodoc/agentloop"
)

// Register adds every built-in tool bound to env to c.
func Register(c *agentloop.Catalog, env *LocalEnvironment) error {
	all := append(FileTools(env), SystemTools(env, nil)...)
	for _, d := range all {
		if err := c.Register(d); err != nil {
			return err
		}
	}
	return nil
}
