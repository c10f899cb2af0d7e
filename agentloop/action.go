package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// ToolFunc is the callable behind a tool. args holds the model-supplied
// arguments with declared defaults filled in.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// ToolDescriptor is the static description of a tool held by a Catalog.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  Schema
	Func        ToolFunc
	Terminal    bool
	Tags        []string

	defaults map[string]any
}

// ToolOption configures a ToolDescriptor under construction.
type ToolOption func(*ToolDescriptor)

// WithParams sets the argument list and derives the schema from it.
func WithParams(params ...Param) ToolOption {
	return func(d *ToolDescriptor) {
		d.Parameters, d.defaults = SchemaFromParams(params)
	}
}

// WithSchema sets an explicit schema. No defaults are applied.
func WithSchema(s Schema) ToolOption {
	return func(d *ToolDescriptor) {
		d.Parameters = s.Clone()
		d.defaults = nil
	}
}

// WithTags attaches category labels.
func WithTags(tags ...string) ToolOption {
	return func(d *ToolDescriptor) {
		d.Tags = append(d.Tags, tags...)
	}
}

// AsTerminal marks the tool as one whose successful execution ends a run.
func AsTerminal() ToolOption {
	return func(d *ToolDescriptor) {
		d.Terminal = true
	}
}

// NewTool builds a descriptor. Without WithParams or WithSchema the tool
// takes no arguments.
func NewTool(name, description string, fn ToolFunc, opts ...ToolOption) ToolDescriptor {
	d := ToolDescriptor{
		Name:        name,
		Description: description,
		Parameters:  EmptySchema(),
		Func:        fn,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// StructTool builds a descriptor whose arguments decode into T. The schema
// comes from T's fields; defaults supplies the values of optional fields.
func StructTool[T any](name, description string, defaults T, fn func(context.Context, T) (any, error), opts ...ToolOption) ToolDescriptor {
	call := func(ctx context.Context, args map[string]any) (any, error) {
		in, err := DecodeArgs(args, defaults)
		if err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
	d := NewTool(name, description, call, opts...)
	d.Parameters = SchemaFromStruct(defaults)
	return d
}

// DecodeArgs decodes args on top of base, so keys absent from args keep
// base's values.
func DecodeArgs[T any](args map[string]any, base T) (T, error) {
	out := base
	raw, err := json.Marshal(args)
	if err != nil {
		return out, fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode arguments: %w", err)
	}
	return out, nil
}

func (d ToolDescriptor) clone() ToolDescriptor {
	out := d
	out.Parameters = d.Parameters.Clone()
	out.Tags = slices.Clone(d.Tags)
	out.defaults = maps.Clone(d.defaults)
	return out
}

// HasTag reports whether the descriptor carries tag.
func (d ToolDescriptor) HasTag(tag string) bool {
	return slices.Contains(d.Tags, tag)
}

// Action is an invocable tool resolved into a Registry.
type Action struct {
	Name        string
	Description string
	Parameters  Schema
	Terminal    bool
	Tags        []string

	fn       ToolFunc
	defaults map[string]any
}

func newAction(d ToolDescriptor) *Action {
	d = d.clone()
	return &Action{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  d.Parameters,
		Terminal:    d.Terminal,
		Tags:        d.Tags,
		fn:          d.Func,
		defaults:    d.defaults,
	}
}

// NewAction wraps a descriptor for direct registration into a Registry.
func NewAction(d ToolDescriptor) *Action {
	return newAction(d)
}

// Execute calls the underlying function with defaults merged under args.
// It performs no validation; use a Sandbox for that.
func (a *Action) Execute(ctx context.Context, args map[string]any) (any, error) {
	merged := make(map[string]any, len(a.defaults)+len(args))
	maps.Copy(merged, a.defaults)
	maps.Copy(merged, args)
	return a.fn(ctx, merged)
}
