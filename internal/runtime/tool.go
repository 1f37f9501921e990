package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/user/bookbot/internal/types"
	"github.com/user/bookbot/internal/view"
	"github.com/user/bookbot/pkg/llm"
)

// Step is one yield of a tool body. Intermediate steps only update the view.
// The final step also carries the structured result recorded in the
// conversation and any system notes to append after it.
type Step struct {
	View   view.Node
	Final  bool
	Result any
	Notes  []string
}

// Call is a single tool invocation as requested by the model.
type Call struct {
	ID      types.ToolCallID
	Name    string
	Args    json.RawMessage
	Latency time.Duration
}

// Decode unmarshals the call arguments into v.
func (c *Call) Decode(v any) error {
	args := c.Args
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("decode %s arguments: %w", c.Name, err)
	}
	return nil
}

// Pause simulates work for the configured latency.
func (c *Call) Pause(ctx context.Context) error {
	if c.Latency <= 0 {
		return nil
	}
	t := time.NewTimer(c.Latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tool defines the interface for a UI-producing tool. Generate yields view
// updates and ends with a final step; it never returns an error, failures
// are expressed as a final step with an error view.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	// Placeholder is shown as soon as the call is dispatched. A zero node
	// falls back to a spinner.
	Placeholder() view.Node
	Generate(ctx context.Context, call *Call) iter.Seq[Step]
}

// Registry holds registered tools and their compiled parameter schemas.
type Registry struct {
	tools   map[string]Tool
	schemas map[string]*ArgsSchema
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*ArgsSchema),
	}
}

// Register adds a tool to the registry. Names must be unique and non-empty
// and the parameter schema must compile.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	schema, err := CompileSchema(name, t.Parameters())
	if err != nil {
		return fmt.Errorf("tool %q: %w", name, err)
	}
	r.tools[name] = t
	r.schemas[name] = schema
	return nil
}

// Validate checks args against the schema of the tool called name.
func (r *Registry) Validate(name string, args json.RawMessage) error {
	schema, ok := r.schemas[name]
	if !ok {
		return fmt.Errorf("unknown tool %q", name)
	}
	return schema.Validate(args)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	all := r.All()
	names := make([]string, len(all))
	for i, t := range all {
		names[i] = t.Name()
	}
	return names
}

// AsLLMTools converts registered tools to the LLM provider format.
func (r *Registry) AsLLMTools() []llm.Tool {
	all := r.All()
	out := make([]llm.Tool, 0, len(all))
	for _, t := range all {
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.Function{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return out
}
