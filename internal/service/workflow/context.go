package workflow

import (
	"log/slog"
)

// Context is the per-run scratchpad carried through a single engine.Run
// call. It is owned by exactly one run and must never be shared between
// concurrent runs. Operations never fail.
type Context struct {
	logger *slog.Logger

	data    map[string]any
	history []string
	errors  []string
}

// NewContext creates an empty execution context for one run.
func NewContext(logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		logger: logger,
		data:   make(map[string]any),
	}
}

// Set stores value under key, overwriting any prior value.
func (c *Context) Set(key string, value any) {
	c.data[key] = value
}

// Get looks up key. The second return value is false if key was never set.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.data[key]
	return v, ok
}

// Data returns the full data map. Callers must not mutate the result.
func (c *Context) Data() map[string]any {
	return c.data
}

// AddHistory appends name to the completed-node history, in completion
// order.
func (c *Context) AddHistory(name string) {
	c.history = append(c.history, name)
}

// History returns the ordered list of node names that completed
// successfully during this run.
func (c *Context) History() []string {
	return append([]string(nil), c.history...)
}

// AddError records description and logs it at error severity. The run
// continues — this does not abort traversal.
func (c *Context) AddError(description string) {
	c.errors = append(c.errors, description)
	c.logger.Error(description)
}

// Errors returns the ordered list of error descriptions recorded during
// this run. An empty result means the run completed with no failures.
func (c *Context) Errors() []string {
	return append([]string(nil), c.errors...)
}

// Status derives the execution status from whether any errors were
// recorded: COMPLETED iff errors is empty, else FAILED.
func (c *Context) Status() string {
	if len(c.errors) == 0 {
		return "COMPLETED"
	}
	return "FAILED"
}
