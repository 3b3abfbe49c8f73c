// Package variables implements the ${source.path} token substitution
// engine: a fixed provider registry, recursive resolution with cycle and
// depth guards, and best-effort type coercion.
package variables

// DefaultMaxRecursionDepth caps nested string-in-string resolution.
const DefaultMaxRecursionDepth = 10

// Built-in pagination counters, used when the context doesn't override them.
var paginationBuiltins = map[string]any{
	"current_page": 1,
	"page_size":    10,
	"total_pages":  0,
	"total_items":  0,
	"offset":       0,
}

// Context carries everything a Provider needs to resolve a token.
type Context struct {
	Variables  map[string]any
	Env        map[string]any
	Input      map[string]any
	Pagination map[string]any
	Metadata   map[string]any

	// StrictMode turns a provider miss into an error; in lenient mode the
	// token is left textually intact.
	StrictMode bool
	// MaxRecursionDepth bounds string-in-string substitution.
	MaxRecursionDepth int
	// AllowEnvFallback lets the ENV provider fall back to the process
	// environment when the configured map doesn't have the key.
	AllowEnvFallback bool
}

// NewContext returns a Context in strict mode with the default recursion cap.
func NewContext() *Context {
	return &Context{
		Variables:         map[string]any{},
		Env:               map[string]any{},
		Input:             map[string]any{},
		Pagination:        map[string]any{},
		Metadata:          map[string]any{},
		StrictMode:        true,
		MaxRecursionDepth: DefaultMaxRecursionDepth,
		AllowEnvFallback:  true,
	}
}

func (c *Context) maxDepth() int {
	if c.MaxRecursionDepth <= 0 {
		return DefaultMaxRecursionDepth
	}
	return c.MaxRecursionDepth
}
