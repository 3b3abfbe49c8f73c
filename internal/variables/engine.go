package variables

import (
	"fmt"
	"regexp"
	"strings"
)

// tokenPattern matches ${source.path} references. Escaped tokens are
// handled separately via escapePattern before this runs.
var tokenPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\.([a-zA-Z0-9_.\-]+)\}`)

// escapePattern matches \${...}, the literal-dollar-brace escape.
var escapePattern = regexp.MustCompile(`\\(\$\{[^}]*\})`)

const escapePlaceholder = "\x00ESCAPED_VAR\x00"

// Engine resolves ${source.path} tokens against a Context using the fixed
// provider registry.
type Engine struct {
	providers map[string]Provider
}

// NewEngine returns an Engine wired to the standard five providers.
func NewEngine() *Engine {
	return &Engine{providers: registry()}
}

// Substitute replaces every ${source.path} token in text. Escaped tokens
// (\${...}) are restored verbatim without resolution. In strict mode an
// unresolved token returns an error; otherwise it's left in place.
func (e *Engine) Substitute(text string, ctx *Context) (string, error) {
	return e.substitute(text, ctx, nil, 0)
}

func (e *Engine) substitute(text string, ctx *Context, visited []string, depth int) (string, error) {
	if depth > ctx.maxDepth() {
		return "", &Error{Kind: ErrVariableError, Detail: "max recursion depth exceeded"}
	}

	var escaped []string
	withPlaceholders := escapePattern.ReplaceAllStringFunc(text, func(m string) string {
		literal := escapePattern.FindStringSubmatch(m)[1]
		escaped = append(escaped, literal)
		return escapePlaceholder
	})

	var firstErr error
	result := tokenPattern.ReplaceAllStringFunc(withPlaceholders, func(match string) string {
		if firstErr != nil {
			return match
		}
		sub := tokenPattern.FindStringSubmatch(match)
		source, path := sub[1], sub[2]
		token := source + "." + path

		for _, v := range visited {
			if v == token {
				firstErr = circularErr(token, append(append([]string(nil), visited...), token))
				return match
			}
		}

		provider, ok := e.providers[source]
		if !ok {
			if ctx.StrictMode {
				firstErr = unknownSourceErr(match, source)
				return match
			}
			return match
		}

		val, err := provider.Get(path, ctx)
		if err != nil {
			if ctx.StrictMode {
				firstErr = notFoundErr(match, source, path)
				return match
			}
			return match
		}

		str, isStr := val.(string)
		if !isStr {
			return fmt.Sprintf("%v", val)
		}
		if !tokenPattern.MatchString(str) {
			return str
		}
		resolved, err := e.substitute(str, ctx, append(visited, token), depth+1)
		if err != nil {
			firstErr = err
			return match
		}
		return resolved
	})
	if firstErr != nil {
		return "", firstErr
	}

	for _, literal := range escaped {
		result = strings.Replace(result, escapePlaceholder, literal, 1)
	}
	return result, nil
}

// SubstituteValue resolves tokens within an arbitrary value tree (string,
// map[string]any, []any), applying best-effort type coercion to strings
// that resolve to exactly one whole-string token.
func (e *Engine) SubstituteValue(value any, ctx *Context) (any, error) {
	switch v := value.(type) {
	case string:
		return e.substituteScalarString(v, ctx)
	case map[string]any:
		return e.SubstituteMap(v, ctx)
	case []any:
		return e.SubstituteSlice(v, ctx)
	default:
		return value, nil
	}
}

// substituteScalarString resolves a standalone string value, auto-coercing
// the result when the entire string is a single token (e.g.
// "${variables.count}" becomes an int, not "5").
func (e *Engine) substituteScalarString(s string, ctx *Context) (any, error) {
	if m := tokenPattern.FindStringSubmatch(s); m != nil && m[0] == s {
		source, path := m[1], m[2]
		provider, ok := e.providers[source]
		if !ok {
			if ctx.StrictMode {
				return nil, unknownSourceErr(s, source)
			}
			return s, nil
		}
		val, err := provider.Get(path, ctx)
		if err != nil {
			if ctx.StrictMode {
				return nil, notFoundErr(s, source, path)
			}
			return s, nil
		}
		if str, ok := val.(string); ok {
			if tokenPattern.MatchString(str) {
				return e.substitute(str, ctx, []string{source + "." + path}, 1)
			}
			return autoConvert(str), nil
		}
		return val, nil
	}
	return e.Substitute(s, ctx)
}

// SubstituteMap walks a map recursively, substituting every string leaf.
func (e *Engine) SubstituteMap(m map[string]any, ctx *Context) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		resolved, err := e.SubstituteValue(v, ctx)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

// SubstituteSlice walks a slice recursively, substituting every string leaf.
func (e *Engine) SubstituteSlice(s []any, ctx *Context) ([]any, error) {
	out := make([]any, len(s))
	for i, v := range s {
		resolved, err := e.SubstituteValue(v, ctx)
		if err != nil {
			return nil, err
		}
		out[i] = resolved
	}
	return out, nil
}

// GetVariable resolves a single "source.path" reference directly, returning
// def if the source is unknown or the path misses.
func (e *Engine) GetVariable(sourceDotPath string, ctx *Context, def any) any {
	idx := strings.IndexByte(sourceDotPath, '.')
	if idx < 0 {
		return def
	}
	source, path := sourceDotPath[:idx], sourceDotPath[idx+1:]
	provider, ok := e.providers[source]
	if !ok {
		return def
	}
	val, err := provider.Get(path, ctx)
	if err != nil {
		return def
	}
	return val
}

// Validate dry-runs substitution over text and reports whether every token
// resolves under ctx, without caring about the resolved value.
func (e *Engine) Validate(text string, ctx *Context) error {
	_, err := e.Substitute(text, ctx)
	return err
}
