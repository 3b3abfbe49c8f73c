package variables

import (
	"errors"
	"os"
	"sort"
	"strings"
)

// ErrPathNotFound is the navigation-level miss, distinct from the
// engine-level ErrVariableNotFound so providers can distinguish "key
// absent" from "source unknown".
var ErrPathNotFound = errors.New("variables: path not found")

// Provider is the capability set every variable source implements:
// Get resolves a dotted path, List enumerates what's available for
// diagnostics, SourceName identifies it in error messages.
type Provider interface {
	Get(path string, ctx *Context) (any, error)
	List(ctx *Context) []string
	SourceName() string
}

// getNested walks a dot-separated path over a generic map tree,
// distinguishing "missing" via ErrPathNotFound rather than a zero-value
// type coincidence.
func getNested(data map[string]any, path string) (any, error) {
	if path == "" {
		return nil, ErrPathNotFound
	}
	keys := strings.Split(path, ".")
	var current any = data
	for _, key := range keys {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, ErrPathNotFound
		}
		v, ok := m[key]
		if !ok {
			return nil, ErrPathNotFound
		}
		current = v
	}
	return current, nil
}

func flattenKeys(data map[string]any, prefix string) []string {
	keys := make([]string, 0, len(data))
	for k, v := range data {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			keys = append(keys, flattenKeys(nested, full)...)
		} else {
			keys = append(keys, full)
		}
	}
	sort.Strings(keys)
	return keys
}

// jobVariablesProvider resolves ${variables.*}.
type jobVariablesProvider struct{}

func (jobVariablesProvider) Get(path string, ctx *Context) (any, error) {
	return getNested(ctx.Variables, path)
}
func (jobVariablesProvider) List(ctx *Context) []string { return flattenKeys(ctx.Variables, "") }
func (jobVariablesProvider) SourceName() string         { return "variables" }

// environmentProvider resolves ${ENV.*}, optionally falling back to the
// process environment.
type environmentProvider struct{}

func (environmentProvider) Get(path string, ctx *Context) (any, error) {
	if v, err := getNested(ctx.Env, path); err == nil {
		return v, nil
	}
	if ctx.AllowEnvFallback {
		if v, ok := os.LookupEnv(path); ok {
			return v, nil
		}
	}
	return nil, ErrPathNotFound
}

func (environmentProvider) List(ctx *Context) []string {
	keys := flattenKeys(ctx.Env, "")
	if ctx.AllowEnvFallback {
		for _, kv := range os.Environ() {
			if idx := strings.IndexByte(kv, '='); idx >= 0 {
				keys = append(keys, kv[:idx])
			}
		}
	}
	return keys
}
func (environmentProvider) SourceName() string { return "ENV" }

// inputProvider resolves ${input.*}, the output of the previous step.
type inputProvider struct{}

func (inputProvider) Get(path string, ctx *Context) (any, error) {
	return getNested(ctx.Input, path)
}
func (inputProvider) List(ctx *Context) []string { return flattenKeys(ctx.Input, "") }
func (inputProvider) SourceName() string         { return "input" }

// paginationProvider resolves ${pagination.*} with built-in counters that
// the caller may override via ctx.Pagination.
type paginationProvider struct{}

func (paginationProvider) Get(path string, ctx *Context) (any, error) {
	if v, ok := ctx.Pagination[path]; ok {
		return v, nil
	}
	if v, ok := paginationBuiltins[path]; ok {
		return v, nil
	}
	return nil, ErrPathNotFound
}

func (paginationProvider) List(ctx *Context) []string {
	keys := make([]string, 0, len(paginationBuiltins)+len(ctx.Pagination))
	for k := range paginationBuiltins {
		keys = append(keys, k)
	}
	for k := range ctx.Pagination {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
func (paginationProvider) SourceName() string { return "pagination" }

// metadataProvider resolves ${metadata.*}, per-job meta like job_id.
type metadataProvider struct{}

func (metadataProvider) Get(path string, ctx *Context) (any, error) {
	return getNested(ctx.Metadata, path)
}
func (metadataProvider) List(ctx *Context) []string { return flattenKeys(ctx.Metadata, "") }
func (metadataProvider) SourceName() string         { return "metadata" }

// registry is the fixed source-name -> Provider mapping.
func registry() map[string]Provider {
	return map[string]Provider{
		"variables":  jobVariablesProvider{},
		"ENV":        environmentProvider{},
		"input":      inputProvider{},
		"pagination": paginationProvider{},
		"metadata":   metadataProvider{},
	}
}
