package variables_test

import (
	"errors"
	"testing"

	"github.com/jonesrussell/crawlctl/internal/variables"
)

func testContext() *variables.Context {
	ctx := variables.NewContext()
	ctx.Variables = map[string]any{
		"username": "alice",
		"count":    "5",
		"nested":   map[string]any{"city": "Seattle"},
	}
	ctx.Env = map[string]any{"API_KEY": "secret123"}
	ctx.Input = map[string]any{"page_title": "Home"}
	ctx.Metadata = map[string]any{"job_id": "job-1"}
	return ctx
}

func TestEngine_Substitute_SimpleToken(t *testing.T) {
	e := variables.NewEngine()
	out, err := e.Substitute("Hello ${variables.username}", testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Hello alice" {
		t.Errorf("got %q, want %q", out, "Hello alice")
	}
}

func TestEngine_Substitute_NestedPath(t *testing.T) {
	e := variables.NewEngine()
	out, err := e.Substitute("${variables.nested.city}", testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Seattle" {
		t.Errorf("got %q, want %q", out, "Seattle")
	}
}

func TestEngine_Substitute_MultipleSources(t *testing.T) {
	e := variables.NewEngine()
	out, err := e.Substitute("${variables.username}/${input.page_title}/${metadata.job_id}", testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "alice/Home/job-1" {
		t.Errorf("got %q", out)
	}
}

func TestEngine_Substitute_EscapedToken(t *testing.T) {
	e := variables.NewEngine()
	out, err := e.Substitute(`literal \${variables.username} stays`, testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "literal ${variables.username} stays" {
		t.Errorf("got %q", out)
	}
}

func TestEngine_Substitute_UnknownSourceStrict(t *testing.T) {
	e := variables.NewEngine()
	_, err := e.Substitute("${bogus.path}", testContext())
	if !errors.Is(err, variables.ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}
}

func TestEngine_Substitute_UnknownSourceLenient(t *testing.T) {
	e := variables.NewEngine()
	ctx := testContext()
	ctx.StrictMode = false
	out, err := e.Substitute("${bogus.path}", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "${bogus.path}" {
		t.Errorf("got %q, want passthrough", out)
	}
}

func TestEngine_Substitute_MissingVariableStrict(t *testing.T) {
	e := variables.NewEngine()
	_, err := e.Substitute("${variables.nope}", testContext())
	if !errors.Is(err, variables.ErrVariableNotFound) {
		t.Errorf("expected ErrVariableNotFound, got %v", err)
	}
}

func TestEngine_Substitute_CircularReference(t *testing.T) {
	e := variables.NewEngine()
	ctx := testContext()
	ctx.Variables["a"] = "${variables.b}"
	ctx.Variables["b"] = "${variables.a}"
	_, err := e.Substitute("${variables.a}", ctx)
	if !errors.Is(err, variables.ErrCircularReference) {
		t.Errorf("expected ErrCircularReference, got %v", err)
	}
}

func TestEngine_Substitute_Idempotent(t *testing.T) {
	e := variables.NewEngine()
	ctx := testContext()

	once, err := e.Substitute("Hello ${variables.username} from ${metadata.job_id}", ctx)
	if err != nil {
		t.Fatalf("first pass error: %v", err)
	}
	twice, err := e.Substitute(once, ctx)
	if err != nil {
		t.Fatalf("second pass error: %v", err)
	}
	if twice != once {
		t.Errorf("substitution not idempotent: first %q, second %q", once, twice)
	}
}

func TestEngine_Substitute_PaginationBuiltins(t *testing.T) {
	e := variables.NewEngine()
	out, err := e.Substitute("page ${pagination.current_page} of ${pagination.total_pages}", testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "page 1 of 0" {
		t.Errorf("got %q", out)
	}
}

func TestEngine_Substitute_PaginationOverride(t *testing.T) {
	e := variables.NewEngine()
	ctx := testContext()
	ctx.Pagination["current_page"] = 3
	out, err := e.Substitute("${pagination.current_page}", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "3" {
		t.Errorf("got %q, want %q", out, "3")
	}
}

func TestEngine_Substitute_EnvFallback(t *testing.T) {
	e := variables.NewEngine()
	ctx := testContext()
	t.Setenv("CRAWLCTL_TEST_VAR", "fromEnv")
	out, err := e.Substitute("${ENV.CRAWLCTL_TEST_VAR}", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "fromEnv" {
		t.Errorf("got %q, want %q", out, "fromEnv")
	}
}

func TestEngine_SubstituteValue_WholeStringCoercion(t *testing.T) {
	e := variables.NewEngine()
	ctx := testContext()
	ctx.Variables["count"] = 5
	out, err := e.SubstituteValue("${variables.count}", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != 5 {
		t.Errorf("got %v (%T), want int 5", out, out)
	}
}

func TestEngine_SubstituteMap_Recursive(t *testing.T) {
	e := variables.NewEngine()
	ctx := testContext()
	input := map[string]any{
		"greeting": "hi ${variables.username}",
		"nested": map[string]any{
			"title": "${input.page_title}",
		},
		"list": []any{"${metadata.job_id}", "literal"},
	}
	out, err := e.SubstituteMap(input, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["greeting"] != "hi alice" {
		t.Errorf("greeting = %v", out["greeting"])
	}
	nested, ok := out["nested"].(map[string]any)
	if !ok || nested["title"] != "Home" {
		t.Errorf("nested.title = %v", out["nested"])
	}
	list, ok := out["list"].([]any)
	if !ok || list[0] != "job-1" || list[1] != "literal" {
		t.Errorf("list = %v", out["list"])
	}
}

func TestEngine_GetVariable_DefaultOnMiss(t *testing.T) {
	e := variables.NewEngine()
	got := e.GetVariable("variables.missing", testContext(), "fallback")
	if got != "fallback" {
		t.Errorf("got %v, want fallback", got)
	}
}

func TestEngine_MaxRecursionDepth(t *testing.T) {
	e := variables.NewEngine()
	ctx := testContext()
	ctx.MaxRecursionDepth = 2
	ctx.Variables["a"] = "${variables.a_ref}"
	ctx.Variables["a_ref"] = "value"
	out, err := e.Substitute("${variables.a}", ctx)
	if err != nil {
		t.Fatalf("unexpected error within depth budget: %v", err)
	}
	if out != "value" {
		t.Errorf("got %q", out)
	}
}
