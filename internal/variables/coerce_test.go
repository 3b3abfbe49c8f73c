package variables_test

import (
	"testing"

	"github.com/jonesrussell/crawlctl/internal/variables"
)

func TestConvertType_Bool(t *testing.T) {
	cases := []struct {
		in   any
		want bool
	}{
		{"true", true},
		{"false", false},
		{"1", true},
		{"0", false},
		{"yes", true},
		{"no", false},
		{true, true},
	}
	for _, c := range cases {
		got, err := variables.ConvertType(c.in, "bool")
		if err != nil {
			t.Errorf("ConvertType(%v, bool) error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ConvertType(%v, bool) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestConvertType_Int(t *testing.T) {
	got, err := variables.ConvertType("42", "int")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != int64(42) {
		t.Errorf("got %v, want 42", got)
	}
}

func TestConvertType_IntInvalid(t *testing.T) {
	if _, err := variables.ConvertType("not-a-number", "int"); err == nil {
		t.Error("expected error for invalid int conversion")
	}
}

func TestConvertType_Float(t *testing.T) {
	got, err := variables.ConvertType("3.14", "float")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 3.14 {
		t.Errorf("got %v, want 3.14", got)
	}
}

func TestConvertType_List(t *testing.T) {
	got, err := variables.ConvertType("a, b, c", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list, ok := got.([]any)
	if !ok || len(list) != 3 || list[0] != "a" || list[1] != "b" || list[2] != "c" {
		t.Errorf("got %v", got)
	}
}

func TestConvertType_Dict(t *testing.T) {
	got, err := variables.ConvertType(`{"k":"v"}`, "dict")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok || m["k"] != "v" {
		t.Errorf("got %v", got)
	}
}

func TestConvertType_UnknownTarget(t *testing.T) {
	if _, err := variables.ConvertType("x", "nonsense"); err == nil {
		t.Error("expected error for unknown target type")
	}
}

func TestConvertType_Str(t *testing.T) {
	got, err := variables.ConvertType(42, "str")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "42" {
		t.Errorf("got %v, want %q", got, "42")
	}
}
