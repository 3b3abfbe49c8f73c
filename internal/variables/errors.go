package variables

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds, checked with errors.Is against the *Error wrapper below.
var (
	ErrVariableNotFound   = errors.New("variables: not found")
	ErrCircularReference  = errors.New("variables: circular reference")
	ErrVariableError      = errors.New("variables: resolution error")
	ErrUnknownSource      = errors.New("variables: unknown source")
	ErrTypeConversion     = errors.New("variables: type conversion failed")
)

// Error carries the offending token/source alongside a sentinel kind so
// callers can both errors.Is() it and report which token failed.
type Error struct {
	Kind     error
	Token    string
	Source   string
	Detail   string
	Chain    []string
}

func (e *Error) Error() string {
	switch {
	case errors.Is(e.Kind, ErrCircularReference):
		return fmt.Sprintf("circular reference detected for %q: %s", e.Token, strings.Join(e.Chain, " -> "))
	case e.Detail != "":
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Token, e.Detail)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Token)
	}
}

func (e *Error) Unwrap() error { return e.Kind }

func notFoundErr(token, source, detail string) error {
	return &Error{Kind: ErrVariableNotFound, Token: token, Source: source, Detail: detail}
}

func circularErr(token string, chain []string) error {
	return &Error{Kind: ErrCircularReference, Token: token, Chain: append([]string(nil), chain...)}
}

func unknownSourceErr(token, source string) error {
	return &Error{Kind: ErrUnknownSource, Token: token, Source: source}
}

func variableErr(token, source, detail string) error {
	return &Error{Kind: ErrVariableError, Token: token, Source: source, Detail: detail}
}
