package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
)

// ConfigError is a single schema violation.
type ConfigError struct {
	Path    string // analysis.parallel
	Code    string // unknown_field | out_of_bound | conflicting_values | invalid_enum | type_mismatch ...
	Message string
	Pos     ConfigErrorPosition
}

func (e ConfigError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

type ConfigErrorPosition struct {
	Filename string
	Line     int
	Column   int
}

var (
	reNotAllowed  = regexp.MustCompile(`(?i)not allowed|unknown field`)
	reBound       = regexp.MustCompile(`(?i)out of bound|invalid value`)
	reConflict    = regexp.MustCompile(`(?i)conflicting values|cannot unify|incompatible`)
	reIncomplete  = regexp.MustCompile(`(?i)incomplete value`)
	reExpectedGot = regexp.MustCompile(`(?i)mismatched types|expected .* got .*`)
)

// humanize turns a CUE validation error into one ConfigError per path. given
// is the encoded config, used to quote the rejected value.
func humanize(err error, given cue.Value) []ConfigError {
	seen := make(map[string]struct{})
	var out []ConfigError
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		raw := fmt.Sprintf(format, args...)
		path := normalizePath(e.Path())
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}

		code, msg := classify(raw, path)
		if values := enumStrings(lookup(schema, path)); len(values) > 1 {
			code = "invalid_enum"
			msg = fmt.Sprintf("possible values (%s), got %s",
				strings.Join(values, ","), valueToString(lookup(given, path)))
		}
		out = append(out, ConfigError{
			Path:    path,
			Code:    code,
			Message: msg,
			Pos:     position(e),
		})
	}
	return out
}

func classify(raw, path string) (code, msg string) {
	switch {
	case reNotAllowed.MatchString(raw):
		return "unknown_field", fmt.Sprintf("field %s is not allowed", last(path))
	case reIncomplete.MatchString(raw):
		return "missing_required", fmt.Sprintf("field %s is required", last(path))
	case reConflict.MatchString(raw):
		return "conflicting_values", raw
	case reExpectedGot.MatchString(raw):
		return "type_mismatch", raw
	case reBound.MatchString(raw):
		return "out_of_bound", raw
	default:
		return "validation_error", raw
	}
}

func valueToString(v cue.Value) string {
	switch v.Kind() {
	case cue.StringKind:
		s, _ := v.String()
		return strconv.Quote(s)
	case cue.IntKind:
		i, _ := v.Int64()
		return strconv.FormatInt(i, 10)
	case cue.FloatKind:
		f, _ := v.Float64()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case cue.BoolKind:
		b, _ := v.Bool()
		return strconv.FormatBool(b)
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return "<invalid>"
	}
	return string(b)
}

// enumStrings returns the string alternatives of a disjunction.
func enumStrings(v cue.Value) []string {
	if !v.Exists() {
		return nil
	}
	op, args := v.Expr()
	if op != cue.OrOp {
		return nil
	}
	var values []string
	for _, a := range args {
		if a.Kind() != cue.StringKind {
			continue
		}
		if s, err := a.String(); err == nil {
			values = append(values, s)
		}
	}
	return values
}

func position(err cueerrors.Error) ConfigErrorPosition {
	for _, r := range cueerrors.Positions(err) {
		if r.Filename() == "" {
			continue
		}
		return ConfigErrorPosition{
			Filename: r.Filename(),
			Line:     r.Line(),
			Column:   r.Column(),
		}
	}
	return ConfigErrorPosition{}
}

func normalizePath(p []string) string {
	// leading definition (#Config)
	if len(p) > 0 && strings.HasPrefix(p[0], "#") {
		p = p[1:]
	}
	return strings.Join(p, ".")
}

func lookup(root cue.Value, path string) cue.Value {
	if path == "" {
		return root
	}
	return root.LookupPath(cue.ParsePath(path))
}

func last(p string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 {
		return p[i+1:]
	}
	return p
}
