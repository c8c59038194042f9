package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// placeholderPattern matches {{ ... }} placeholders, non-greedy so that
// adjacent placeholders in the same string don't merge into one match.
var placeholderPattern = regexp.MustCompile(`\{\{\s*(.*?)\s*\}\}`)

// Vars is the merged variable scope stack used to resolve {{ IDENT }}
// placeholders: OS environment first, then config `vars` (last wins), per
// SPEC_FULL.md §3.
type Vars map[string]string

// NewVars builds a Vars scope from the process environment overlaid with
// config-declared vars.
func NewVars(configVars map[string]string) Vars {
	v := make(Vars, len(configVars))
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			v[kv[:idx]] = kv[idx+1:]
		}
	}
	for k, val := range configVars {
		v[k] = val
	}
	return v
}

// Resolver evaluates the templating grammar of SPEC_FULL.md §4.5 against a
// Vars scope, resolving lookup('file', ...) paths relative to baseDir.
type Resolver struct {
	Vars    Vars
	BaseDir string
}

// Render expands every placeholder in s. An unresolved identifier, unknown
// lookup plugin, missing file, or unknown filter is a hard error naming the
// offending expression, per §4.5/§4.1.
func (r Resolver) Render(s string) (string, error) {
	var outerErr error
	result := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		if outerErr != nil {
			return match
		}
		expr := placeholderPattern.FindStringSubmatch(match)[1]
		val, err := r.eval(expr)
		if err != nil {
			outerErr = fmt.Errorf("template %q: %w", expr, err)
			return match
		}
		return val
	})
	if outerErr != nil {
		return "", outerErr
	}
	return result, nil
}

// HasPlaceholder reports whether s still contains an unresolved {{ ... }}.
func HasPlaceholder(s string) bool {
	return placeholderPattern.MatchString(s)
}

// eval evaluates one expression body (the text between {{ and }}), applying
// any chained pipe filters.
func (r Resolver) eval(expr string) (string, error) {
	stages := splitPipes(expr)
	val, err := r.evalPrimary(strings.TrimSpace(stages[0]))
	if err != nil {
		return "", err
	}
	for _, stage := range stages[1:] {
		val, err = applyFilter(strings.TrimSpace(stage), val)
		if err != nil {
			return "", err
		}
	}
	return val, nil
}

// evalPrimary evaluates a single non-piped expression: an identifier, a
// string literal, a `.format(...)` call on a literal, or a lookup() call.
func (r Resolver) evalPrimary(expr string) (string, error) {
	switch {
	case strings.HasPrefix(expr, "lookup("):
		return r.evalLookup(expr)
	case isStringLiteral(expr) && strings.Contains(expr, ".format("):
		return r.evalFormat(expr)
	case isStringLiteral(expr):
		return unquote(expr), nil
	default:
		val, ok := r.Vars[expr]
		if !ok {
			return "", fmt.Errorf("undefined variable %q", expr)
		}
		return val, nil
	}
}

func (r Resolver) evalLookup(expr string) (string, error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(expr, "lookup("), ")")
	args := splitArgs(inner)
	if len(args) != 2 {
		return "", fmt.Errorf("lookup() requires exactly 2 arguments")
	}
	plugin := unquote(strings.TrimSpace(args[0]))
	if plugin != "file" {
		return "", fmt.Errorf("unknown lookup plugin %q", plugin)
	}
	pathExpr := strings.TrimSpace(args[1])
	path, err := r.evalPrimary(pathExpr)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.BaseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("lookup('file', %q): %w", path, err)
	}
	return string(data), nil
}

func (r Resolver) evalFormat(expr string) (string, error) {
	idx := strings.Index(expr, ".format(")
	literal := unquote(expr[:idx])
	argsPart := strings.TrimSuffix(expr[idx+len(".format("):], ")")
	var rendered []string
	if strings.TrimSpace(argsPart) != "" {
		for _, a := range splitArgs(argsPart) {
			val, err := r.evalPrimary(strings.TrimSpace(a))
			if err != nil {
				return "", err
			}
			rendered = append(rendered, val)
		}
	}
	var sb strings.Builder
	argIdx := 0
	for i := 0; i < len(literal); i++ {
		if literal[i] == '{' && i+1 < len(literal) && literal[i+1] == '}' {
			if argIdx >= len(rendered) {
				return "", fmt.Errorf("format() has more {} placeholders than arguments")
			}
			sb.WriteString(rendered[argIdx])
			argIdx++
			i++
			continue
		}
		sb.WriteByte(literal[i])
	}
	return sb.String(), nil
}

func applyFilter(name string, val string) (string, error) {
	switch name {
	case "from_json":
		var decoded interface{}
		if err := json.Unmarshal([]byte(val), &decoded); err != nil {
			return "", fmt.Errorf("from_json: %w", err)
		}
		return toScalarString(decoded), nil
	case "to_json":
		encoded, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("to_json: %w", err)
		}
		return string(encoded), nil
	default:
		return "", fmt.Errorf("unknown filter %q", name)
	}
}

// toScalarString renders a from_json result so it can keep flowing through
// the pipe chain or be substituted directly. Compound values are
// re-serialized compactly; scalars render as their natural text form.
func toScalarString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		encoded, _ := json.Marshal(t)
		return string(encoded)
	}
}

func isStringLiteral(s string) bool {
	return len(s) >= 2 && s[0] == '\'' && strings.ContainsRune(s[1:], '\'')
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1]
	}
	return s
}

// splitPipes splits on top-level `|` characters, ignoring ones inside
// single-quoted string literals or parentheses.
func splitPipes(expr string) []string {
	return splitTopLevel(expr, '|')
}

// splitArgs splits a comma-separated argument list, ignoring commas inside
// quotes or nested parens.
func splitArgs(expr string) []string {
	return splitTopLevel(expr, ',')
}

func splitTopLevel(expr string, sep byte) []string {
	var parts []string
	depth := 0
	inQuote := false
	start := 0
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
		case inQuote:
			continue
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, expr[start:i])
			start = i + 1
		}
	}
	parts = append(parts, expr[start:])
	return parts
}
