// Package interpolate resolves {{path}} tokens in node configuration against the
// outputs of previously executed nodes.
package interpolate

import (
	"encoding/json"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/oliveagle/jsonpath"
)

// Scope maps node ids to {result, status} and holds the "input" and "loop" bindings.
type Scope map[string]any

var tokenPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Resolve replaces tokens in template, descending into maps and slices. A string that
// is exactly one token resolves to the referenced value with its type preserved.
// Tokens embedded in longer strings are stringified. Unresolvable tokens are left in
// place and their paths returned. The template is not modified.
func Resolve(template any, scope Scope) (any, []string) {
	r := &resolver{scope: scope}
	out := r.value(template)

	return out, r.unresolved
}

// ResolveScript substitutes tokens in JavaScript source with JSON literals. Unresolvable
// tokens become undefined.
func ResolveScript(source string, scope Scope) (string, []string) {
	r := &resolver{scope: scope}

	out := tokenPattern.ReplaceAllStringFunc(source, func(token string) string {
		path := tokenPath(token)

		value, ok := r.lookup(path)
		if !ok {
			return "undefined"
		}

		encoded, err := json.Marshal(value)
		if err != nil {
			r.miss(path)

			return "undefined"
		}

		return string(encoded)
	})

	return out, r.unresolved
}

// ResolveConfig resolves every top-level key of config. Keys listed in scriptFields
// holding strings are resolved with ResolveScript.
func ResolveConfig(config map[string]any, scope Scope, scriptFields ...string) (map[string]any, []string) {
	r := &resolver{scope: scope}
	out := make(map[string]any, len(config))

	for key, value := range config {
		if source, ok := value.(string); ok && contains(scriptFields, key) {
			resolved, unresolved := ResolveScript(source, scope)
			for _, path := range unresolved {
				r.miss(path)
			}

			out[key] = resolved

			continue
		}

		out[key] = r.value(value)
	}

	return out, r.unresolved
}

// Lookup evaluates a single path against scope.
func Lookup(path string, scope Scope) (any, bool) {
	r := &resolver{scope: scope}

	return r.lookup(strings.TrimSpace(path))
}

type resolver struct {
	scope      Scope
	unresolved []string
}

func (r *resolver) value(v any) any {
	switch typed := v.(type) {
	case string:
		return r.str(typed)
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, value := range typed {
			out[key] = r.value(value)
		}

		return out
	case []any:
		out := make([]any, len(typed))
		for i, value := range typed {
			out[i] = r.value(value)
		}

		return out
	default:
		return v
	}
}

func (r *resolver) str(s string) any {
	if !strings.Contains(s, "{{") {
		return s
	}

	if loc := tokenPattern.FindStringIndex(s); loc != nil && loc[0] == 0 && loc[1] == len(s) {
		path := tokenPath(s)

		value, ok := r.lookup(path)
		if !ok {
			return s
		}

		return value
	}

	return tokenPattern.ReplaceAllStringFunc(s, func(token string) string {
		value, ok := r.lookup(tokenPath(token))
		if !ok {
			return token
		}

		return stringify(value)
	})
}

func (r *resolver) lookup(path string) (any, bool) {
	if r.scope == nil || path == "" {
		r.miss(path)

		return nil, false
	}

	var (
		value any
		ok    bool
	)

	if strings.HasPrefix(path, "$") {
		var err error

		value, err = jsonpath.JsonPathLookup(map[string]any(r.scope), path)
		ok = err == nil
	} else {
		value, ok = walk(r.scope, path)
	}

	if !ok {
		r.miss(path)

		return nil, false
	}

	return value, true
}

func (r *resolver) miss(path string) {
	if !contains(r.unresolved, path) {
		r.unresolved = append(r.unresolved, path)
	}
}

func tokenPath(token string) string {
	match := tokenPattern.FindStringSubmatch(token)
	if len(match) < 2 {
		return ""
	}

	return strings.TrimSpace(match[1])
}

type segment struct {
	name    string
	indexed bool
}

// walk resolves a dotted path such as "fetch.result.items.0.name" or
// "fetch.result.items[0].name". The first segment is always a scope key. Later segments
// are keys into objects or non-negative indexes into arrays, chosen by the value they
// are applied to. A bracketed segment only indexes arrays.
func walk(scope Scope, path string) (any, bool) {
	segments, ok := splitPath(path)
	if !ok || segments[0].indexed {
		return nil, false
	}

	current, ok := scope[segments[0].name]
	if !ok {
		return nil, false
	}

	for _, seg := range segments[1:] {
		current, ok = step(current, seg)
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func splitPath(path string) ([]segment, bool) {
	var segments []segment

	for _, part := range strings.Split(path, ".") {
		name, rest, _ := strings.Cut(part, "[")
		if name == "" && rest == "" {
			return nil, false
		}

		if name != "" {
			segments = append(segments, segment{name: name})
		}

		if rest == "" {
			continue
		}

		for _, raw := range strings.Split("["+rest, "[")[1:] {
			index, closed := strings.CutSuffix(raw, "]")
			if !closed || index == "" {
				return nil, false
			}

			segments = append(segments, segment{name: index, indexed: true})
		}
	}

	return segments, len(segments) > 0
}

func step(current any, seg segment) (any, bool) {
	switch typed := current.(type) {
	case map[string]any:
		if seg.indexed {
			return nil, false
		}

		value, ok := typed[seg.name]

		return value, ok
	case []any:
		i, ok := arrayIndex(seg.name, len(typed))
		if !ok {
			return nil, false
		}

		return typed[i], true
	}

	v := reflect.ValueOf(current)

	switch v.Kind() {
	case reflect.Map:
		if seg.indexed || v.Type().Key().Kind() != reflect.String {
			return nil, false
		}

		value := v.MapIndex(reflect.ValueOf(seg.name).Convert(v.Type().Key()))
		if !value.IsValid() {
			return nil, false
		}

		return value.Interface(), true
	case reflect.Slice, reflect.Array:
		i, ok := arrayIndex(seg.name, v.Len())
		if !ok {
			return nil, false
		}

		return v.Index(i).Interface(), true
	default:
		return nil, false
	}
}

// arrayIndex accepts only unsigned decimal indexes inside the bounds.
func arrayIndex(s string, length int) (int, bool) {
	if s == "" || s[0] < '0' || s[0] > '9' {
		return 0, false
	}

	i, err := strconv.Atoi(s)
	if err != nil || i >= length {
		return 0, false
	}

	return i, true
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		return ""
	}

	return string(encoded)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}

	return false
}
