// Package pathutil resolves dotted property paths against decoded JSON values.
//
// Accepted forms: "$" or "" (identity), "$.a.b", "a.b", "a[0].b" and "a.0.b".
// Resolution fails as soon as any segment is missing.
package pathutil

import (
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Root is the identity path.
const Root = "$"

// IsRoot reports whether path selects the whole value.
func IsRoot(path string) bool {
	p := strings.TrimSpace(path)
	return p == "" || p == Root
}

// Split breaks a path into its segments. Bracket indexes become plain segments.
func Split(path string) []string {
	p := strings.TrimSpace(path)
	p = strings.TrimPrefix(p, Root)
	p = strings.TrimPrefix(p, ".")
	if p == "" {
		return nil
	}

	var segments []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			segments = append(segments, cur.String())
			cur.Reset()
		}
	}
	for _, r := range p {
		switch r {
		case '.', '[':
			flush()
		case ']':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return segments
}

// Get resolves path against v and reports whether every segment existed.
func Get(v any, path string) (any, bool) {
	cur := v
	for _, seg := range Split(path) {
		next, ok := step(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Lookup is Get without the presence flag; a missing path yields nil.
func Lookup(v any, path string) any {
	out, _ := Get(v, path)
	return out
}

func step(cur any, seg string) (any, bool) {
	switch node := cur.(type) {
	case nil:
		return nil, false
	case map[string]any:
		val, ok := node[seg]
		return val, ok
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(node) {
			return nil, false
		}
		return node[idx], true
	}

	rv := reflect.ValueOf(cur)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		val := rv.MapIndex(reflect.ValueOf(seg).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil, false
		}
		return val.Interface(), true
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= rv.Len() {
			return nil, false
		}
		return rv.Index(idx).Interface(), true
	}
	return nil, false
}

// Join appends key to prefix with a dot separator.
func Join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Covers reports whether changed equals rule or lies beneath it, e.g. rule "base"
// covers "base.deviceId".
func Covers(rule, changed string) bool {
	if rule == changed {
		return true
	}
	return strings.HasPrefix(changed, rule+".")
}

// Diff returns the sorted leaf paths whose values differ between before and after,
// each prefixed with prefix. Nested maps are walked; any other value is a leaf.
func Diff(prefix string, before, after map[string]any) []string {
	changed := map[string]struct{}{}
	diffInto(changed, prefix, before, after)

	out := make([]string, 0, len(changed))
	for p := range changed {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func diffInto(out map[string]struct{}, prefix string, before, after map[string]any) {
	for key, newVal := range after {
		path := Join(prefix, key)
		oldVal, existed := before[key]
		oldMap, oldIsMap := oldVal.(map[string]any)
		newMap, newIsMap := newVal.(map[string]any)
		switch {
		case existed && oldIsMap && newIsMap:
			diffInto(out, path, oldMap, newMap)
		case !existed && newIsMap && len(newMap) > 0:
			diffInto(out, path, nil, newMap)
		case !existed || !reflect.DeepEqual(oldVal, newVal):
			out[path] = struct{}{}
		}
	}
	for key, oldVal := range before {
		if _, still := after[key]; still {
			continue
		}
		path := Join(prefix, key)
		if oldMap, ok := oldVal.(map[string]any); ok && len(oldMap) > 0 {
			diffInto(out, path, oldMap, nil)
			continue
		}
		out[path] = struct{}{}
	}
}
