package config

import (
	"regexp"
	"strings"
)

var keySegment = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// KeyPath addresses a value in the raw config tree, such as
// "handover.broker.url".
type KeyPath []string

// ParseKeyPath splits a dotted key. Segments must be non-empty and made of
// letters, digits, '_' or '-'.
func ParseKeyPath(raw string) (KeyPath, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if !keySegment.MatchString(p) {
			return nil, &ConfigError{Message: "invalid config path segment " + `"` + p + `" in ` + raw}
		}
	}
	return KeyPath(parts), nil
}

func (k KeyPath) String() string { return strings.Join(k, ".") }

// parent walks to the map holding the last segment. With create set,
// missing or non-map intermediates are replaced by empty maps.
func (k KeyPath) parent(root map[string]any, create bool) (map[string]any, bool) {
	cur := root
	for _, key := range k[:len(k)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			if !create {
				return nil, false
			}
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	return cur, true
}

func (k KeyPath) Get(root map[string]any) (any, bool) {
	m, ok := k.parent(root, false)
	if !ok {
		return nil, false
	}
	v, ok := m[k[len(k)-1]]
	return v, ok
}

func (k KeyPath) Set(root map[string]any, value any) {
	m, _ := k.parent(root, true)
	m[k[len(k)-1]] = value
}

// Unset deletes the value and reports whether it existed.
func (k KeyPath) Unset(root map[string]any) bool {
	m, ok := k.parent(root, false)
	if !ok {
		return false
	}
	last := k[len(k)-1]
	if _, ok := m[last]; !ok {
		return false
	}
	delete(m, last)
	return true
}
