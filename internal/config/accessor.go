package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// toTree converts cfg into its generic JSON form so dotted paths can be
// resolved against the same keys the config file uses.
func toTree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// GetByPath retrieves a config value by dot-notation path (e.g. "backend.timeoutSeconds").
func GetByPath(cfg *Config, path string) (any, error) {
	tree, err := toTree(cfg)
	if err != nil {
		return nil, err
	}

	var current any = tree
	for _, key := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, key)
		}
		current, ok = node[key]
		if !ok {
			return nil, fmt.Errorf("key not found: %s", path)
		}
	}
	return current, nil
}

// SetByPath sets a config value by dot-notation path. Unknown keys are
// rejected.
func SetByPath(cfg *Config, path string, value string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	tree, err := toTree(cfg)
	if err != nil {
		return err
	}

	parts := strings.Split(path, ".")
	parent := tree
	for _, key := range parts[:len(parts)-1] {
		child, ok := parent[key].(map[string]any)
		if !ok {
			return fmt.Errorf("key not found: %s", path)
		}
		parent = child
	}
	leaf := parts[len(parts)-1]

	parsed := parseValue(value)
	parent[leaf] = parsed
	updated, err := decodeTree(cfg, tree)
	if err != nil {
		if _, isString := parsed.(string); isString {
			return fmt.Errorf("invalid value for %s: %w", path, err)
		}
		// Numeric-looking tokens and secrets are still strings.
		parent[leaf] = value
		if updated, err = decodeTree(cfg, tree); err != nil {
			return fmt.Errorf("invalid value for %s: %w", path, err)
		}
	}
	*cfg = *updated
	return nil
}

func decodeTree(base *Config, tree map[string]any) (*Config, error) {
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, err
	}
	updated := *base
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// parseValue converts CLI strings to bools or numbers when they look like one.
func parseValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Sanitize returns a copy of the config with sensitive values masked.
func Sanitize(cfg *Config) *Config {
	masked := *cfg
	if masked.Slack.BotToken != "" {
		masked.Slack.BotToken = maskString(masked.Slack.BotToken)
	}
	if masked.Slack.SigningSecret != "" {
		masked.Slack.SigningSecret = "***"
	}
	if masked.Backend.APIKey != "" {
		masked.Backend.APIKey = maskString(masked.Backend.APIKey)
	}
	return &masked
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every settable path in sorted order, with values from
// the sanitized config.
func ListPaths(cfg *Config) []string {
	tree, err := toTree(Sanitize(cfg))
	if err != nil {
		return nil
	}
	flat := make(map[string]any)
	flattenMap("", tree, flat)

	paths := make([]string, 0, len(flat))
	for p, v := range flat {
		paths = append(paths, fmt.Sprintf("%s = %v", p, v))
	}
	sort.Strings(paths)
	return paths
}

func flattenMap(prefix string, m map[string]any, result map[string]any) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flattenMap(path, child, result)
			continue
		}
		result[path] = v
	}
}
