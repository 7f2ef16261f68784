// Package parser splits Markdown documents into frontmatter and body and
// infers the normalized import fields from both.
package parser

import (
	"regexp"
	"strings"
)

var frontmatterRe = regexp.MustCompile(`^---\s*\n([\s\S]*?)\n---\s*\n([\s\S]*)$`)

// Frontmatter maps keys to either a string or a []string.
type Frontmatter map[string]any

// Scalar returns the value for key rendered as one string. Lists are joined
// with commas. Empty values report false.
func (f Frontmatter) Scalar(key string) (string, bool) {
	switch v := f[key].(type) {
	case string:
		return v, v != ""
	case []string:
		s := strings.Join(v, ",")
		return s, s != ""
	case []any:
		s := strings.Join(toStrings(v), ",")
		return s, s != ""
	}
	return "", false
}

// List returns the value for key as a list; a scalar becomes a one-element list.
func (f Frontmatter) List(key string) []string {
	switch v := f[key].(type) {
	case string:
		return []string{v}
	case []string:
		return append([]string(nil), v...)
	case []any:
		return toStrings(v)
	}
	return nil
}

func toStrings(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ParseFrontmatter separates a leading metadata block from the body.
//
// The block is recognised only at the very start of content. Without one the
// whole input is the body and the mapping is empty. Lines that are blank,
// start with '#', or lack a colon are ignored.
func ParseFrontmatter(content string) (Frontmatter, string) {
	fm := Frontmatter{}
	m := frontmatterRe.FindStringSubmatch(content)
	if m == nil {
		return fm, content
	}

	for _, line := range strings.Split(m[1], "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, raw, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		fm[key] = parseValue(strings.TrimSpace(raw))
	}

	return fm, m[2]
}

func parseValue(raw string) any {
	v := unquote(raw)
	if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
		inner := strings.TrimSpace(v[1 : len(v)-1])
		items := []string{}
		if inner == "" {
			return items
		}
		for _, part := range strings.Split(inner, ",") {
			items = append(items, unquote(strings.TrimSpace(part)))
		}
		return items
	}
	return v
}

// unquote strips one pair of matching surrounding quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
