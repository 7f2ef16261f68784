package parser

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Uncategorized is the category of documents without a parent directory.
const Uncategorized = "uncategorized"

var (
	headingRe    = regexp.MustCompile(`(?m)^#[ \t]+(.+?)[ \t\r]*$`)
	hashtagRe    = regexp.MustCompile(`#(\w+)`)
	extRe        = regexp.MustCompile(`\.[^/.]+$`)
	leadingNumRe = regexp.MustCompile(`^\d+[-.\s]*`)
	decorRe      = regexp.MustCompile(`[✅❌⭐\x{FE0F}📝]`)
	pathSepRe    = regexp.MustCompile(`[/\\]`)
)

// Candidate keys, highest priority first.
var (
	createTimeKeys  = []string{"date", "created", "createTime", "created_at"}
	updateTimeKeys  = []string{"updated", "modified", "updateTime", "updated_at", "last_modified"}
	originalURLKeys = []string{"url", "link", "source", "original", "originalUrl"}
)

// ExtractTitle resolves the title from frontmatter, then the first level-1
// heading, then the file name.
func ExtractTitle(fm Frontmatter, body, filename string) string {
	if title, ok := fm.Scalar("title"); ok {
		if t := strings.TrimSpace(title); t != "" {
			return t
		}
	}
	for _, m := range headingRe.FindAllStringSubmatch(body, -1) {
		if t := strings.TrimSpace(m[1]); t != "" {
			return t
		}
	}
	return titleFromFilename(filename)
}

func titleFromFilename(filename string) string {
	stem := extRe.ReplaceAllString(filename, "")
	title := leadingNumRe.ReplaceAllString(stem, "")
	title = strings.TrimSpace(decorRe.ReplaceAllString(title, ""))
	if title != "" {
		return title
	}
	// Names made only of digits or symbols keep their stem.
	if stem = strings.TrimSpace(stem); stem != "" {
		return stem
	}
	return filename
}

// ExtractCategory returns the immediate parent directory of path, or
// Uncategorized when there is none.
func ExtractCategory(path string) string {
	var segments []string
	for _, s := range pathSepRe.Split(path, -1) {
		if s != "" && s != "." {
			segments = append(segments, s)
		}
	}
	if len(segments) > 1 {
		return segments[len(segments)-2]
	}
	return Uncategorized
}

// ExtractTags unions frontmatter tags, frontmatter categories and inline
// #hashtags of more than one character. The result is deduplicated and keeps
// first-seen order.
func ExtractTags(fm Frontmatter, body string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return
		}
		if _, dup := seen[tag]; dup {
			return
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}

	for _, key := range []string{"tags", "categories"} {
		for _, t := range fm.List(key) {
			add(t)
		}
	}
	for _, m := range hashtagRe.FindAllStringSubmatch(body, -1) {
		if len(m[1]) > 1 {
			add(m[1])
		}
	}
	return out
}

// TimeInfo holds the raw timestamp strings found in frontmatter.
type TimeInfo struct {
	CreateTime *string
	UpdateTime *string
}

// ExtractTimeInfo looks up create and update times by fixed key priority.
// Values are carried through unparsed.
func ExtractTimeInfo(fm Frontmatter) TimeInfo {
	return TimeInfo{
		CreateTime: firstScalar(fm, createTimeKeys),
		UpdateTime: firstScalar(fm, updateTimeKeys),
	}
}

// ExtractOriginalURL returns the first string value among the source URL keys.
func ExtractOriginalURL(fm Frontmatter) *string {
	for _, key := range originalURLKeys {
		if s, ok := fm[key].(string); ok && s != "" {
			return &s
		}
	}
	return nil
}

func firstScalar(fm Frontmatter, keys []string) *string {
	for _, key := range keys {
		if s, ok := fm.Scalar(key); ok {
			return &s
		}
	}
	return nil
}

// Filename returns the base name of a slash or backslash separated path.
func Filename(path string) string {
	parts := pathSepRe.Split(path, -1)
	if name := parts[len(parts)-1]; name != "" {
		return name
	}
	return filepath.Base(path)
}
