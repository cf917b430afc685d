package pipeline

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// frameToken matches [Frame N] with optional surrounding whitespace and any
// letter case. The optional leading ! and trailing (...) identify tokens
// that are already image or link references.
var frameToken = regexp.MustCompile(`(?i)(!?)\[\s*frame\s*(\d+)\s*\](\([^)]*\))?`)

// RewriteFrameRefs replaces each [Frame N] token (1-based into frames) with a
// markdown image reference whose path is relative to artifactRoot. Tokens
// with an out-of-range ordinal, or whose frame cannot be placed under
// artifactRoot, are left as written.
func RewriteFrameRefs(text string, frames []Frame, artifactRoot string) string {
	if text == "" || len(frames) == 0 {
		return text
	}
	return frameToken.ReplaceAllStringFunc(text, func(match string) string {
		groups := frameToken.FindStringSubmatch(match)
		if groups[1] != "" || groups[3] != "" {
			return match
		}
		ordinal, err := strconv.Atoi(groups[2])
		if err != nil || ordinal < 1 || ordinal > len(frames) {
			return match
		}
		rel, ok := relativeFramePath(frames[ordinal-1].Path, artifactRoot)
		if !ok {
			return match
		}
		return fmt.Sprintf("![Frame %d](%s)", ordinal, rel)
	})
}

func relativeFramePath(path, root string) (string, bool) {
	path = strings.TrimSpace(path)
	root = strings.TrimSpace(root)
	if path == "" || root == "" {
		return "", false
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(absRoot, path)
	}
	rel, err := filepath.Rel(absRoot, filepath.Clean(path))
	if err != nil {
		return "", false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
