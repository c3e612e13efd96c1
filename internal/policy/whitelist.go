package policy

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// matchesWhitelist reports whether target matches at least one pattern.
// Pattern forms, checked per entry:
//
//	"*"        — matches everything (still subject to containment and
//	             dangerous-target checks)
//	"dir/**"   — matches dir itself and anything beneath it
//	glob       — path.Match semantics against the full target
//	literal    — exact match
//
// An empty whitelist matches nothing: access is granted, never assumed.
func matchesWhitelist(target string, patterns []string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if p == "*" || p == "**" {
			return true
		}
		if strings.HasSuffix(p, "/**") {
			prefix := strings.TrimSuffix(p, "/**")
			if target == prefix || strings.HasPrefix(target, prefix+"/") {
				return true
			}
			continue
		}
		if ok, err := path.Match(p, target); err == nil && ok {
			return true
		}
		// path.Match's * stops at separators; also try matching just the
		// final element so "*.md" covers "docs/readme.md".
		if ok, err := path.Match(p, path.Base(target)); err == nil && ok && !strings.Contains(p, "/") {
			return true
		}
		if p == target {
			return true
		}
	}
	return false
}

// resolveWithinRoot resolves target against root and verifies the cleaned
// absolute result still lies within root. This is what defeats traversal:
// "../../etc/passwd" under root "/project" cleans to "/etc/passwd", which is
// outside and denied no matter what the whitelist says. An empty root only
// constrains nothing for absolute targets.
func resolveWithinRoot(target, root string) (string, error) {
	resolved := target
	if !filepath.IsAbs(resolved) {
		if root == "" {
			abs, err := filepath.Abs(resolved)
			if err != nil {
				return "", fmt.Errorf("cannot resolve path %q: %v", target, err)
			}
			return abs, nil
		}
		resolved = filepath.Join(root, resolved)
	}
	resolved = filepath.Clean(resolved)

	if root != "" {
		cleanRoot := filepath.Clean(root)
		if resolved != cleanRoot && !strings.HasPrefix(resolved, cleanRoot+string(filepath.Separator)) {
			return "", fmt.Errorf("path %q escapes root directory %q", target, root)
		}
	}
	return resolved, nil
}
