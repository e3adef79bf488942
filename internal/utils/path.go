package utils

import (
	"strings"
)

// NormalizePath forces every separator in p to a forward slash
func NormalizePath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// ComparePaths orders two paths by their normalized byte strings
func ComparePaths(a, b string) int {
	return strings.Compare(NormalizePath(a), NormalizePath(b))
}

// TrimRoot strips root and the separator following it from p, then
// normalizes the remainder. Paths outside root are only normalized.
func TrimRoot(root, p string) string {
	root = strings.TrimRight(NormalizePath(root), "/")
	p = NormalizePath(p)

	if root != "" && strings.HasPrefix(p, root+"/") {
		return p[len(root)+1:]
	}

	return strings.TrimPrefix(p, "/")
}

// ContainsFold reports whether substr is within s, ignoring case
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
