package workspace

import "strings"

// IsGlobPattern reports whether outputPath should be treated as a glob
// rather than a literal path: true when the output path contains any of
// the characters `* ? [`.
func IsGlobPattern(outputPath string) bool {
	return strings.ContainsAny(outputPath, "*?[")
}
