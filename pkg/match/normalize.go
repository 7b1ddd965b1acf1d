// Package match filters local files during upload expansion using
// doublestar glob semantics.
package match

import (
	"strings"
)

// Glob metacharacters that can be escaped with backslash in patterns.
const globEscapable = `*?[]{}\`

// NormalizePattern converts a user-provided glob pattern to canonical form.
//
// Unescaped backslashes become forward slashes so Windows users can write
// "build\**". A backslash next to "**" is always a separator; elsewhere a
// backslash before a glob metacharacter (\*, \?, \[ ...) stays an escape.
//
// Examples:
//
//	"build/**"        → "build/**"
//	"build\**"        → "build/**"
//	"build\**\*.o"    → "build/**/*.o"
//	"file\*.txt"      → "file\*.txt"
func NormalizePattern(pattern string) string {
	if pattern == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(pattern))

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '\\' {
			result.WriteRune(r)
			continue
		}
		if doubleStarAt(runes, i+1) || (i >= 2 && runes[i-1] == '*' && runes[i-2] == '*') {
			result.WriteRune('/')
			continue
		}
		if i+1 < len(runes) && strings.ContainsRune(globEscapable, runes[i+1]) {
			result.WriteRune('\\')
			result.WriteRune(runes[i+1])
			i++
			continue
		}
		result.WriteRune('/')
	}

	return result.String()
}

func doubleStarAt(runes []rune, i int) bool {
	return i+1 < len(runes) && runes[i] == '*' && runes[i+1] == '*'
}

// IsHidden returns true if any slash-separated segment starts with a dot.
func IsHidden(relPath string) bool {
	for _, seg := range strings.Split(relPath, "/") {
		if seg != "" && strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// HasSeparator reports whether a normalized pattern contains an unescaped "/".
func HasSeparator(pattern string) bool {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '\\':
			i++
		case '/':
			return true
		}
	}
	return false
}
