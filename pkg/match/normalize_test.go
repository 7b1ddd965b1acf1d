package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePattern(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"simple path", "path/to/file.txt", "path/to/file.txt"},
		{"glob pattern", "build/**/*.o", "build/**/*.o"},

		// Backslash to forward slash conversion (Windows compat)
		{"backslashes converted", "path\\to\\file.txt", "path/to/file.txt"},
		{"mixed slashes", "path\\to/file.txt", "path/to/file.txt"},
		{"trailing backslash", "path\\to\\dir\\", "path/to/dir/"},

		// Escape sequences preserved
		{"escaped asterisk", "data/file\\*.txt", "data/file\\*.txt"},
		{"escaped bracket", "data/file\\[0-9\\].txt", "data/file\\[0-9\\].txt"},
		{"escaped backslash", "data/file\\\\.txt", "data/file\\\\.txt"},
		{"windows path with escape", "data\\2024\\file\\*.txt", "data/2024/file\\*.txt"},

		// Backslash next to ** is a separator
		{"windows doublestar suffix", "site\\build\\**", "site/build/**"},
		{"windows doublestar middle", "build\\**\\*.o", "build/**/*.o"},
		{"windows doublestar prefix", "**\\node_modules\\**", "**/node_modules/**"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePattern(tt.input))
		})
	}
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{"empty string", "", false},
		{"regular file", "path/to/file.txt", false},
		{"hidden file", "path/to/.hidden", true},
		{"hidden directory", ".git/config", true},
		{"hidden in middle", "path/.cache/file.txt", true},
		{"dot at end", "path/to/file.txt.", false},
		{"underscore is not hidden", "_build/file.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsHidden(tt.path))
		})
	}
}

func TestHasSeparator(t *testing.T) {
	assert.False(t, HasSeparator("*.tmp"))
	assert.True(t, HasSeparator("build/**"))
	assert.True(t, HasSeparator("**/node_modules/**"))
}
