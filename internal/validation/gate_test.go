package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCleanContentRoundTrips(t *testing.T) {
	g := NewGate(1 << 20)

	// Clean input must come back byte for byte: sanitization never adds
	// content, including a trailing newline.
	for _, content := range []string{"y", "# Title\n\nbody text\n", "", "a\nb"} {
		res := g.Validate(content)
		require.True(t, res.IsValid, "content %q should be valid", content)
		assert.False(t, res.Sanitized(), "content %q should not be rewritten", content)
	}
}

func TestValidateNormalizesLineEndings(t *testing.T) {
	g := NewGate(0)

	res := g.Validate("line one\r\nline two\rline three")
	require.True(t, res.IsValid)
	require.True(t, res.Sanitized())
	assert.Equal(t, "line one\nline two\nline three", res.SanitizedContent)
}

func TestValidateStripsTrailingWhitespace(t *testing.T) {
	g := NewGate(0)

	res := g.Validate("trailing spaces   \nand tabs\t\t\nclean")
	require.True(t, res.IsValid)
	assert.Equal(t, "trailing spaces\nand tabs\nclean", res.SanitizedContent)
}

func TestValidateCollectsAllViolations(t *testing.T) {
	g := NewGate(8)

	// One payload tripping every rule: invalid UTF-8, a NUL byte, a
	// disallowed control character, and the size cap.
	content := "abc\x00\x01def\xff toolong"
	res := g.Validate(content)

	require.False(t, res.IsValid)
	assert.Len(t, res.Errors, 4)
	joined := strings.Join(res.Errors, "; ")
	assert.Contains(t, joined, "not valid UTF-8")
	assert.Contains(t, joined, "NUL byte")
	assert.Contains(t, joined, "control characters")
	assert.Contains(t, joined, "limit is 8")

	// Invalid content is never sanitized.
	assert.Empty(t, res.SanitizedContent)
}

func TestValidateControlCharactersListed(t *testing.T) {
	g := NewGate(0)

	res := g.Validate("a\x01b\x02c\x01")
	require.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	// Each offending character is reported once.
	assert.Equal(t, "content contains control characters: U+0001, U+0002", res.Errors[0])
}

func TestValidateAllowsTabAndNewline(t *testing.T) {
	g := NewGate(0)

	res := g.Validate("col1\tcol2\nrow2")
	assert.True(t, res.IsValid)
	assert.False(t, res.Sanitized())
}

func TestValidateZeroCapMeansUnlimited(t *testing.T) {
	g := NewGate(0)

	res := g.Validate(strings.Repeat("x", 1<<16))
	assert.True(t, res.IsValid)
}
