package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
	assert.Equal(t, "トヨ...", Truncate("トヨタ自動車", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}
