package rooms

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCodeShape(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := NewCode()
		assert.Len(t, code, len(CodePrefix)+codeSuffixLen)
		assert.True(t, strings.HasPrefix(code, CodePrefix))
		for _, c := range code[len(CodePrefix):] {
			assert.Contains(t, codeAlphabet, string(c))
		}
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "OH-7X3K", Normalize("  oh-7x3k\n"))
	assert.Equal(t, "OH-7X3K", Normalize("OH-7X3K"))
}
