package slug

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	cases := map[string]string{
		"Hello World":                       "hello-world",
		"  AI for Small Business!  ":        "ai-for-small-business",
		"Café Déjà Vu":                      "cafe-deja-vu",
		"GPT-4 vs. Claude: 2026 edition":    "gpt-4-vs-claude-2026-edition",
		"multiple   ---   separators":       "multiple-separators",
		"日本語":                               "",
		"Fox Valley's AI Workshop (Part 2)": "fox-valley-s-ai-workshop-part-2",
	}
	for in, want := range cases {
		assert.Equal(t, want, Make(in), in)
	}
}

func TestMakeTruncates(t *testing.T) {
	title := strings.Repeat("automation ", 20)
	s := Make(title)
	assert.LessOrEqual(t, len(s), MaxLength)
	assert.False(t, strings.HasSuffix(s, "-"))
	assert.True(t, strings.HasPrefix(s, "automation-automation"))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("hello-world"))
	assert.False(t, Valid("Hello World"))
	assert.False(t, Valid(""))
	assert.False(t, Valid("-leading"))
}
