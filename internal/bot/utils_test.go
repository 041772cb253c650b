package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeStyleFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Textured Crop", "textured-crop.png"},
		{"Side Part", "side-part.png"},
		{"Buzz Cut #2!", "buzz-cut-2.png"},
		{"  Pompadour  ", "pompadour.png"},
		{"Ünïcödé Styles", "ncd-styles.png"},
		{"---", "look.png"},
		{"", "look.png"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeStyleFileName(tt.in), "input: %q", tt.in)
	}
}

func TestParseCommand(t *testing.T) {
	cmd, args := parseCommand("/admin users add 123")
	assert.Equal(t, "/admin", cmd)
	assert.Equal(t, []string{"users", "add", "123"}, args)

	cmd, args = parseCommand("/start")
	assert.Equal(t, "/start", cmd)
	assert.Empty(t, args)
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, "a \\* b \\_ c \\` d \\[", escapeMarkdown("a * b _ c ` d ["))
}
