package bot

import (
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
)

func formatReplyText(text string, a ...any) string {
	return fmt.Sprintf(strings.TrimSpace(dedent.Dedent(text)), a...)
}

func parseCommand(s string) (string, []string) {
	parts := strings.Split(s, " ")
	return parts[0], parts[1:]
}

// sanitizeStyleFileName derives a safe file name from a hairstyle name:
// lower-cased, spaces to hyphens, anything but letters, digits and hyphens
// dropped, with a .png suffix.
func sanitizeStyleFileName(styleName string) string {
	name := strings.ToLower(strings.TrimSpace(styleName))
	name = strings.ReplaceAll(name, " ", "-")

	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}

	result := strings.Trim(b.String(), "-")
	if result == "" {
		result = "look"
	}
	return result + ".png"
}
