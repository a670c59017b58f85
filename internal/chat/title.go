package chat

import "strings"

const (
	titleMaxWords = 6
	titleMaxChars = 50
	titleMinChars = 3

	// FallbackTitle is used when a message is too short to name a session.
	FallbackTitle = "New Career Chat"
)

// DeriveTitle names a session after its first user message: whitespace is
// collapsed, at most six words are kept and the result is capped at fifty
// characters, the last three of which become "..." when cut.
func DeriveTitle(content string) string {
	words := strings.Fields(content)
	if len(words) > titleMaxWords {
		words = words[:titleMaxWords]
	}
	title := []rune(strings.Join(words, " "))
	if len(title) > titleMaxChars {
		title = append(title[:titleMaxChars-3], []rune("...")...)
	}
	if len(title) < titleMinChars {
		return FallbackTitle
	}
	return string(title)
}
