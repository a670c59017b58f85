package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxTitleLength   = 100
	MaxContentLength = 2000

	MinPageLimit = 1
	MaxPageLimit = 100
)

// ValidateTitle checks a session title as supplied by a caller.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title must not be empty", ErrValidation)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrValidation, MaxTitleLength)
	}
	return nil
}

// ValidateUserContent checks user-authored message text.
func ValidateUserContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content must not be empty", ErrValidation)
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters", ErrValidation, MaxContentLength)
	}
	return nil
}

// ValidatePage checks listMessages pagination bounds.
func ValidatePage(limit, offset int) error {
	if limit < MinPageLimit || limit > MaxPageLimit {
		return fmt.Errorf("%w: limit must be between %d and %d", ErrValidation, MinPageLimit, MaxPageLimit)
	}
	if offset < 0 {
		return fmt.Errorf("%w: offset must not be negative", ErrValidation)
	}
	return nil
}
