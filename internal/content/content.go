// Package content validates and sanitizes user-supplied text before it
// reaches the room store or any other participant.
package content

import (
	"errors"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinNicknameLength = 2
	MaxNicknameLength = 24
	MaxMessageLength  = 2000
)

var (
	ErrNicknameTooShort = errors.New("nickname must be at least 2 characters")
	ErrNicknameTooLong  = errors.New("nickname must be 24 characters or less")
	ErrNicknameInvalid  = errors.New("nickname can only contain letters, numbers, and underscores")

	ErrMessageEmpty   = errors.New("message cannot be empty")
	ErrMessageTooLong = errors.New("message must be 2000 characters or less")
	ErrBlockedContent = errors.New("message contains blocked content")
)

var nicknamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// blockedSchemes are URI schemes rejected anywhere in a message.
var blockedSchemes = []string{"javascript:", "data:", "vbscript:", "file:"}

// imageExtensions trigger a no-preview warning; they never block sending.
var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".svg"}

const imageWarning = "Image links will not be previewed"

// MessageResult is the outcome of a successful message validation.
// Sanitized is the trimmed, HTML-escaped text safe for display.
type MessageResult struct {
	Sanitized string
	Warnings  []string
}

// ValidateNickname trims the input and checks length and charset. The
// returned value is the trimmed nickname, which is what gets stored.
func ValidateNickname(input string) (string, error) {
	trimmed := strings.TrimSpace(input)

	if utf8.RuneCountInString(trimmed) < MinNicknameLength {
		return "", ErrNicknameTooShort
	}
	if utf8.RuneCountInString(trimmed) > MaxNicknameLength {
		return "", ErrNicknameTooLong
	}
	if !nicknamePattern.MatchString(trimmed) {
		return "", ErrNicknameInvalid
	}

	return trimmed, nil
}

// ValidateMessage trims and checks the content, rejects dangerous URI
// schemes, and escapes HTML-significant characters for safe display.
func ValidateMessage(input string) (MessageResult, error) {
	trimmed := strings.TrimSpace(input)

	if trimmed == "" {
		return MessageResult{}, ErrMessageEmpty
	}
	if utf8.RuneCountInString(trimmed) > MaxMessageLength {
		return MessageResult{}, ErrMessageTooLong
	}

	lower := strings.ToLower(trimmed)
	for _, scheme := range blockedSchemes {
		if strings.Contains(lower, scheme) {
			return MessageResult{}, ErrBlockedContent
		}
	}

	var warnings []string
	for _, ext := range imageExtensions {
		if strings.Contains(lower, ext) {
			warnings = append(warnings, imageWarning)
			break
		}
	}

	return MessageResult{
		Sanitized: html.EscapeString(trimmed),
		Warnings:  warnings,
	}, nil
}
