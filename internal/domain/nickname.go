// Package domain contains server-side value types without transport logic.
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	MaxNicknameLen  = 36
	MaxSpaceNameLen = 64
	DefaultNickname = "woogly"
)

var (
	ErrSpaceNameEmpty   = errors.New("space name empty")
	ErrSpaceNameTooLong = errors.New("space name too long")
)

// NormalizeNickname trims and truncates a client-supplied display name.
// Nicknames are not unique and never rejected.
func NormalizeNickname(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return DefaultNickname
	}
	if utf8.RuneCountInString(name) > MaxNicknameLen {
		name = string([]rune(name)[:MaxNicknameLen])
	}
	return name
}

// ParseSpaceName validates a client-supplied space name.
func ParseSpaceName(raw string) (SpaceName, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrSpaceNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxSpaceNameLen {
		return "", ErrSpaceNameTooLong
	}
	return SpaceName(name), nil
}
