package models

import (
	"fmt"
	"strings"

	apperrors "github.com/hyperjump/kazoeru/pkg/errors"
)

// BuildMode decides what a build does when an index already exists at its location.
type BuildMode int

const (
	// Create always builds a fresh index, replacing any existing one.
	Create BuildMode = iota
	// SkipIfExists leaves an existing index untouched.
	SkipIfExists
	// UpdateIfExists appends to an existing index, replacing documents by path.
	UpdateIfExists
)

func (m BuildMode) String() string {
	switch m {
	case Create:
		return "create"
	case SkipIfExists:
		return "skip"
	case UpdateIfExists:
		return "update"
	default:
		return fmt.Sprintf("BuildMode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m BuildMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *BuildMode) UnmarshalText(text []byte) error {
	parsed, err := ParseBuildMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseBuildMode parses a mode name. The long constant-style names
// (none_if_exist, update_if_exist) are accepted as aliases.
func ParseBuildMode(s string) (BuildMode, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "create", "":
		return Create, nil
	case "skip", "none-if-exist", "skip-if-exists":
		return SkipIfExists, nil
	case "update", "update-if-exist", "update-if-exists":
		return UpdateIfExists, nil
	default:
		return Create, fmt.Errorf("%w: unknown build mode %q", apperrors.ErrInvalidInput, s)
	}
}
