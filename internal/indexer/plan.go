package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kazoeru/internal/models"
	"github.com/hyperjump/kazoeru/internal/storage"
	apperrors "github.com/hyperjump/kazoeru/pkg/errors"
)

type commitStrategy int

const (
	commitAdd commitStrategy = iota
	commitReplace
)

func (c commitStrategy) String() string {
	if c == commitReplace {
		return "replace"
	}
	return "add"
}

// plan is what a build will do at a location: either nothing, or open the
// index in openMode and commit each document with commit.
type plan struct {
	skip     bool
	existing *storage.Info
	openMode storage.OpenMode
	commit   commitStrategy
}

// probe reports whether a usable index exists at location. An index that is
// present but unreadable is an error, never treated as absent.
func (b *Builder) probe(ctx context.Context, location string) (*storage.Info, error) {
	r, err := b.engine.OpenReadOnly(ctx, location)
	if errors.Is(err, apperrors.ErrIndexNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("probe index: %w", err)
	}
	info := r.Info()
	if err := r.Close(); err != nil {
		return nil, fmt.Errorf("probe index: %w", err)
	}
	return &info, nil
}

func (b *Builder) plan(ctx context.Context, mode models.BuildMode, location string) (plan, error) {
	switch mode {
	case models.Create:
		return plan{openMode: storage.OpenCreate, commit: commitAdd}, nil
	case models.SkipIfExists, models.UpdateIfExists:
	default:
		return plan{}, fmt.Errorf("%w: build mode %v", apperrors.ErrInvalidInput, mode)
	}

	existing, err := b.probe(ctx, location)
	if err != nil {
		return plan{}, err
	}
	if existing == nil {
		return plan{openMode: storage.OpenCreate, commit: commitAdd}, nil
	}
	if mode == models.SkipIfExists {
		return plan{skip: true, existing: existing}, nil
	}
	return plan{existing: existing, openMode: storage.OpenAppend, commit: commitReplace}, nil
}
