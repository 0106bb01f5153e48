package stats

import (
	"context"
	"fmt"

	"github.com/hyperjump/kazoeru/internal/storage"
)

// Status describes the index at a location without computing statistics.
type Status struct {
	Location  string       `json:"location"`
	Engine    string       `json:"engine"`
	Info      storage.Info `json:"info"`
	Documents int          `json:"documents"`
	DiskBytes int64        `json:"disk_bytes"`
}

// ReadStatus opens the index at location read-only and reports its metadata
// and size.
func ReadStatus(ctx context.Context, engine storage.Engine, location string) (*Status, error) {
	r, err := engine.OpenReadOnly(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer r.Close()

	size, err := storage.IndexSize(engine, location)
	if err != nil {
		return nil, fmt.Errorf("disk usage: %w", err)
	}
	return &Status{
		Location:  location,
		Engine:    engine.Name(),
		Info:      r.Info(),
		Documents: r.DocumentCount(),
		DiskBytes: size,
	}, nil
}
