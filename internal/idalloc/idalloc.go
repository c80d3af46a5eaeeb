// Package idalloc allocates provisional ids for records created before a
// remote authority has confirmed them.
//
// Ids below entity.LocalIDCeiling belong to the local sequence. Ids at or
// above it are server-assigned and never influence allocation.
package idalloc

import (
	"context"
	"fmt"

	"github.com/roach88/bizsync/internal/entity"
)

// Source reports the highest existing id of a kind below a ceiling.
// store.Store implements it.
type Source interface {
	MaxIDBelow(ctx context.Context, kind string, ceiling int64) (max int64, ok bool, err error)
}

// NextLocalID returns the next local id for kind: 1 when no record below the
// ceiling exists, otherwise the highest such id plus one.
func NextLocalID(ctx context.Context, src Source, kind string) (int64, error) {
	max, ok, err := src.MaxIDBelow(ctx, kind, entity.LocalIDCeiling)
	if err != nil {
		return 0, fmt.Errorf("next local id for %s: %w", kind, err)
	}
	if !ok {
		return 1, nil
	}
	return max + 1, nil
}
