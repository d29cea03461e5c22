package repository

import (
	"context"

	"github.com/user/enricher-service/internal/entity"
)

// SideDataResolver fetches the photos linked to an external key.
type SideDataResolver interface {
	// Resolve returns the photo list for key. A page without the expected
	// payload is not an error; it yields an empty list with a non-found
	// PayloadState. Transport failures wrap ErrFetch.
	Resolve(ctx context.Context, key string) (*entity.SideData, error)
}
