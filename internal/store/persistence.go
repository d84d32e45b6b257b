// Package store provides the durable note catalog for voxnote.
package store

import (
	"context"

	"github.com/voxnote/voxnote/pkg/models"
)

// CatalogKey is the fixed storage key the serialized catalog lives under.
const CatalogKey = "recorded_notes"

// Persistence is a durable blob store for the full note catalog. Save
// replaces the prior catalog wholesale; Load returns an empty catalog, never
// an error, when the key is absent or the stored bytes fail to decode.
type Persistence interface {
	Save(ctx context.Context, notes []models.Note) error
	Load(ctx context.Context) ([]models.Note, error)
}
