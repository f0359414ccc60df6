package biz

import "context"

// AssetStore persists the canonical bytes of image rules under their
// canonical filename. The engine only saves on rule creation, reads for
// re-canonicalization, and instructs deletion on orphan cleanup; path
// layout and retention belong to the implementation.
type AssetStore interface {
	Save(ctx context.Context, name string, data []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
}
