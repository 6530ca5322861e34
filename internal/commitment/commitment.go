// Package commitment enforces the one-time mode/model binding: the
// first successful ingestion into a store fixes its embedding mode,
// model, and dimensionality for the store's lifetime. Every later
// ingestion or search must be compatible with what was recorded, or
// be told explicitly to rebuild.
package commitment

import (
	"context"
	"fmt"

	coreerrors "github.com/Aman-CERP/ragcore/internal/errors"
	"github.com/Aman-CERP/ragcore/internal/store"
)

// DefaultTextMode is what DetectMode returns for a store with no
// commitment yet — the engine assumes text-only until an ingestion
// commits something else.
var DefaultTextMode = store.SystemInfo{
	Mode:                  store.ModeText,
	SupportedContentTypes: []store.ContentType{store.ContentTypeText},
}

// DetectMode reads the store's commitment, or returns DefaultTextMode
// if none has been written yet.
func DetectMode(ctx context.Context, s store.Store) (store.SystemInfo, error) {
	info, err := s.GetSystemInfo(ctx)
	if err != nil {
		return store.SystemInfo{}, coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
	}
	if info == nil {
		return DefaultTextMode, nil
	}
	return *info, nil
}

// Commit writes requested as the store's commitment, or confirms it
// already matches. It is idempotent: calling it again with the exact
// same binding succeeds.
func Commit(ctx context.Context, s store.Store, requested store.SystemInfo) error {
	return s.WriteSystemInfo(ctx, &requested)
}

// AssertCompatibility checks that a caller's requested binding can
// operate against the store's already-recorded commitment. An empty
// requested.Mode means the caller did not specify a mode and accepts
// whatever is on record.
func AssertCompatibility(requested, stored store.SystemInfo) error {
	if requested.Mode != "" && requested.Mode != stored.Mode {
		return coreerrors.ModeModelMismatch(fmt.Sprintf(
			"requested mode=%s but store is committed to mode=%s", requested.Mode, stored.Mode))
	}

	if requested.ModelName != "" && requested.ModelName != stored.ModelName {
		return coreerrors.ModeModelMismatch(fmt.Sprintf(
			"requested model=%s but store is committed to model=%s", requested.ModelName, stored.ModelName))
	}

	if requested.ModelDimensions != 0 && requested.ModelDimensions != stored.ModelDimensions {
		return coreerrors.DimensionMismatch(stored.ModelDimensions, requested.ModelDimensions)
	}

	return nil
}
