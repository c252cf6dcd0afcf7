// Package learningstore implements the learning cache contract (spec
// §4.F expansion): a LearningRecord is expensive to assemble, so it is
// cached keyed by the configuration that produced it, and reused
// verbatim across runs as long as the shapes line up.
package learningstore

import (
	"context"

	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
)

// Store loads and saves an assembled LearningRecord for a given cache
// key. Load returns (nil, nil) on a clean cache miss; any other error
// means the cache was present but unusable.
type Store interface {
	Load(ctx context.Context, key string, expectedEof, expectedPts int, expectedSeasons []string) (*types.LearningRecord, error)
	Save(ctx context.Context, key string, rec *types.LearningRecord) error
}
