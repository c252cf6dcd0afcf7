package learningstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
	"github.com/cerfacs-go/dsclim/internal/dsclim/learning"
	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
)

// FileStore caches LearningRecords as one JSON file per key under Dir.
// It is the default backend: no external service required, suitable
// for a single-machine run or a shared network filesystem.
type FileStore struct {
	Dir    string
	logger *slog.Logger
}

// NewFileStore returns a FileStore rooted at dir. dir is created lazily
// on first Save.
func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{Dir: dir, logger: logger}
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.Dir, key+".json")
}

func (s *FileStore) Load(ctx context.Context, key string, expectedEof, expectedPts int, expectedSeasons []string) (*types.LearningRecord, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dsclimerr.IO(err, "learning file store: reading cache %q", key)
	}

	var rec types.LearningRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, dsclimerr.IO(err, "learning file store: decoding cache %q", key)
	}

	if err := learning.VerifyCache(&rec, expectedEof, expectedPts, expectedSeasons); err != nil {
		return nil, err
	}

	s.logger.Debug("learning cache hit", "key", key, "path", s.path(key))
	return &rec, nil
}

func (s *FileStore) Save(ctx context.Context, key string, rec *types.LearningRecord) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return dsclimerr.IO(err, "learning file store: creating cache dir %q", s.Dir)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return dsclimerr.IO(err, "learning file store: encoding cache %q", key)
	}
	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return dsclimerr.IO(err, "learning file store: writing cache %q", key)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		return dsclimerr.IO(err, "learning file store: finalizing cache %q", key)
	}
	s.logger.Info("learning cache written", "key", key, "path", s.path(key))
	return nil
}
