package learningstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
	"github.com/cerfacs-go/dsclim/internal/dsclim/learning"
	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
)

// PostgresStore caches LearningRecords in Postgres, storing each
// season's cluster centroids as pgvector rows in learning_season_weights
// so a future extension (nearest-learning-run lookup, drift monitoring) can
// query them by similarity without re-decoding JSON (spec domain-stack
// expansion).
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore wraps an already-connected *sql.DB. Schema
// (learning_records, learning_season_weights) is assumed migrated
// ahead of time.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) Load(ctx context.Context, key string, expectedEof, expectedPts int, expectedSeasons []string) (*types.LearningRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT n_eof, n_pts, reference_singular_variance, pc_normalized_var, seasons_json
		FROM learning_records
		WHERE cache_key = $1
	`, key)

	var nEof, nPts int
	var v1 float64
	var pcVarJSON, seasonsJSON []byte
	err := row.Scan(&nEof, &nPts, &v1, &pcVarJSON, &seasonsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dsclimerr.IO(err, "learning postgres store: querying cache %q", key)
	}

	rec := &types.LearningRecord{NEof: nEof, NPts: nPts, ReferenceSingularVariance: v1}
	if err := json.Unmarshal(pcVarJSON, &rec.PcNormalizedVar); err != nil {
		return nil, dsclimerr.IO(err, "learning postgres store: decoding pc variance for %q", key)
	}
	if err := json.Unmarshal(seasonsJSON, &rec.Seasons); err != nil {
		return nil, dsclimerr.IO(err, "learning postgres store: decoding seasons for %q", key)
	}

	if err := learning.VerifyCache(rec, expectedEof, expectedPts, expectedSeasons); err != nil {
		return nil, err
	}

	s.logger.Debug("learning cache hit", "key", key, "backend", "postgres")
	return rec, nil
}

func (s *PostgresStore) Save(ctx context.Context, key string, rec *types.LearningRecord) error {
	pcVarJSON, err := json.Marshal(rec.PcNormalizedVar)
	if err != nil {
		return dsclimerr.IO(err, "learning postgres store: encoding pc variance for %q", key)
	}
	seasonsJSON, err := json.Marshal(rec.Seasons)
	if err != nil {
		return dsclimerr.IO(err, "learning postgres store: encoding seasons for %q", key)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO learning_records (cache_key, n_eof, n_pts, reference_singular_variance, pc_normalized_var, seasons_json, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (cache_key) DO UPDATE SET
				n_eof = EXCLUDED.n_eof,
				n_pts = EXCLUDED.n_pts,
				reference_singular_variance = EXCLUDED.reference_singular_variance,
				pc_normalized_var = EXCLUDED.pc_normalized_var,
				seasons_json = EXCLUDED.seasons_json,
				created_at = EXCLUDED.created_at
		`, key, rec.NEof, rec.NPts, rec.ReferenceSingularVariance, pcVarJSON, seasonsJSON, time.Now().UTC())
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM learning_season_weights WHERE cache_key = $1`, key); err != nil {
			return err
		}
		for name, sl := range rec.Seasons {
			for c, centroid := range sl.Weight.Centroids {
				vec := pgvector.NewVector(toFloat32(centroid))
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO learning_season_weights (cache_key, season, cluster_index, centroid)
					VALUES ($1, $2, $3, $4)
				`, key, name, c, vec); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return dsclimerr.IO(err, "learning postgres store: saving cache %q", key)
	}

	s.logger.Info("learning cache written", "key", key, "backend", "postgres")
	return nil
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
