package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/littlebearapps/adops-intel/internal/model"
	"github.com/littlebearapps/adops-intel/internal/pipeline"
)

// ExperimentRepository persists experiments, their variants, metrics, and
// audit trail, one row per logical table per write.
type ExperimentRepository struct {
	db *sql.DB
}

// NewExperimentRepository returns a repository backed by db.
func NewExperimentRepository(db *sql.DB) *ExperimentRepository {
	return &ExperimentRepository{db: db}
}

// Create inserts a new experiment with its variants in a single
// transaction — plan artifacts and experiment rows are never partially
// written.
func (r *ExperimentRepository) Create(ctx context.Context, e *model.Experiment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "begin tx", "error", err.Error())
	}
	defer tx.Rollback()

	guards, err := json.Marshal(e.Guards)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "marshal guards", "error", err.Error())
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO experiments (id, type, product, target_id, status, target_metric,
			min_sample_size, confidence_level, guards, start_at, end_at, winner_variant_id,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.ID, e.Type, e.Product, e.TargetID, e.Status, e.TargetMetric,
		e.MinSampleSize, e.ConfidenceLevel, guards, e.StartAt, e.EndAt, nullString(e.WinnerVariantID),
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "insert experiment", "error", err.Error())
	}

	for _, v := range e.Variants {
		if err := insertVariant(ctx, tx, e.ID, v); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return pipeline.New(pipeline.StorageFailure, "commit tx", "error", err.Error())
	}
	return nil
}

func insertVariant(ctx context.Context, tx *sql.Tx, testID string, v model.Variant) error {
	data, err := json.Marshal(v)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "marshal variant", "error", err.Error())
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO experiment_variants (test_id, variant_id, data) VALUES ($1,$2,$3)
		ON CONFLICT (test_id, variant_id) DO UPDATE SET data = EXCLUDED.data`,
		testID, v.ID, data)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "insert variant", "error", err.Error())
	}
	return nil
}

// Get loads an experiment by id with its variants.
func (r *ExperimentRepository) Get(ctx context.Context, id string) (*model.Experiment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, type, product, target_id, status, target_metric, min_sample_size,
			confidence_level, guards, start_at, end_at, winner_variant_id, created_at, updated_at
		FROM experiments WHERE id = $1`, id)

	var e model.Experiment
	var guards []byte
	var winner sql.NullString
	if err := row.Scan(&e.ID, &e.Type, &e.Product, &e.TargetID, &e.Status, &e.TargetMetric,
		&e.MinSampleSize, &e.ConfidenceLevel, &guards, &e.StartAt, &e.EndAt, &winner,
		&e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pipeline.ErrNotFound
		}
		return nil, pipeline.New(pipeline.StorageFailure, "get experiment", "error", err.Error())
	}
	if winner.Valid {
		e.WinnerVariantID = winner.String
	}
	if err := json.Unmarshal(guards, &e.Guards); err != nil {
		return nil, pipeline.New(pipeline.StorageFailure, "unmarshal guards", "error", err.Error())
	}

	variants, err := r.listVariants(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Variants = variants
	return &e, nil
}

func (r *ExperimentRepository) listVariants(ctx context.Context, testID string) ([]model.Variant, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT data FROM experiment_variants WHERE test_id = $1 ORDER BY variant_id`, testID)
	if err != nil {
		return nil, pipeline.New(pipeline.StorageFailure, "list variants", "error", err.Error())
	}
	defer rows.Close()

	var variants []model.Variant
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, pipeline.New(pipeline.StorageFailure, "scan variant", "error", err.Error())
		}
		var v model.Variant
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, pipeline.New(pipeline.StorageFailure, "unmarshal variant", "error", err.Error())
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// UpdateStatus persists a status transition plus the updated timestamp,
// and appends one row to the immutable audit log.
func (r *ExperimentRepository) UpdateStatus(ctx context.Context, e *model.Experiment, transition string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "begin tx", "error", err.Error())
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE experiments SET status=$1, start_at=$2, end_at=$3, winner_variant_id=$4, updated_at=$5
		WHERE id=$6`,
		e.Status, e.StartAt, e.EndAt, nullString(e.WinnerVariantID), e.UpdatedAt, e.ID)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "update experiment", "error", err.Error())
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO experiment_audit (test_id, transition, at) VALUES ($1,$2,$3)`,
		e.ID, transition, e.UpdatedAt)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "insert audit row", "error", err.Error())
	}

	return tx.Commit()
}

// UpsertMetric performs an idempotent upsert keyed by (date, test_id,
// variant_id), satisfying "record_metrics(e, v, d, m) twice ≡ once."
func (r *ExperimentRepository) UpsertMetric(ctx context.Context, m model.MetricPoint) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO experiment_metrics (date, test_id, variant_id, impressions, clicks, cost, conversions, conversion_value)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (date, test_id, variant_id) DO UPDATE SET
			impressions = EXCLUDED.impressions,
			clicks = EXCLUDED.clicks,
			cost = EXCLUDED.cost,
			conversions = EXCLUDED.conversions,
			conversion_value = EXCLUDED.conversion_value`,
		m.Date, m.ExperimentID, m.VariantID, m.Impressions, m.Clicks, m.Cost, m.Conversions, m.ConversionValue)
	if err != nil {
		return pipeline.New(pipeline.StorageFailure, "upsert metric", "error", err.Error())
	}
	return nil
}

// AggregateMetrics sums all metric points for a variant across its
// lifetime, used to feed the statistical engine (C8).
func (r *ExperimentRepository) AggregateMetrics(ctx context.Context, experimentID, variantID string) (impressions, clicks, conversions int64, cost, convValue float64, err error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(impressions),0), COALESCE(SUM(clicks),0), COALESCE(SUM(conversions),0),
			COALESCE(SUM(cost),0), COALESCE(SUM(conversion_value),0)
		FROM experiment_metrics WHERE test_id=$1 AND variant_id=$2`, experimentID, variantID)
	if scanErr := row.Scan(&impressions, &clicks, &conversions, &cost, &convValue); scanErr != nil {
		return 0, 0, 0, 0, 0, pipeline.New(pipeline.StorageFailure, "aggregate metrics", "error", scanErr.Error())
	}
	return
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
