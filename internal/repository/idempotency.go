package repository

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// PostgresIdempotencyRepository implements IdempotencyRepository using
// PostgreSQL. The table's primary key is (key, user_id, endpoint), so two
// concurrent attempts on the same key resolve to one inserted row and the
// loser reads the winner's record back.
type PostgresIdempotencyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresIdempotencyRepository creates a new PostgreSQL idempotency repository.
func NewPostgresIdempotencyRepository(db *sql.DB, logger *zap.Logger) *PostgresIdempotencyRepository {
	return &PostgresIdempotencyRepository{
		db:     db,
		logger: logger,
	}
}

// BeginAttempt claims the key with an IN_PROGRESS row. On conflict the
// existing record is returned with claimed=false. Expired records are
// replaced so a key outliving its window behaves like a fresh one.
func (r *PostgresIdempotencyRepository) BeginAttempt(ctx context.Context, record *models.IdempotencyRecord) (*models.IdempotencyRecord, bool, error) {
	insert := `
		INSERT INTO idempotency_records (
			key, user_id, endpoint, request_hash, status, created_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		ON CONFLICT (key, user_id, endpoint) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, insert,
		record.Key,
		record.UserID,
		record.Endpoint,
		record.RequestHash,
		models.IdempotencyStatusInProgress,
		record.CreatedAt,
		record.ExpiresAt,
	)
	if err != nil {
		return nil, false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if rowsAffected == 1 {
		r.logger.Debug("idempotency key claimed",
			zap.String("key", record.Key),
			zap.String("user_id", record.UserID),
		)
		claimed := *record
		claimed.Status = models.IdempotencyStatusInProgress
		return &claimed, true, nil
	}

	existing, err := r.get(ctx, record.Key, record.UserID, record.Endpoint)
	if err != nil {
		return nil, false, err
	}

	if time.Now().After(existing.ExpiresAt) {
		// The prior attempt's record has aged out. Take over the row.
		takeover := `
			UPDATE idempotency_records
			SET request_hash = $4, status = $5, response_body = NULL,
			    status_code = NULL, created_at = $6, expires_at = $7
			WHERE key = $1 AND user_id = $2 AND endpoint = $3 AND expires_at <= $6
		`
		res, err := r.db.ExecContext(ctx, takeover,
			record.Key, record.UserID, record.Endpoint,
			record.RequestHash, models.IdempotencyStatusInProgress,
			record.CreatedAt, record.ExpiresAt,
		)
		if err != nil {
			return nil, false, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			claimed := *record
			claimed.Status = models.IdempotencyStatusInProgress
			return &claimed, true, nil
		}
		// Lost the takeover race; fall through to the fresh record.
		existing, err = r.get(ctx, record.Key, record.UserID, record.Endpoint)
		if err != nil {
			return nil, false, err
		}
	}

	return existing, false, nil
}

// Complete stores the final response under the key so retries replay it.
func (r *PostgresIdempotencyRepository) Complete(ctx context.Context, key, userID, endpoint string, statusCode int, responseBody []byte) error {
	query := `
		UPDATE idempotency_records
		SET status = $4, status_code = $5, response_body = $6
		WHERE key = $1 AND user_id = $2 AND endpoint = $3
	`

	result, err := r.db.ExecContext(ctx, query,
		key, userID, endpoint,
		models.IdempotencyStatusCompleted, statusCode, responseBody,
	)
	if err != nil {
		r.logger.Error("failed to complete idempotency record",
			zap.String("key", key),
			zap.Error(err),
		)
		return err
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	r.logger.Debug("idempotency record completed",
		zap.String("key", key),
		zap.Int("status_code", statusCode),
	)
	return nil
}

// Abandon deletes a record that never reached COMPLETED. Without this an
// aborted attempt would block its key until the record expires.
func (r *PostgresIdempotencyRepository) Abandon(ctx context.Context, key, userID, endpoint string) error {
	query := `
		DELETE FROM idempotency_records
		WHERE key = $1 AND user_id = $2 AND endpoint = $3 AND status = $4
	`

	_, err := r.db.ExecContext(ctx, query,
		key, userID, endpoint, models.IdempotencyStatusInProgress,
	)
	if err != nil {
		r.logger.Error("failed to abandon idempotency record",
			zap.String("key", key),
			zap.Error(err),
		)
		return err
	}

	r.logger.Debug("idempotency record abandoned", zap.String("key", key))
	return nil
}

// PurgeExpired deletes records past their retention window.
func (r *PostgresIdempotencyRepository) PurgeExpired(ctx context.Context) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_records WHERE expires_at <= $1`, time.Now(),
	)
	if err != nil {
		return 0, err
	}

	purged, _ := result.RowsAffected()
	if purged > 0 {
		r.logger.Info("idempotency records purged", zap.Int64("count", purged))
	}
	return int(purged), nil
}

func (r *PostgresIdempotencyRepository) get(ctx context.Context, key, userID, endpoint string) (*models.IdempotencyRecord, error) {
	query := `
		SELECT key, user_id, endpoint, request_hash, status,
		       response_body, status_code, created_at, expires_at
		FROM idempotency_records
		WHERE key = $1 AND user_id = $2 AND endpoint = $3
	`

	var record models.IdempotencyRecord
	var responseBody []byte
	var statusCode sql.NullInt64

	err := r.db.QueryRowContext(ctx, query, key, userID, endpoint).Scan(
		&record.Key,
		&record.UserID,
		&record.Endpoint,
		&record.RequestHash,
		&record.Status,
		&responseBody,
		&statusCode,
		&record.CreatedAt,
		&record.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	record.ResponseBody = responseBody
	if statusCode.Valid {
		record.StatusCode = int(statusCode.Int64)
	}
	return &record, nil
}
