package repository

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// PostgresInventoryRepository implements InventoryRepository using PostgreSQL.
// Stock moves and reservation rows always change inside one transaction so
// a multi-line reservation is all-or-nothing.
type PostgresInventoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresInventoryRepository creates a new PostgreSQL inventory repository.
func NewPostgresInventoryRepository(db *sql.DB, logger *zap.Logger) *PostgresInventoryRepository {
	return &PostgresInventoryRepository{
		db:     db,
		logger: logger,
	}
}

// GetProduct retrieves a product by id.
func (r *PostgresInventoryRepository) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	query := `
		SELECT id, name, price_amount, price_currency, stock, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	var product models.Product
	err := r.db.QueryRowContext(ctx, query, productID).Scan(
		&product.ID,
		&product.Name,
		&product.Price.Amount,
		&product.Price.Currency,
		&product.Stock,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ReserveAll locks every product row, verifies stock for every line and
// decrements it, writing one RESERVED row per line. The first shortfall
// rolls the whole transaction back.
func (r *PostgresInventoryRepository) ReserveAll(ctx context.Context, ownerRef string, lines []models.CartItem, ttl time.Duration) ([]*models.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Lock rows in a stable order to avoid deadlocks between
	// concurrent checkouts sharing products.
	sorted := make([]models.CartItem, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	now := time.Now()
	expiresAt := now.Add(ttl)
	reservations := make([]*models.Reservation, 0, len(sorted))

	for _, line := range sorted {
		var name string
		var stock int
		err := tx.QueryRowContext(ctx,
			`SELECT name, stock FROM products WHERE id = $1 FOR UPDATE`,
			line.ProductID,
		).Scan(&name, &stock)
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		if err != nil {
			return nil, err
		}

		if stock < line.Quantity {
			r.logger.Info("reservation rejected on shortfall",
				zap.String("owner_ref", ownerRef),
				zap.String("product_id", line.ProductID),
				zap.Int("requested", line.Quantity),
				zap.Int("available", stock),
			)
			return nil, &apperrors.InsufficientStockError{
				ProductID:   line.ProductID,
				ProductName: name,
				Requested:   line.Quantity,
				Available:   stock,
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE products SET stock = stock - $2, updated_at = $3 WHERE id = $1`,
			line.ProductID, line.Quantity, now,
		)
		if err != nil {
			return nil, err
		}

		reservation := &models.Reservation{
			ID:        "rsv_" + uuid.NewString(),
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			OwnerRef:  ownerRef,
			Status:    models.ReservationStatusReserved,
			ExpiresAt: expiresAt,
			CreatedAt: now,
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO reservations (id, product_id, quantity, owner_ref, status, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			reservation.ID,
			reservation.ProductID,
			reservation.Quantity,
			reservation.OwnerRef,
			reservation.Status,
			reservation.ExpiresAt,
			reservation.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		reservations = append(reservations, reservation)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	r.logger.Info("stock reserved",
		zap.String("owner_ref", ownerRef),
		zap.Int("lines", len(reservations)),
		zap.Time("expires_at", expiresAt),
	)
	return reservations, nil
}

// Commit finalizes an owner's holds. Reservations past their window stay
// uncommitted for the sweeper.
func (r *PostgresInventoryRepository) Commit(ctx context.Context, ownerRef string) error {
	query := `
		UPDATE reservations
		SET status = $2
		WHERE owner_ref = $1 AND status = $3 AND expires_at > $4
	`

	result, err := r.db.ExecContext(ctx, query,
		ownerRef,
		models.ReservationStatusCommitted,
		models.ReservationStatusReserved,
		time.Now(),
	)
	if err != nil {
		return err
	}

	committed, _ := result.RowsAffected()
	r.logger.Info("reservations committed",
		zap.String("owner_ref", ownerRef),
		zap.Int64("count", committed),
	)
	return nil
}

// Release returns an owner's held stock. Only RESERVED rows move; repeating
// a release changes nothing.
func (r *PostgresInventoryRepository) Release(ctx context.Context, ownerRef string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, product_id, quantity
		FROM reservations
		WHERE owner_ref = $1 AND status = $2
		FOR UPDATE
	`, ownerRef, models.ReservationStatusReserved)
	if err != nil {
		return err
	}

	type hold struct {
		id        string
		productID string
		quantity  int
	}
	holds := make([]hold, 0)
	for rows.Next() {
		var h hold
		if err := rows.Scan(&h.id, &h.productID, &h.quantity); err != nil {
			rows.Close()
			return err
		}
		holds = append(holds, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	now := time.Now()
	for _, h := range holds {
		_, err = tx.ExecContext(ctx,
			`UPDATE products SET stock = stock + $2, updated_at = $3 WHERE id = $1`,
			h.productID, h.quantity, now,
		)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE reservations SET status = $2 WHERE id = $1`,
			h.id, models.ReservationStatusReleased,
		)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if len(holds) > 0 {
		r.logger.Info("reservations released",
			zap.String("owner_ref", ownerRef),
			zap.Int("count", len(holds)),
		)
	}
	return nil
}

// SweepExpired marks overdue RESERVED holds EXPIRED and restores their stock.
func (r *PostgresInventoryRepository) SweepExpired(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, product_id, quantity
		FROM reservations
		WHERE status = $1 AND expires_at <= $2
		FOR UPDATE
	`, models.ReservationStatusReserved, now)
	if err != nil {
		return 0, err
	}

	type hold struct {
		id        string
		productID string
		quantity  int
	}
	holds := make([]hold, 0)
	for rows.Next() {
		var h hold
		if err := rows.Scan(&h.id, &h.productID, &h.quantity); err != nil {
			rows.Close()
			return 0, err
		}
		holds = append(holds, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, h := range holds {
		_, err = tx.ExecContext(ctx,
			`UPDATE products SET stock = stock + $2, updated_at = $3 WHERE id = $1`,
			h.productID, h.quantity, now,
		)
		if err != nil {
			return 0, err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE reservations SET status = $2 WHERE id = $1`,
			h.id, models.ReservationStatusExpired,
		)
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	if len(holds) > 0 {
		r.logger.Info("expired reservations swept", zap.Int("count", len(holds)))
	}
	return len(holds), nil
}
