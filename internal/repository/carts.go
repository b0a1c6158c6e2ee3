package repository

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// PostgresCartRepository implements CartRepository using PostgreSQL.
// Cart lines join the catalog so product names and unit prices are always
// the live catalog values when the cart is read.
type PostgresCartRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresCartRepository creates a new PostgreSQL cart repository.
func NewPostgresCartRepository(db *sql.DB, logger *zap.Logger) *PostgresCartRepository {
	return &PostgresCartRepository{
		db:     db,
		logger: logger,
	}
}

// Get loads a user's cart. An empty cart is a cart with no lines, not an
// error.
func (r *PostgresCartRepository) Get(ctx context.Context, userID string) (*models.Cart, error) {
	query := `
		SELECT ci.product_id, p.name, ci.quantity, p.price_amount, p.price_currency
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.added_at
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Error("failed to load cart",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	cart := &models.Cart{UserID: userID, Items: make([]models.CartItem, 0)}
	for rows.Next() {
		var item models.CartItem
		err := rows.Scan(
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice.Amount,
			&item.UnitPrice.Currency,
		)
		if err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cart, nil
}

// Clear removes all lines from a user's cart.
func (r *PostgresCartRepository) Clear(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1`, userID,
	)
	if err != nil {
		r.logger.Error("failed to clear cart",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return err
	}

	r.logger.Debug("cart cleared", zap.String("user_id", userID))
	return nil
}
