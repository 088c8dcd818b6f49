package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"tradeledger/backend/internal/domain"
	"tradeledger/backend/internal/store"
	"tradeledger/backend/internal/xid"
)

const saleColumns = `
	s.id, s.product_id, s.customer_id, s.quantity, s.total_price, s.sold_at,
	COALESCE(p.name, ''), COALESCE(c.name, '')`

const saleJoins = `
	FROM sales s
	LEFT JOIN products p ON p.id = s.product_id
	LEFT JOIN customers c ON c.id = s.customer_id`

// RecordSale locks the product row so concurrent sales of the same product
// serialize on it. The guarded decrement keeps quantity non-negative even
// if the lock were bypassed.
func (s *Store) RecordSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	if draft.Quantity < 1 {
		return nil, store.ErrInvalid
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, errors.Wrap(err, "begin sale")
	}
	defer func() { _ = tx.Rollback() }()

	var product domain.Product
	err = tx.QueryRowContext(ctx, `
		SELECT id, name, price, quantity
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, draft.ProductID).Scan(&product.ID, &product.Name, &product.Price, &product.Quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "lock product")
	}

	var customerName string
	err = tx.QueryRowContext(ctx, `SELECT name FROM customers WHERE id = $1`, draft.CustomerID).Scan(&customerName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "load customer")
	}

	if product.Quantity < draft.Quantity {
		return nil, &store.InsufficientStockError{
			ProductID: product.ID,
			Available: product.Quantity,
			Requested: draft.Quantity,
		}
	}

	total, err := store.SaleTotal(product, draft.Quantity)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - $2, updated_at = now()
		WHERE id = $1 AND quantity >= $2
	`, product.ID, draft.Quantity)
	if err != nil {
		return nil, errors.Wrap(err, "decrement stock")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return nil, &store.InsufficientStockError{
			ProductID: product.ID,
			Available: product.Quantity,
			Requested: draft.Quantity,
		}
	}

	if draft.ID == "" {
		draft.ID = xid.New("sale")
	}
	if draft.SoldAt.IsZero() {
		draft.SoldAt = time.Now().UTC()
	}
	sale := domain.Sale{
		ID:           draft.ID,
		ProductID:    product.ID,
		CustomerID:   draft.CustomerID,
		Quantity:     draft.Quantity,
		TotalPrice:   total,
		SoldAt:       draft.SoldAt.UTC(),
		ProductName:  product.Name,
		CustomerName: customerName,
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sales (id, product_id, customer_id, quantity, total_price, sold_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, sale.ID, sale.ProductID, sale.CustomerID, sale.Quantity, sale.TotalPrice, sale.SoldAt); err != nil {
		return nil, errors.Wrap(err, "insert sale")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit sale")
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT`+saleColumns+saleJoins+`
		ORDER BY s.sold_at DESC, s.id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list sales")
	}
	return scanSales(rows)
}

func (s *Store) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT`+saleColumns+saleJoins+`
		WHERE s.sold_at >= $1 AND s.sold_at <= $2
		ORDER BY s.sold_at ASC, s.id ASC
	`, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "list sales between")
	}
	return scanSales(rows)
}

func scanSales(rows *sql.Rows) ([]domain.Sale, error) {
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(
			&sale.ID, &sale.ProductID, &sale.CustomerID, &sale.Quantity, &sale.TotalPrice, &sale.SoldAt,
			&sale.ProductName, &sale.CustomerName,
		); err != nil {
			return nil, errors.Wrap(err, "scan sale")
		}
		sale.SoldAt = sale.SoldAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate sales")
	}
	return sales, nil
}

func (s *Store) GetDashboardStats(ctx context.Context, dayFrom time.Time, dayTo time.Time) (domain.DashboardStats, error) {
	var stats domain.DashboardStats
	var revenue decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM customers),
			(SELECT COUNT(*) FROM sales),
			(SELECT COALESCE(SUM(total_price), 0) FROM sales WHERE sold_at >= $1 AND sold_at < $2)
	`, dayFrom, dayTo).Scan(&stats.TotalProducts, &stats.TotalCustomers, &stats.TotalSales, &revenue)
	if err != nil {
		return domain.DashboardStats{}, errors.Wrap(err, "dashboard stats")
	}
	stats.TodayRevenue = revenue
	return stats, nil
}
