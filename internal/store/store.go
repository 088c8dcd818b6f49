package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrReferentialConflict = errors.New("record is referenced by existing sales")
	ErrDuplicateUsername   = errors.New("username already exists")
	ErrInvalid             = errors.New("invalid record")
	ErrAmountOutOfRange    = errors.New("amount exceeds the storable maximum")
)

// MaxAmount is the largest price or sale total a NUMERIC(14,2) column holds.
var MaxAmount = decimal.RequireFromString("999999999999.99")

// MaxQuantity is the largest stock or sale quantity an INTEGER column holds.
const MaxQuantity = 2147483647

// InsufficientStockError reports how many units were on hand when a sale
// asked for more. It matches ErrInsufficientStock with errors.Is.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: requested %d, available %d", e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// SaleTotal prices a sale at the product's current unit price. Totals that
// do not fit MaxAmount yield ErrAmountOutOfRange.
func SaleTotal(product domain.Product, qty int) (decimal.Decimal, error) {
	total := product.Price.Mul(decimal.NewFromInt(int64(qty)))
	if total.GreaterThan(MaxAmount) {
		return decimal.Decimal{}, ErrAmountOutOfRange
	}
	return total, nil
}

type Repository interface {
	ListProducts(ctx context.Context, inStockOnly bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// UpdateProduct applies only the fields set in patch, merged against the
	// current row in one step so concurrent sales are never overwritten.
	UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error

	// RecordSale validates stock, prices the sale, decrements inventory and
	// appends the ledger entry as one atomic step.
	RecordSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error)
	ListSales(ctx context.Context, limit int) ([]domain.Sale, error)
	ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	GetDashboardStats(ctx context.Context, dayFrom time.Time, dayTo time.Time) (domain.DashboardStats, error)

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	DeleteUser(ctx context.Context, id string) error
	CountUsers(ctx context.Context) (int64, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
