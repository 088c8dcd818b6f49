package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/backend/internal/domain"
	"tradeledger/backend/internal/store"
)

func newEmptyWithStock(t *testing.T, qty int) (*Store, domain.Product, domain.Customer) {
	t.Helper()
	s := New()
	ctx := context.Background()

	product, err := s.CreateProduct(ctx, domain.Product{Name: "Widget", Price: decimal.NewFromInt(100), Quantity: qty})
	require.NoError(t, err)
	customer, err := s.CreateCustomer(ctx, domain.Customer{Name: "Buyer"})
	require.NoError(t, err)
	return s, *product, *customer
}

func TestSeededCatalog(t *testing.T) {
	s := NewSeededFast()
	ctx := context.Background()

	products, err := s.ListProducts(ctx, false)
	require.NoError(t, err)
	require.Len(t, products, 5)
	assert.Equal(t, "Laptop", products[0].Name)
	assert.True(t, products[0].Price.Equal(decimal.NewFromInt(45000)))

	customers, err := s.ListCustomers(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 3)

	count, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	admin, err := s.GetUserByUsername(ctx, "  ADMIN ")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)
}

func TestRecordSaleDecrementsStockAndPrices(t *testing.T) {
	s, product, customer := newEmptyWithStock(t, 10)
	ctx := context.Background()

	sale, err := s.RecordSale(ctx, domain.SaleDraft{ProductID: product.ID, CustomerID: customer.ID, Quantity: 3})
	require.NoError(t, err)
	assert.True(t, sale.TotalPrice.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, "Widget", sale.ProductName)
	assert.Equal(t, "Buyer", sale.CustomerName)

	reloaded, err := s.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, reloaded.Quantity)
}

func TestRecordSaleInsufficientStockLeavesStateUnchanged(t *testing.T) {
	s, product, customer := newEmptyWithStock(t, 2)
	ctx := context.Background()

	_, err := s.RecordSale(ctx, domain.SaleDraft{ProductID: product.ID, CustomerID: customer.ID, Quantity: 3})
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	var stockErr *store.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 3, stockErr.Requested)

	reloaded, err := s.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Quantity)

	sales, err := s.ListSales(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestRecordSaleChecksProductBeforeCustomer(t *testing.T) {
	s, product, _ := newEmptyWithStock(t, 0)
	ctx := context.Background()

	_, err := s.RecordSale(ctx, domain.SaleDraft{ProductID: "missing", CustomerID: "missing", Quantity: 1})
	require.ErrorIs(t, err, store.ErrNotFound)

	// stock is 0 but the unknown customer is reported first
	_, err = s.RecordSale(ctx, domain.SaleDraft{ProductID: product.ID, CustomerID: "missing", Quantity: 1})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecordSaleConcurrentNeverOversells(t *testing.T) {
	s, product, customer := newEmptyWithStock(t, 5)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.RecordSale(ctx, domain.SaleDraft{ProductID: product.ID, CustomerID: customer.ID, Quantity: 1}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	reloaded, err := s.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Quantity)
}

func TestDeleteReferencedRowsConflicts(t *testing.T) {
	s, product, customer := newEmptyWithStock(t, 5)
	ctx := context.Background()

	_, err := s.RecordSale(ctx, domain.SaleDraft{ProductID: product.ID, CustomerID: customer.ID, Quantity: 1})
	require.NoError(t, err)

	require.ErrorIs(t, s.DeleteProduct(ctx, product.ID), store.ErrReferentialConflict)
	require.ErrorIs(t, s.DeleteCustomer(ctx, customer.ID), store.ErrReferentialConflict)
	require.ErrorIs(t, s.DeleteProduct(ctx, "missing"), store.ErrNotFound)

	unused, err := s.CreateProduct(ctx, domain.Product{Name: "Spare", Price: decimal.NewFromInt(1), Quantity: 0})
	require.NoError(t, err)
	require.NoError(t, s.DeleteProduct(ctx, unused.ID))
	_, err = s.GetProduct(ctx, unused.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListProductsInStockOnly(t *testing.T) {
	s, _, _ := newEmptyWithStock(t, 0)
	ctx := context.Background()
	_, err := s.CreateProduct(ctx, domain.Product{Name: "Stocked", Price: decimal.NewFromInt(5), Quantity: 4})
	require.NoError(t, err)

	all, err := s.ListProducts(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	stocked, err := s.ListProducts(ctx, true)
	require.NoError(t, err)
	require.Len(t, stocked, 1)
	assert.Equal(t, "Stocked", stocked[0].Name)
}

func TestListSalesBetweenIsInclusiveAndAscending(t *testing.T) {
	s, product, customer := newEmptyWithStock(t, 10)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, at := range []time.Time{base.Add(2 * time.Hour), base, base.Add(48 * time.Hour)} {
		_, err := s.RecordSale(ctx, domain.SaleDraft{ProductID: product.ID, CustomerID: customer.ID, Quantity: i + 1, SoldAt: at})
		require.NoError(t, err)
	}

	window, err := s.ListSalesBetween(ctx, base, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, 2, window[0].Quantity)
	assert.Equal(t, 1, window[1].Quantity)

	recent, err := s.ListSales(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 3, recent[0].Quantity)
}

func TestUsersRejectDuplicateUsernames(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.CreateUser(ctx, domain.UserAccount{Username: "clerk", PasswordHash: "x", Role: domain.RoleStorekeeper})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, domain.UserAccount{Username: "Clerk", PasswordHash: "y", Role: domain.RoleManager})
	require.ErrorIs(t, err, store.ErrDuplicateUsername)
}

func TestDashboardAndAudit(t *testing.T) {
	s, product, customer := newEmptyWithStock(t, 10)
	ctx := context.Background()
	day := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

	_, err := s.RecordSale(ctx, domain.SaleDraft{ProductID: product.ID, CustomerID: customer.ID, Quantity: 2, SoldAt: day.Add(time.Hour)})
	require.NoError(t, err)
	_, err = s.RecordSale(ctx, domain.SaleDraft{ProductID: product.ID, CustomerID: customer.ID, Quantity: 1, SoldAt: day.Add(-time.Hour)})
	require.NoError(t, err)

	stats, err := s.GetDashboardStats(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.TotalProducts)
	assert.EqualValues(t, 2, stats.TotalSales)
	assert.True(t, stats.TodayRevenue.Equal(decimal.NewFromInt(200)))

	require.NoError(t, s.CreateAuditLog(ctx, domain.AuditLog{Action: "sale.create", CreatedAt: day.Add(time.Minute)}))
	require.NoError(t, s.CreateAuditLog(ctx, domain.AuditLog{Action: "product.update", CreatedAt: day.Add(2 * time.Minute)}))
	logs, err := s.ListAuditLogs(ctx, day, day.Add(24*time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "product.update", logs[0].Action)
}

func TestUpdateProductAppliesOnlyPatchedFields(t *testing.T) {
	s, product, customer := newEmptyWithStock(t, 10)
	ctx := context.Background()

	_, err := s.RecordSale(ctx, domain.SaleDraft{ProductID: product.ID, CustomerID: customer.ID, Quantity: 4})
	require.NoError(t, err)

	renamed := "Widget Pro"
	updated, err := s.UpdateProduct(ctx, product.ID, domain.ProductPatch{Name: &renamed})
	require.NoError(t, err)
	assert.Equal(t, "Widget Pro", updated.Name)
	assert.Equal(t, 6, updated.Quantity)
	assert.True(t, updated.Price.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, product.CreatedAt, updated.CreatedAt)

	restock := 25
	updated, err = s.UpdateProduct(ctx, product.ID, domain.ProductPatch{Quantity: &restock})
	require.NoError(t, err)
	assert.Equal(t, "Widget Pro", updated.Name)
	assert.Equal(t, 25, updated.Quantity)

	_, err = s.UpdateProduct(ctx, "prd-missing", domain.ProductPatch{Name: &renamed})
	require.ErrorIs(t, err, store.ErrNotFound)

	negative := -1
	_, err = s.UpdateProduct(ctx, product.ID, domain.ProductPatch{Quantity: &negative})
	require.ErrorIs(t, err, store.ErrInvalid)
	reloaded, err := s.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, reloaded.Quantity)
}

func TestRecordSaleRejectsTotalAboveMaxAmount(t *testing.T) {
	s := New()
	ctx := context.Background()

	product, err := s.CreateProduct(ctx, domain.Product{Name: "Yacht", Price: store.MaxAmount, Quantity: 5})
	require.NoError(t, err)
	customer, err := s.CreateCustomer(ctx, domain.Customer{Name: "Buyer"})
	require.NoError(t, err)

	_, err = s.RecordSale(ctx, domain.SaleDraft{ProductID: product.ID, CustomerID: customer.ID, Quantity: 2})
	require.ErrorIs(t, err, store.ErrAmountOutOfRange)

	reloaded, err := s.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.Quantity)
	sales, err := s.ListSales(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, sales)

	sale, err := s.RecordSale(ctx, domain.SaleDraft{ProductID: product.ID, CustomerID: customer.ID, Quantity: 1})
	require.NoError(t, err)
	assert.True(t, sale.TotalPrice.Equal(store.MaxAmount))
}
