package memory

import (
	"context"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"tradeledger/backend/internal/domain"
	"tradeledger/backend/internal/store"
	"tradeledger/backend/internal/xid"
)

type Store struct {
	mu            sync.RWMutex
	products      map[string]domain.Product
	customers     map[string]domain.Customer
	sales         []domain.Sale
	usersByID     map[string]domain.UserAccount
	auditLogs     []domain.AuditLog
	now           func() time.Time
	productOrder  []string
	customerOrder []string
}

var _ store.Repository = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		products:  make(map[string]domain.Product),
		customers: make(map[string]domain.Customer),
		sales:     make([]domain.Sale, 0, 64),
		usersByID: make(map[string]domain.UserAccount),
		auditLogs: make([]domain.AuditLog, 0, 128),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Passwords come from SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and
// SEED_STOREKEEPER_PASSWORD; unset values fall back to dev defaults.
func seedUsers(cost int, now time.Time) []domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	storekeeperPwd := envOr("SEED_STOREKEEPER_PASSWORD", "store123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" {
		log.Warn().Msg("memory store is using default dev credentials; set SEED_*_PASSWORD to override")
	}

	users := make([]domain.UserAccount, 0, 3)
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"manager", managerPwd, domain.RoleManager},
		{"storekeeper", storekeeperPwd, domain.RoleStorekeeper},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), cost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("failed to hash seed password")
		}
		users = append(users, domain.UserAccount{
			ID:           xid.New("usr"),
			Username:     u.username,
			PasswordHash: string(hash),
			Role:         u.role,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with the demo catalog, customers, a few sales
// and one account per role.
func NewSeeded() *Store {
	return newSeeded(bcrypt.DefaultCost)
}

// NewSeededFast is NewSeeded with the minimum bcrypt cost, for tests.
func NewSeededFast() *Store {
	return newSeeded(bcrypt.MinCost)
}

func newSeeded(cost int) *Store {
	s := New()
	now := s.now()

	products := []domain.Product{
		{ID: "prd-laptop", Name: "Laptop", Price: decimal.NewFromInt(45000), Quantity: 10},
		{ID: "prd-mouse", Name: "Mouse", Price: decimal.NewFromInt(800), Quantity: 50},
		{ID: "prd-keyboard", Name: "Keyboard", Price: decimal.NewFromInt(1500), Quantity: 30},
		{ID: "prd-monitor", Name: "Monitor", Price: decimal.NewFromInt(12000), Quantity: 15},
		{ID: "prd-headphones", Name: "Headphones", Price: decimal.NewFromInt(2500), Quantity: 25},
	}
	for _, p := range products {
		p.CreatedAt, p.UpdatedAt = now, now
		s.products[p.ID] = p
		s.productOrder = append(s.productOrder, p.ID)
	}

	customers := []domain.Customer{
		{ID: "cus-ivanov", Name: "Ivan Ivanov", Phone: "+7 (999) 123-45-67", Email: "ivan@mail.ru"},
		{ID: "cus-petrov", Name: "Petr Petrov", Phone: "+7 (999) 234-56-78", Email: "petr@mail.ru"},
		{ID: "cus-sidorova", Name: "Anna Sidorova", Phone: "+7 (999) 345-67-89", Email: "anna@mail.ru"},
	}
	for _, c := range customers {
		c.CreatedAt, c.UpdatedAt = now, now
		s.customers[c.ID] = c
		s.customerOrder = append(s.customerOrder, c.ID)
	}

	for _, seed := range []struct {
		productID  string
		customerID string
		qty        int
	}{
		{"prd-laptop", "cus-ivanov", 1},
		{"prd-mouse", "cus-petrov", 2},
		{"prd-keyboard", "cus-sidorova", 1},
	} {
		product := s.products[seed.productID]
		total, _ := store.SaleTotal(product, seed.qty)
		s.sales = append(s.sales, domain.Sale{
			ID:         xid.New("sale"),
			ProductID:  seed.productID,
			CustomerID: seed.customerID,
			Quantity:   seed.qty,
			TotalPrice: total,
			SoldAt:     now,
		})
	}

	for _, u := range seedUsers(cost, now) {
		s.usersByID[u.ID] = u
	}
	return s
}

// SetClock replaces the store's time source. Sale timestamps come from it.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) ListProducts(_ context.Context, inStockOnly bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		product := s.products[id]
		if inStockOnly && product.Quantity <= 0 {
			continue
		}
		result = append(result, product)
	}
	return result, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || !product.Price.IsPositive() || product.Quantity < 0 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalid
	}
	now := s.now()
	product.CreatedAt, product.UpdatedAt = now, now
	s.products[product.ID] = product
	s.productOrder = append(s.productOrder, product.ID)

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if patch.Name != nil {
		product.Name = *patch.Name
	}
	if patch.Price != nil {
		product.Price = *patch.Price
	}
	if patch.Quantity != nil {
		product.Quantity = *patch.Quantity
	}
	if product.Name == "" || !product.Price.IsPositive() || product.Quantity < 0 {
		return nil, store.ErrInvalid
	}
	product.UpdatedAt = s.now()
	s.products[id] = product

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	for _, sale := range s.sales {
		if sale.ProductID == id {
			return store.ErrReferentialConflict
		}
	}
	delete(s.products, id)
	s.productOrder = slices.DeleteFunc(s.productOrder, func(v string) bool { return v == id })
	return nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Customer, 0, len(s.customerOrder))
	for _, id := range s.customerOrder {
		result = append(result, s.customers[id])
	}
	return result, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if _, exists := s.customers[customer.ID]; exists {
		return nil, store.ErrInvalid
	}
	now := s.now()
	customer.CreatedAt, customer.UpdatedAt = now, now
	s.customers[customer.ID] = customer
	s.customerOrder = append(s.customerOrder, customer.ID)

	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customers[customer.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	customer.CreatedAt = existing.CreatedAt
	customer.UpdatedAt = s.now()
	s.customers[customer.ID] = customer

	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[id]; !ok {
		return store.ErrNotFound
	}
	for _, sale := range s.sales {
		if sale.CustomerID == id {
			return store.ErrReferentialConflict
		}
	}
	delete(s.customers, id)
	s.customerOrder = slices.DeleteFunc(s.customerOrder, func(v string) bool { return v == id })
	return nil
}

func (s *Store) RecordSale(_ context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	if draft.Quantity < 1 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[draft.ProductID]
	if !ok {
		return nil, store.ErrNotFound
	}
	customer, ok := s.customers[draft.CustomerID]
	if !ok {
		return nil, store.ErrNotFound
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

	if draft.ID == "" {
		draft.ID = xid.New("sale")
	}
	soldAt := draft.SoldAt
	if soldAt.IsZero() {
		soldAt = s.now()
	}

	sale := domain.Sale{
		ID:           draft.ID,
		ProductID:    product.ID,
		CustomerID:   customer.ID,
		Quantity:     draft.Quantity,
		TotalPrice:   total,
		SoldAt:       soldAt,
		ProductName:  product.Name,
		CustomerName: customer.Name,
	}

	product.Quantity -= draft.Quantity
	product.UpdatedAt = soldAt
	s.products[product.ID] = product

	stored := sale
	stored.ProductName, stored.CustomerName = "", ""
	s.sales = append(s.sales, stored)

	return &sale, nil
}

func (s *Store) ListSales(_ context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		result = append(result, s.withNames(sale))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].SoldAt.After(result[j].SoldAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListSalesBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 32)
	for _, sale := range s.sales {
		if sale.SoldAt.Before(from) || sale.SoldAt.After(to) {
			continue
		}
		result = append(result, s.withNames(sale))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].SoldAt.Before(result[j].SoldAt)
	})
	return result, nil
}

func (s *Store) withNames(sale domain.Sale) domain.Sale {
	if product, ok := s.products[sale.ProductID]; ok {
		sale.ProductName = product.Name
	}
	if customer, ok := s.customers[sale.CustomerID]; ok {
		sale.CustomerName = customer.Name
	}
	return sale
}

func (s *Store) GetDashboardStats(_ context.Context, dayFrom time.Time, dayTo time.Time) (domain.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.DashboardStats{
		TotalProducts:  int64(len(s.products)),
		TotalCustomers: int64(len(s.customers)),
		TotalSales:     int64(len(s.sales)),
		TodayRevenue:   decimal.Zero,
	}
	for _, sale := range s.sales {
		if sale.SoldAt.Before(dayFrom) || !sale.SoldAt.Before(dayTo) {
			continue
		}
		stats.TodayRevenue = stats.TodayRevenue.Add(sale.TotalPrice)
	}
	return stats, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || user.PasswordHash == "" || !domain.IsValidRole(user.Role) {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.usersByID {
		if existing.Username == user.Username {
			return nil, store.ErrDuplicateUsername
		}
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	s.usersByID[user.ID] = user

	created := user
	return &created, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.usersByID {
		if user.Username == username {
			found := user
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByID))
	for _, user := range s.usersByID {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || user.PasswordHash == "" || !domain.IsValidRole(user.Role) {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.usersByID[user.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for id, other := range s.usersByID {
		if id != user.ID && other.Username == user.Username {
			return nil, store.ErrDuplicateUsername
		}
	}
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = s.now()
	s.usersByID[user.ID] = user

	updated := user
	return &updated, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.usersByID, id)
	return nil
}

func (s *Store) CountUsers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.usersByID)), nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}
