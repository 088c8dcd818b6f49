package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name     string          `json:"name" validate:"required,max=100"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" validate:"gte=0,lte=2147483647"`
}

type ProductUpdateRequest struct {
	Name     *string          `json:"name,omitempty" validate:"omitnil,max=100"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Quantity *int             `json:"quantity,omitempty" validate:"omitnil,gte=0,lte=2147483647"`
}

// ProductPatch carries the product fields an edit changes. Nil fields keep
// their stored value.
type ProductPatch struct {
	Name     *string
	Price    *decimal.Decimal
	Quantity *int
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Phone string `json:"phone" validate:"omitempty,max=20"`
	Email string `json:"email" validate:"omitempty,max=100,email"`
}

type CustomerUpdateRequest struct {
	Name  *string `json:"name,omitempty" validate:"omitnil,max=100"`
	Phone *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	Email *string `json:"email,omitempty" validate:"omitempty,max=100,email"`
}

// Sale is an immutable ledger entry. ProductName and CustomerName are
// resolved by id on read and are not persisted on the sale row.
type Sale struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"product_id"`
	CustomerID   string          `json:"customer_id"`
	Quantity     int             `json:"quantity"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	SoldAt       time.Time       `json:"sold_at"`
	ProductName  string          `json:"product_name,omitempty"`
	CustomerName string          `json:"customer_name,omitempty"`
}

type SaleRequest struct {
	ProductID  string `json:"product_id" validate:"required"`
	CustomerID string `json:"customer_id" validate:"required"`
	Quantity   int    `json:"quantity" validate:"gt=0,lte=2147483647"`
}

// SaleDraft is what the service hands to the repository. Pricing and the
// stock check happen inside the repository transaction.
type SaleDraft struct {
	ID         string
	ProductID  string
	CustomerID string
	Quantity   int
	SoldAt     time.Time
}

type ReportRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type ProductStat struct {
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

type ReportSummary struct {
	StartDate    string                 `json:"start_date"`
	EndDate      string                 `json:"end_date"`
	Sales        []Sale                 `json:"sales"`
	TotalSales   int                    `json:"total_sales"`
	TotalRevenue decimal.Decimal        `json:"total_revenue"`
	ProductStats map[string]ProductStat `json:"product_stats"`
}

type DashboardStats struct {
	TotalProducts  int64           `json:"total_products"`
	TotalCustomers int64           `json:"total_customers"`
	TotalSales     int64           `json:"total_sales"`
	TodayRevenue   decimal.Decimal `json:"today_revenue"`
	Date           string          `json:"date"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated identity carried through a request.
type Actor struct {
	UserID   string
	Username string
	Role     string
}

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UserCreateRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Role     string `json:"role" validate:"required,oneof=admin manager storekeeper"`
}

type UserUpdateRequest struct {
	Username *string `json:"username,omitempty" validate:"omitnil,min=3,max=50"`
	Password *string `json:"password,omitempty" validate:"omitnil,min=6,max=72"`
	Role     *string `json:"role,omitempty" validate:"omitnil,oneof=admin manager storekeeper"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u UserAccount) Public() User {
	return User{
		ID:        u.ID,
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	RoleAdmin       = "admin"
	RoleManager     = "manager"
	RoleStorekeeper = "storekeeper"
)

func IsValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleStorekeeper:
		return true
	default:
		return false
	}
}

const DateLayout = "2006-01-02"
