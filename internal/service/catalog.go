package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tradeledger/backend/internal/domain"
	"tradeledger/backend/internal/store"
)

func (s *Service) ListProducts(ctx context.Context, inStockOnly bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, inStockOnly)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}
	price, err := normalizePrice(req.Price)
	if err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:     req.Name,
		Price:    price,
		Quantity: req.Quantity,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product.create", "product", created.ID, fmt.Sprintf("name=%s,price=%s,quantity=%d", created.Name, created.Price.StringFixed(2), created.Quantity))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return domain.Product{}, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
	}
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}
	if req.Name != nil && *req.Name == "" {
		return domain.Product{}, invalidField("name", "is required")
	}

	patch := domain.ProductPatch{Name: req.Name, Quantity: req.Quantity}
	if req.Price != nil {
		price, err := normalizePrice(*req.Price)
		if err != nil {
			return domain.Product{}, err
		}
		patch.Price = &price
	}

	saved, err := s.repo.UpdateProduct(ctx, strings.TrimSpace(id), patch)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "product.update", "product", saved.ID, fmt.Sprintf("name=%s,price=%s,quantity=%d", saved.Name, saved.Price.StringFixed(2), saved.Quantity))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "product.delete", "product", id, "")
	return nil
}

func normalizePrice(price decimal.Decimal) (decimal.Decimal, error) {
	price = price.Round(2)
	if !price.IsPositive() {
		return decimal.Decimal{}, invalidField("price", "must be greater than 0")
	}
	if price.GreaterThan(store.MaxAmount) {
		return decimal.Decimal{}, invalidField("price", "is too large")
	}
	return price, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return domain.Customer{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.check(req); err != nil {
		return domain.Customer{}, err
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:  req.Name,
		Phone: req.Phone,
		Email: req.Email,
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer.create", "customer", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return domain.Customer{}, err
	}

	req.Name = trimmed(req.Name)
	req.Phone = trimmed(req.Phone)
	req.Email = trimmed(req.Email)
	if err := s.check(req); err != nil {
		return domain.Customer{}, err
	}
	if req.Name != nil && *req.Name == "" {
		return domain.Customer{}, invalidField("name", "is required")
	}

	existing, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = *req.Name
	}
	if req.Phone != nil {
		updated.Phone = *req.Phone
	}
	if req.Email != nil {
		updated.Email = *req.Email
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "customer.update", "customer", saved.ID, "name="+saved.Name)
	return *saved, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "customer.delete", "customer", id, "")
	return nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
