package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"tradeledger/backend/internal/domain"
	"tradeledger/backend/internal/store"
	"tradeledger/backend/internal/xid"
)

// RecordSale sells req.Quantity units of a product to a customer. Pricing,
// the stock check and the decrement happen atomically in the repository.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return domain.Sale{}, err
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if err := s.check(req); err != nil {
		return domain.Sale{}, err
	}

	sale, err := s.repo.RecordSale(ctx, domain.SaleDraft{
		ID:         xid.New("sale"),
		ProductID:  req.ProductID,
		CustomerID: req.CustomerID,
		Quantity:   req.Quantity,
		SoldAt:     s.now(),
	})
	if errors.Is(err, store.ErrAmountOutOfRange) {
		return domain.Sale{}, invalidField("quantity", "sale total exceeds the maximum amount")
	}
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale.create", "sale", sale.ID, fmt.Sprintf("product=%s,customer=%s,quantity=%d,total=%s", sale.ProductID, sale.CustomerID, sale.Quantity, sale.TotalPrice.StringFixed(2)))
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListSales(ctx, limit)
}

// BuildReport summarizes sales between two calendar dates, both inclusive.
// Windows that closed before today are immutable apart from display names,
// so their summaries are cached.
func (s *Service) BuildReport(ctx context.Context, req domain.ReportRequest) (domain.ReportSummary, error) {
	start, err := parseReportDate("start_date", req.StartDate)
	if err != nil {
		return domain.ReportSummary{}, err
	}
	endDay, err := parseReportDate("end_date", req.EndDate)
	if err != nil {
		return domain.ReportSummary{}, err
	}
	if start.After(endDay) {
		return domain.ReportSummary{}, invalidField("start_date", "must not be after end_date")
	}
	end := endDay.Add(24*time.Hour - time.Nanosecond)

	cacheable := endDay.Before(startOfDay(s.now()))
	cacheKey := start.Format(domain.DateLayout) + ":" + endDay.Format(domain.DateLayout)
	var gen int64
	if cacheable {
		cached, g, ok, err := s.reports.Get(ctx, cacheKey)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("key", cacheKey).Msg("report cache read failed")
			cacheable = false
		case ok:
			return *cached, nil
		}
		gen = g
	}

	sales, err := s.repo.ListSalesBetween(ctx, start, end)
	if err != nil {
		return domain.ReportSummary{}, err
	}

	summary := summarize(sales)
	summary.StartDate = start.Format(domain.DateLayout)
	summary.EndDate = endDay.Format(domain.DateLayout)

	if cacheable {
		if err := s.reports.Set(ctx, gen, cacheKey, &summary, s.reportTTL); err != nil {
			log.Warn().Err(err).Str("key", cacheKey).Msg("report cache write failed")
		}
	}
	return summary, nil
}

// summarize folds sales into totals and a per-product breakdown keyed by
// product name.
func summarize(sales []domain.Sale) domain.ReportSummary {
	summary := domain.ReportSummary{
		Sales:        sales,
		TotalSales:   len(sales),
		TotalRevenue: decimal.Zero,
		ProductStats: make(map[string]domain.ProductStat),
	}
	if summary.Sales == nil {
		summary.Sales = []domain.Sale{}
	}

	for _, sale := range sales {
		summary.TotalRevenue = summary.TotalRevenue.Add(sale.TotalPrice)

		stat, ok := summary.ProductStats[sale.ProductName]
		if !ok {
			stat.Revenue = decimal.Zero
		}
		stat.Quantity += sale.Quantity
		stat.Revenue = stat.Revenue.Add(sale.TotalPrice)
		summary.ProductStats[sale.ProductName] = stat
	}
	return summary
}

func parseReportDate(field string, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, invalidField(field, "is required")
	}
	parsed, err := time.Parse(domain.DateLayout, value)
	if err != nil {
		return time.Time{}, invalidField(field, "must use YYYY-MM-DD")
	}
	return parsed.UTC(), nil
}
