package repository

import (
	"context"
	"crypto-content-gate/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Stats is the read-only aggregate view exposed to the admin layer.
type Stats struct {
	TotalBuyers  int64
	TotalRevenue decimal.Decimal
	PackageSales map[string]int64
	StatusCounts map[string]int64
}

type StatsRepository interface {
	Collect(ctx context.Context) (*Stats, error)
}

type statsRepoImpl struct {
	db *gorm.DB
}

func NewStatsRepository(db *gorm.DB) StatsRepository {
	return &statsRepoImpl{
		db: db,
	}
}

func (r *statsRepoImpl) Collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		TotalRevenue: decimal.Zero,
		PackageSales: make(map[string]int64),
		StatusCounts: make(map[string]int64),
	}

	err := r.db.WithContext(ctx).Model(&model.FulfillmentRecord{}).
		Distinct("buyer_id").
		Count(&stats.TotalBuyers).Error
	if err != nil {
		return nil, err
	}

	var revenue decimal.NullDecimal
	err = r.db.WithContext(ctx).Model(&model.FulfillmentRecord{}).
		Select("SUM(amount)").
		Scan(&revenue).Error
	if err != nil {
		return nil, err
	}
	if revenue.Valid {
		stats.TotalRevenue = revenue.Decimal
	}

	var sales []struct {
		PackageID string
		Count     int64
	}
	err = r.db.WithContext(ctx).Model(&model.FulfillmentRecord{}).
		Select("package_id, COUNT(*) as count").
		Group("package_id").
		Scan(&sales).Error
	if err != nil {
		return nil, err
	}
	for _, s := range sales {
		stats.PackageSales[s.PackageID] = s.Count
	}

	var counts []struct {
		Status string
		Count  int64
	}
	err = r.db.WithContext(ctx).Model(&model.PaymentIntent{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	for _, c := range counts {
		stats.StatusCounts[c.Status] = c.Count
	}

	return stats, nil
}
