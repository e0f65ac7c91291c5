package service

import (
	"context"
	"log/slog"

	"crypto-content-gate/internal/catalog"
	"crypto-content-gate/internal/dto"
	"crypto-content-gate/internal/repository"
)

// AdminService is the read-mostly surface for the admin layer: ledger
// statistics and catalog snapshot replacement. Catalog content itself is
// edited out-of-band; reload just swaps in the new file atomically.
type AdminService interface {
	Stats(ctx context.Context) (*dto.StatsResponse, error)
	ReloadCatalog(ctx context.Context) error
}

type adminServiceImpl struct {
	statsRepo    repository.StatsRepository
	catalogStore *catalog.Store
	logger       *slog.Logger
}

func NewAdminService(statsRepo repository.StatsRepository, catalogStore *catalog.Store, logger *slog.Logger) AdminService {
	return &adminServiceImpl{
		statsRepo:    statsRepo,
		catalogStore: catalogStore,
		logger:       logger,
	}
}

func (s *adminServiceImpl) Stats(ctx context.Context) (*dto.StatsResponse, error) {
	stats, err := s.statsRepo.Collect(ctx)
	if err != nil {
		return nil, err
	}

	return &dto.StatsResponse{
		TotalBuyers:  stats.TotalBuyers,
		TotalRevenue: stats.TotalRevenue,
		PackageSales: stats.PackageSales,
		StatusCounts: stats.StatusCounts,
	}, nil
}

func (s *adminServiceImpl) ReloadCatalog(ctx context.Context) error {
	if err := s.catalogStore.Reload(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "catalog snapshot replaced",
		"packages", len(s.catalogStore.Snapshot().Packages),
	)
	return nil
}
