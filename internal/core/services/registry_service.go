package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/SscSPs/movement_intake/internal/core/domain"
	portsrepo "github.com/SscSPs/movement_intake/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/movement_intake/internal/core/ports/services"
)

const registrySnapshotKey = "registry"

// registryService caches the registry snapshot. A snapshot is never mutated once built;
// a refresh replaces it, and callers keep whichever snapshot they were handed.
type registryService struct {
	BaseService
	loader portsrepo.RegistrySnapshotLoader
	cache  *expirable.LRU[string, *domain.Registry]
	loadMu sync.Mutex
}

// NewRegistryService creates a registry service caching snapshots for ttl.
func NewRegistryService(loader portsrepo.RegistrySnapshotLoader, ttl time.Duration) portssvc.RegistrySvc {
	return &registryService{
		loader: loader,
		cache:  expirable.NewLRU[string, *domain.Registry](1, nil, ttl),
	}
}

var _ portssvc.RegistrySvc = (*registryService)(nil)

func (s *registryService) Snapshot(ctx context.Context) (*domain.Registry, error) {
	if reg, ok := s.cache.Get(registrySnapshotKey); ok {
		return reg, nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if reg, ok := s.cache.Get(registrySnapshotKey); ok {
		return reg, nil
	}

	started := time.Now()
	reg, err := s.loader.LoadRegistry(ctx)
	if err != nil {
		s.LogError(ctx, err, "Failed to load registry snapshot")
		return nil, err
	}
	s.cache.Add(registrySnapshotKey, reg)
	s.LogDebug(ctx, "Registry snapshot loaded",
		slog.Int("suppliers", len(reg.Suppliers)),
		slog.Int("customers", len(reg.Customers)),
		slog.Duration("took", time.Since(started)))
	return reg, nil
}

func (s *registryService) Invalidate() {
	s.cache.Purge()
}
