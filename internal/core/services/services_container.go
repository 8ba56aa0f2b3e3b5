package services

import (
	portsrepo "github.com/SscSPs/movement_intake/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/movement_intake/internal/core/ports/services"
	"github.com/SscSPs/movement_intake/internal/platform/config"
)

// NewServiceContainer creates a new service container with properly initialized dependencies.
// Collaborators that are optional for the draft service (analyzer, parser, observer) come in as options.
func NewServiceContainer(cfg *config.Config, repos portsrepo.RepositoryProvider, storage portssvc.DocumentStorage, opts ...DraftServiceOption) *portssvc.ServiceContainer {
	// Initialize the registry service first since the draft service depends on it
	registry := NewRegistryService(repos.RegistryRepo, cfg.RegistryCacheTTL)

	draftOpts := []DraftServiceOption{
		WithDraftCache(cfg.DraftTTL, cfg.DraftCacheSize),
		WithAnalysisTimeout(cfg.AnalysisTimeout),
	}
	draftOpts = append(draftOpts, opts...)

	return &portssvc.ServiceContainer{
		Draft:    NewDraftService(registry, repos.MovementRepo, storage, draftOpts...),
		Registry: registry,
	}
}

// Helper to check interface implementations at compile time
var (
	_ portssvc.DraftSvcFacade = (*DraftService)(nil)
	_ portssvc.RegistrySvc    = (*registryService)(nil)
)
