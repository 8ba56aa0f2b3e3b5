package repositories

import (
	"context"

	"github.com/SscSPs/movement_intake/internal/core/domain"
)

// RegistryReader loads the entity lists a draft can reference.
type RegistryReader interface {
	// ListCompanies returns every company.
	ListCompanies(ctx context.Context) ([]domain.Company, error)
	// ListCores returns every core of every company.
	ListCores(ctx context.Context) ([]domain.Core, error)
	// ListResources returns every resource of every company.
	ListResources(ctx context.Context) ([]domain.Resource, error)
	// ListOffices returns every office of every company.
	ListOffices(ctx context.Context) ([]domain.Office, error)
	// ListIbans returns every bank account of every company.
	ListIbans(ctx context.Context) ([]domain.Iban, error)
	// ListSuppliers returns the supplier registry.
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	// ListCustomers returns the customer registry.
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	// ListReasons returns the movement causals.
	ListReasons(ctx context.Context) ([]domain.Reason, error)
	// ListStatuses returns the movement statuses.
	ListStatuses(ctx context.Context) ([]domain.Status, error)
	// ListTags returns the classification tags.
	ListTags(ctx context.Context) ([]domain.Tag, error)
}

// RegistrySnapshotLoader builds a complete, indexed registry snapshot.
type RegistrySnapshotLoader interface {
	// LoadRegistry reads every list and returns them as one immutable snapshot.
	LoadRegistry(ctx context.Context) (*domain.Registry, error)
}

// RegistryRepositoryFacade combines all registry-related repository interfaces
type RegistryRepositoryFacade interface {
	RegistryReader
	RegistrySnapshotLoader
}
