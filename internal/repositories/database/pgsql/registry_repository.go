package pgsql

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/SscSPs/movement_intake/internal/apperrors"
	"github.com/SscSPs/movement_intake/internal/core/domain"
	portsrepo "github.com/SscSPs/movement_intake/internal/core/ports/repositories"
)

type PgxRegistryRepository struct {
	BaseRepository
}

// newPgxRegistryRepository creates a new repository for the entity registries.
func newPgxRegistryRepository(pool *pgxpool.Pool) portsrepo.RegistryRepositoryFacade {
	return &PgxRegistryRepository{BaseRepository: BaseRepository{Pool: pool}}
}

// Ensure PgxRegistryRepository implements portsrepo.RegistryRepositoryFacade
var _ portsrepo.RegistryRepositoryFacade = (*PgxRegistryRepository)(nil)

// listRows runs query and collects one T per row using scan.
func listRows[T any](ctx context.Context, pool *pgxpool.Pool, what, query string, scan func(pgx.Row, *T) error) ([]T, error) {
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to list "+what, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (T, error) {
		var item T
		err := scan(row, &item)
		return item, err
	})
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to scan "+what, err)
	}
	return out, nil
}

func (r *PgxRegistryRepository) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	return listRows(ctx, r.Pool, "companies",
		`SELECT company_id, name, COALESCE(vat_number, '') FROM companies WHERE is_active ORDER BY name;`,
		func(row pgx.Row, c *domain.Company) error { return row.Scan(&c.CompanyID, &c.Name, &c.VatNumber) })
}

func (r *PgxRegistryRepository) ListCores(ctx context.Context) ([]domain.Core, error) {
	return listRows(ctx, r.Pool, "cores",
		`SELECT core_id, company_id, name FROM cores WHERE is_active ORDER BY name;`,
		func(row pgx.Row, c *domain.Core) error { return row.Scan(&c.CoreID, &c.CompanyID, &c.Name) })
}

func (r *PgxRegistryRepository) ListResources(ctx context.Context) ([]domain.Resource, error) {
	return listRows(ctx, r.Pool, "resources",
		`SELECT resource_id, company_id, name FROM resources WHERE is_active ORDER BY name;`,
		func(row pgx.Row, res *domain.Resource) error { return row.Scan(&res.ResourceID, &res.CompanyID, &res.Name) })
}

func (r *PgxRegistryRepository) ListOffices(ctx context.Context) ([]domain.Office, error) {
	return listRows(ctx, r.Pool, "offices",
		`SELECT office_id, company_id, name FROM offices WHERE is_active ORDER BY name;`,
		func(row pgx.Row, o *domain.Office) error { return row.Scan(&o.OfficeID, &o.CompanyID, &o.Name) })
}

func (r *PgxRegistryRepository) ListIbans(ctx context.Context) ([]domain.Iban, error) {
	return listRows(ctx, r.Pool, "ibans",
		`SELECT iban_id, company_id, iban, COALESCE(bank_name, '') FROM ibans WHERE is_active ORDER BY iban;`,
		func(row pgx.Row, i *domain.Iban) error { return row.Scan(&i.IbanID, &i.CompanyID, &i.Iban, &i.BankName) })
}

func (r *PgxRegistryRepository) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return listRows(ctx, r.Pool, "suppliers",
		`SELECT supplier_id, name, COALESCE(vat_number, ''), COALESCE(tax_code, '') FROM suppliers WHERE is_active ORDER BY name;`,
		func(row pgx.Row, s *domain.Supplier) error {
			return row.Scan(&s.SupplierID, &s.Name, &s.VatNumber, &s.TaxCode)
		})
}

func (r *PgxRegistryRepository) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return listRows(ctx, r.Pool, "customers",
		`SELECT customer_id, kind, COALESCE(company_name, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
		        COALESCE(vat_number, ''), COALESCE(tax_code, '')
		 FROM customers WHERE is_active ORDER BY customer_id;`,
		func(row pgx.Row, c *domain.Customer) error {
			return row.Scan(&c.CustomerID, &c.Kind, &c.CompanyName, &c.FirstName, &c.LastName, &c.VatNumber, &c.TaxCode)
		})
}

func (r *PgxRegistryRepository) ListReasons(ctx context.Context) ([]domain.Reason, error) {
	return listRows(ctx, r.Pool, "reasons",
		`SELECT reason_id, name FROM reasons ORDER BY name;`,
		func(row pgx.Row, res *domain.Reason) error { return row.Scan(&res.ReasonID, &res.Name) })
}

func (r *PgxRegistryRepository) ListStatuses(ctx context.Context) ([]domain.Status, error) {
	return listRows(ctx, r.Pool, "statuses",
		`SELECT status_id, name FROM statuses ORDER BY name;`,
		func(row pgx.Row, s *domain.Status) error { return row.Scan(&s.StatusID, &s.Name) })
}

func (r *PgxRegistryRepository) ListTags(ctx context.Context) ([]domain.Tag, error) {
	return listRows(ctx, r.Pool, "tags",
		`SELECT tag_id, name FROM tags ORDER BY name;`,
		func(row pgx.Row, t *domain.Tag) error { return row.Scan(&t.TagID, &t.Name) })
}

// LoadRegistry reads every registry list concurrently and indexes them into one snapshot.
func (r *PgxRegistryRepository) LoadRegistry(ctx context.Context) (*domain.Registry, error) {
	var snap domain.Registry
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) { snap.Companies, err = r.ListCompanies(gctx); return })
	g.Go(func() (err error) { snap.Cores, err = r.ListCores(gctx); return })
	g.Go(func() (err error) { snap.Resources, err = r.ListResources(gctx); return })
	g.Go(func() (err error) { snap.Offices, err = r.ListOffices(gctx); return })
	g.Go(func() (err error) { snap.Ibans, err = r.ListIbans(gctx); return })
	g.Go(func() (err error) { snap.Suppliers, err = r.ListSuppliers(gctx); return })
	g.Go(func() (err error) { snap.Customers, err = r.ListCustomers(gctx); return })
	g.Go(func() (err error) { snap.Reasons, err = r.ListReasons(gctx); return })
	g.Go(func() (err error) { snap.Statuses, err = r.ListStatuses(gctx); return })
	g.Go(func() (err error) { snap.Tags, err = r.ListTags(gctx); return })

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return domain.NewRegistry(snap), nil
}
