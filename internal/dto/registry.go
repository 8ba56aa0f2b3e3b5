package dto

import "github.com/SscSPs/movement_intake/internal/core/domain"

// RegistryResponse lists the entities a draft can reference, for selection widgets.
type RegistryResponse struct {
	Companies []domain.Company  `json:"companies"`
	Cores     []domain.Core     `json:"cores"`
	Resources []domain.Resource `json:"resources"`
	Offices   []domain.Office   `json:"offices"`
	Ibans     []domain.Iban     `json:"ibans"`
	Suppliers []domain.Supplier `json:"suppliers"`
	Customers []domain.Customer `json:"customers"`
	Reasons   []domain.Reason   `json:"reasons"`
	Statuses  []domain.Status   `json:"statuses"`
	Tags      []domain.Tag      `json:"tags"`
}

// ToRegistryResponse converts a registry snapshot. A non-empty companyID restricts the
// company-scoped lists (cores, resources, offices, ibans) to that company.
func ToRegistryResponse(reg *domain.Registry, companyID string) RegistryResponse {
	return RegistryResponse{
		Companies: nonNil(reg.Companies),
		Cores:     scoped(reg.Cores, companyID, func(c domain.Core) string { return c.CompanyID }),
		Resources: scoped(reg.Resources, companyID, func(r domain.Resource) string { return r.CompanyID }),
		Offices:   scoped(reg.Offices, companyID, func(o domain.Office) string { return o.CompanyID }),
		Ibans:     scoped(reg.Ibans, companyID, func(i domain.Iban) string { return i.CompanyID }),
		Suppliers: nonNil(reg.Suppliers),
		Customers: nonNil(reg.Customers),
		Reasons:   nonNil(reg.Reasons),
		Statuses:  nonNil(reg.Statuses),
		Tags:      nonNil(reg.Tags),
	}
}

func scoped[T any](items []T, companyID string, owner func(T) string) []T {
	if companyID == "" {
		return nonNil(items)
	}
	out := []T{}
	for _, item := range items {
		if owner(item) == companyID {
			out = append(out, item)
		}
	}
	return out
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
