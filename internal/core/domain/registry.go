package domain

import "strings"

// Company is a legal entity movements are recorded for.
type Company struct {
	CompanyID string `json:"companyID"`
	Name      string `json:"name"`
	VatNumber string `json:"vatNumber"`
}

// Core is a business unit inside a company.
type Core struct {
	CoreID    string `json:"coreID"`
	CompanyID string `json:"companyID"`
	Name      string `json:"name"`
}

// Resource is an internal resource (employee, vehicle...) owned by a company.
type Resource struct {
	ResourceID string `json:"resourceID"`
	CompanyID  string `json:"companyID"`
	Name       string `json:"name"`
}

// Office is a physical site of a company.
type Office struct {
	OfficeID  string `json:"officeID"`
	CompanyID string `json:"companyID"`
	Name      string `json:"name"`
}

// Iban is a bank account owned by a company.
type Iban struct {
	IbanID    string `json:"ibanID"`
	CompanyID string `json:"companyID"`
	Iban      string `json:"iban"`
	BankName  string `json:"bankName"`
}

// Reason is a movement causal (rent, salaries, sales...).
type Reason struct {
	ReasonID string `json:"reasonID"`
	Name     string `json:"name"`
}

// Status is a movement workflow status (paid, to pay...).
type Status struct {
	StatusID string `json:"statusID"`
	Name     string `json:"name"`
}

// Tag is a free classification label.
type Tag struct {
	TagID string `json:"tagID"`
	Name  string `json:"name"`
}

// Party is a counterparty the entity resolver can match a document against.
type Party interface {
	PartyID() string
	DisplayName() string
	PartyVatNumber() string
}

// Supplier is a vendor movements can be paid to.
type Supplier struct {
	SupplierID string `json:"supplierID"`
	Name       string `json:"name"`
	VatNumber  string `json:"vatNumber"`
	TaxCode    string `json:"taxCode"`
}

func (s Supplier) PartyID() string        { return s.SupplierID }
func (s Supplier) DisplayName() string    { return strings.TrimSpace(s.Name) }
func (s Supplier) PartyVatNumber() string { return s.VatNumber }

// CustomerKind distinguishes private individuals from businesses.
type CustomerKind string

const (
	CustomerPrivate  CustomerKind = "private"
	CustomerBusiness CustomerKind = "business"
)

// Customer is a client movements can be received from.
type Customer struct {
	CustomerID  string       `json:"customerID"`
	Kind        CustomerKind `json:"kind"`
	CompanyName string       `json:"companyName"`
	FirstName   string       `json:"firstName"`
	LastName    string       `json:"lastName"`
	VatNumber   string       `json:"vatNumber"`
	TaxCode     string       `json:"taxCode"`
}

func (c Customer) PartyID() string        { return c.CustomerID }
func (c Customer) PartyVatNumber() string { return c.VatNumber }

// DisplayName is the company name for businesses and "first last" for private customers.
func (c Customer) DisplayName() string {
	if c.Kind == CustomerPrivate {
		return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
	}
	return strings.TrimSpace(c.CompanyName)
}

// Registry is a read-only snapshot of every entity a draft can reference.
// Build it with NewRegistry so the lookup indexes are populated.
type Registry struct {
	Companies []Company
	Cores     []Core
	Resources []Resource
	Offices   []Office
	Ibans     []Iban
	Suppliers []Supplier
	Customers []Customer
	Reasons   []Reason
	Statuses  []Status
	Tags      []Tag

	owners map[Field]map[string]string // company-scoped field -> id -> companyID
	known  map[Field]map[string]struct{}
}

// NewRegistry indexes the given entity lists.
func NewRegistry(r Registry) *Registry {
	reg := r
	reg.owners = map[Field]map[string]string{
		FieldCore:     {},
		FieldResource: {},
		FieldOffice:   {},
		FieldIban:     {},
	}
	reg.known = map[Field]map[string]struct{}{}
	mark := func(f Field, id string) {
		if reg.known[f] == nil {
			reg.known[f] = map[string]struct{}{}
		}
		reg.known[f][id] = struct{}{}
	}

	for _, c := range reg.Companies {
		mark(FieldCompany, c.CompanyID)
	}
	for _, c := range reg.Cores {
		reg.owners[FieldCore][c.CoreID] = c.CompanyID
		mark(FieldCore, c.CoreID)
	}
	for _, r := range reg.Resources {
		reg.owners[FieldResource][r.ResourceID] = r.CompanyID
		mark(FieldResource, r.ResourceID)
	}
	for _, o := range reg.Offices {
		reg.owners[FieldOffice][o.OfficeID] = o.CompanyID
		mark(FieldOffice, o.OfficeID)
	}
	for _, i := range reg.Ibans {
		reg.owners[FieldIban][i.IbanID] = i.CompanyID
		mark(FieldIban, i.IbanID)
	}
	for _, s := range reg.Suppliers {
		mark(FieldSupplier, s.SupplierID)
	}
	for _, c := range reg.Customers {
		mark(FieldCustomer, c.CustomerID)
	}
	for _, r := range reg.Reasons {
		mark(FieldReason, r.ReasonID)
	}
	for _, s := range reg.Statuses {
		mark(FieldStatus, s.StatusID)
	}
	for _, t := range reg.Tags {
		mark(FieldTag, t.TagID)
	}
	return &reg
}

// OwnerOf returns the company a company-scoped reference belongs to.
// ok is false when the snapshot does not know the id.
func (r *Registry) OwnerOf(f Field, id string) (companyID string, ok bool) {
	if r == nil || r.owners == nil {
		return "", false
	}
	byID, scoped := r.owners[f]
	if !scoped {
		return "", false
	}
	companyID, ok = byID[id]
	return companyID, ok
}

// Knows reports whether the snapshot contains id for the reference field f.
// Fields the registry does not index (free text, dates) are never known.
func (r *Registry) Knows(f Field, id string) bool {
	if r == nil || r.known == nil {
		return false
	}
	_, ok := r.known[f][id]
	return ok
}

// Indexes reports whether the snapshot holds a lookup table for f.
func (r *Registry) Indexes(f Field) bool {
	switch f {
	case FieldCompany, FieldCore, FieldResource, FieldOffice, FieldIban,
		FieldSupplier, FieldCustomer, FieldReason, FieldStatus, FieldTag:
		return r != nil && r.known != nil
	}
	return false
}

// Company returns the company with the given id.
func (r *Registry) Company(id string) (Company, bool) {
	if r == nil {
		return Company{}, false
	}
	for _, c := range r.Companies {
		if c.CompanyID == id {
			return c, true
		}
	}
	return Company{}, false
}
