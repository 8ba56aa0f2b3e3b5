package services

import "github.com/SscSPs/movement_intake/internal/core/domain"

// DependencyRule clears Dependents whenever Source changes and When (if set) holds
// for the draft as it stands after the change.
type DependencyRule struct {
	Source     domain.Field
	Dependents []domain.Field
	When       func(d *domain.MovementDraft) bool
}

// MovementDependencyRules is the static rule table for movement drafts. It must stay acyclic.
var MovementDependencyRules = []DependencyRule{
	{
		Source:     domain.FieldCompany,
		Dependents: []domain.Field{domain.FieldCore, domain.FieldResource, domain.FieldOffice, domain.FieldIban},
	},
	{
		Source:     domain.FieldType,
		Dependents: []domain.Field{domain.FieldSupplier},
		When:       func(d *domain.MovementDraft) bool { return d.Type == domain.Income },
	},
	{
		Source:     domain.FieldType,
		Dependents: []domain.Field{domain.FieldCustomer},
		When:       func(d *domain.MovementDraft) bool { return d.Type == domain.Expense },
	},
	{
		// entityType is re-evaluated on a type change: only a branch the new type forbids is dropped.
		Source:     domain.FieldType,
		Dependents: []domain.Field{domain.FieldEntityType},
		When:       entityTypeConflictsWithType,
	},
	{
		Source:     domain.FieldEntityType,
		Dependents: []domain.Field{domain.FieldCustomer, domain.FieldSupplier, domain.FieldResource},
	},
}

func entityTypeConflictsWithType(d *domain.MovementDraft) bool {
	return (d.Type == domain.Income && d.EntityType == domain.EntitySupplier) ||
		(d.Type == domain.Expense && d.EntityType == domain.EntityCustomer)
}

// DependencyGraph nulls out draft fields made invalid by a change upstream.
// It never fails and always terminates; clearing is idempotent.
type DependencyGraph struct {
	rules []DependencyRule
}

// NewDependencyGraph builds a graph over the given rules.
func NewDependencyGraph(rules []DependencyRule) *DependencyGraph {
	return &DependencyGraph{rules: rules}
}

// NewMovementDependencyGraph builds the graph for movement drafts.
func NewMovementDependencyGraph() *DependencyGraph {
	return NewDependencyGraph(MovementDependencyRules)
}

// Rules returns the rule table.
func (g *DependencyGraph) Rules() []DependencyRule {
	return g.rules
}

// Propagate runs the rules whose source is changed and cascades into every dependent it
// clears, then enforces the draft invariants. It returns the fields it cleared.
func (g *DependencyGraph) Propagate(d *domain.MovementDraft, changed domain.Field, reg *domain.Registry) []domain.Field {
	cleared := g.cascade(d, []domain.Field{changed})
	return append(cleared, g.EnforceInvariants(d, changed, reg)...)
}

func (g *DependencyGraph) cascade(d *domain.MovementDraft, queue []domain.Field) []domain.Field {
	var cleared []domain.Field
	for len(queue) > 0 {
		source := queue[0]
		queue = queue[1:]
		for _, rule := range g.rules {
			if rule.Source != source || (rule.When != nil && !rule.When(d)) {
				continue
			}
			for _, dep := range rule.Dependents {
				if d.IsEmpty(dep) {
					continue
				}
				d.Clear(dep)
				cleared = append(cleared, dep)
				queue = append(queue, dep)
			}
		}
	}
	return cleared
}

// EnforceInvariants restores the draft invariants after a write to lastWritten:
// customer XOR supplier, entity references consistent with type and entityType, and
// company-scoped references owned by the draft's company. Cleared fields cascade.
func (g *DependencyGraph) EnforceInvariants(d *domain.MovementDraft, lastWritten domain.Field, reg *domain.Registry) []domain.Field {
	var cleared []domain.Field
	drop := func(f domain.Field) {
		if d.IsEmpty(f) {
			return
		}
		d.Clear(f)
		cleared = append(cleared, f)
		cleared = append(cleared, g.cascade(d, []domain.Field{f})...)
	}

	// customer and supplier are mutually exclusive whatever flow wrote them.
	if d.CustomerID != "" && d.SupplierID != "" {
		drop(exclusionLoser(d, lastWritten))
	}

	switch d.Type {
	case domain.Income:
		drop(domain.FieldSupplier)
	case domain.Expense:
		drop(domain.FieldCustomer)
	}
	if entityTypeConflictsWithType(d) {
		drop(domain.FieldEntityType)
	}

	for _, ref := range []struct {
		field domain.Field
		kind  domain.EntityType
	}{
		{domain.FieldCustomer, domain.EntityCustomer},
		{domain.FieldSupplier, domain.EntitySupplier},
		{domain.FieldResource, domain.EntityResource},
	} {
		if d.IsEmpty(ref.field) || d.EntityType == ref.kind {
			continue
		}
		if d.EntityType == domain.EntityUnset {
			d.EntityType = ref.kind
			d.SetOrigin(domain.FieldEntityType, d.Origin(ref.field))
			continue
		}
		drop(ref.field)
	}

	for _, f := range domain.CompanyScopedFields {
		id := d.Get(f)
		if id == "" {
			continue
		}
		if d.CompanyID == "" {
			drop(f)
			continue
		}
		if owner, known := reg.OwnerOf(f, id); known && owner != d.CompanyID {
			drop(f)
		}
	}
	return cleared
}

// exclusionLoser picks which of customer/supplier to drop when both are set.
func exclusionLoser(d *domain.MovementDraft, lastWritten domain.Field) domain.Field {
	switch {
	case lastWritten == domain.FieldCustomer:
		return domain.FieldSupplier
	case lastWritten == domain.FieldSupplier:
		return domain.FieldCustomer
	case d.Type == domain.Income, d.EntityType == domain.EntityCustomer:
		return domain.FieldSupplier
	default:
		return domain.FieldCustomer
	}
}
