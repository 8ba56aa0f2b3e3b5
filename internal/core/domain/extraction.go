package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityCandidate is a party read from a document. It is consumed once by the resolver.
type EntityCandidate struct {
	Name      string `json:"name" jsonschema_description:"Legal or personal name of the party as printed on the document"`
	VatNumber string `json:"vatNumber" jsonschema_description:"VAT registration number without country prefix, empty if absent"`
	TaxCode   string `json:"taxCode" jsonschema_description:"Fiscal/tax code of the party, empty if absent"`
	Address   string `json:"address" jsonschema_description:"Postal address on a single line, empty if absent"`
}

// IsZero reports whether the candidate carries nothing to match on.
func (c EntityCandidate) IsZero() bool {
	return c.Name == "" && c.VatNumber == "" && c.TaxCode == ""
}

// MatchConfidence grades an entity resolution.
type MatchConfidence string

const (
	MatchExact MatchConfidence = "exact" // VAT number equality
	MatchFuzzy MatchConfidence = "fuzzy" // name substring, no VAT confirmation
	MatchNone  MatchConfidence = "none"
)

// EntityResolution is the verdict of resolving an EntityCandidate against a registry.
type EntityResolution struct {
	MatchedID       string          `json:"matchedId,omitempty"`
	MatchConfidence MatchConfidence `json:"matchConfidence"`
}

// Matched reports whether the resolution points at a registry entry.
func (r EntityResolution) Matched() bool {
	return r.MatchConfidence == MatchExact || r.MatchConfidence == MatchFuzzy
}

// ExtractionChannel names the ingestion channel that produced a result.
type ExtractionChannel string

const (
	ChannelStructured   ExtractionChannel = "structured"
	ChannelUnstructured ExtractionChannel = "unstructured"
)

// ExtractionResult is the normalized output of either ingestion channel.
// Its only implementations are *StructuredExtraction and *UnstructuredExtraction.
type ExtractionResult interface {
	Channel() ExtractionChannel
	isExtractionResult()
}

// StructuredExtraction wraps a parsed electronic invoice.
type StructuredExtraction struct {
	Invoice ElectronicInvoice
}

func (*StructuredExtraction) Channel() ExtractionChannel { return ChannelStructured }
func (*StructuredExtraction) isExtractionResult()        {}

// UnstructuredExtraction wraps the loosely typed key/value output of the AI analyzer.
type UnstructuredExtraction struct {
	Data AIExtraction
}

func (*UnstructuredExtraction) Channel() ExtractionChannel { return ChannelUnstructured }
func (*UnstructuredExtraction) isExtractionResult()        {}

// ElectronicInvoice is the strongly typed content of a structured e-invoice.
type ElectronicInvoice struct {
	Supplier EntityCandidate `json:"supplier"`
	Customer EntityCandidate `json:"customer"`
	Invoice  InvoiceHeader   `json:"invoice"`
	Lines    []InvoiceLine   `json:"lines"`
}

// InvoiceHeader carries the document-level totals of an e-invoice.
type InvoiceHeader struct {
	DocumentType   string              `json:"documentType"`
	DocumentNumber string              `json:"documentNumber"`
	Date           time.Time           `json:"date"`
	Currency       string              `json:"currency"`
	Description    string              `json:"description"`
	TotalAmount    decimal.NullDecimal `json:"totalAmount"`
	NetAmount      decimal.NullDecimal `json:"netAmount"`
	VatAmount      decimal.NullDecimal `json:"vatAmount"`
	// VatRates holds every distinct VAT percentage in the summary, e.g. 22.00.
	VatRates []decimal.Decimal `json:"vatRates"`
}

// InvoiceLine is a single e-invoice detail row.
type InvoiceLine struct {
	Number      int             `json:"number"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Total       decimal.Decimal `json:"total"`
	VatRate     decimal.Decimal `json:"vatRate"`
}

// AIExtraction is the contract the AI analyzer answers with. Every value is optional
// and kept as text; the merge step parses what it can.
type AIExtraction struct {
	Amount          string           `json:"amount" jsonschema_description:"Total amount paid including VAT, dot as decimal separator, empty if unknown"`
	Date            string           `json:"date" jsonschema_description:"Document or payment date in YYYY-MM-DD format, empty if unknown"`
	MovementType    string           `json:"movementType" jsonschema_description:"income if the document records money received, expense if money paid, empty if unclear"`
	Description     string           `json:"description" jsonschema_description:"Short description of what the document is about"`
	DocumentNumber  string           `json:"documentNumber" jsonschema_description:"Invoice or receipt number, empty if absent"`
	SupplierInfo    *EntityCandidate `json:"supplierInfo" jsonschema_description:"Issuer of the document when it is a purchase, empty fields if absent"`
	CustomerInfo    *EntityCandidate `json:"customerInfo" jsonschema_description:"Recipient of the document when it is a sale, empty fields if absent"`
	VatAmount       string           `json:"vatAmount" jsonschema_description:"VAT portion of the total, empty if unknown"`
	NetAmount       string           `json:"netAmount" jsonschema_description:"Taxable base excluding VAT, empty if unknown"`
	VatRate         string           `json:"vatRate" jsonschema_description:"VAT percentage such as 22, 10, 4 or 0, empty if unknown"`
	Confidence      float64          `json:"confidence" jsonschema_description:"Confidence score between 0.0 and 1.0"`
	ProcessingNotes string           `json:"processingNotes" jsonschema_description:"Free-text caveats about the extraction"`
}

// AnnotationKind classifies a read-only note attached to a draft by a merge.
type AnnotationKind string

const (
	AnnotationConfidence       AnnotationKind = "confidence"
	AnnotationProcessingNote   AnnotationKind = "processing_note"
	AnnotationEntitySuggestion AnnotationKind = "entity_suggestion"
	AnnotationFieldKept        AnnotationKind = "field_kept"
)

// Annotation is a human-readable extraction caveat. It is never a draft field value.
type Annotation struct {
	Kind       AnnotationKind    `json:"kind"`
	Message    string            `json:"message"`
	Field      Field             `json:"field,omitempty"`
	Confidence *float64          `json:"confidence,omitempty"`
	Suggestion *EntitySuggestion `json:"suggestion,omitempty"`
}

// EntitySuggestion proposes creating (or confirming) a counterparty found in a document.
type EntitySuggestion struct {
	EntityType EntityType       `json:"entityType"`
	Candidate  EntityCandidate  `json:"candidate"`
	Resolution EntityResolution `json:"resolution"`
}
