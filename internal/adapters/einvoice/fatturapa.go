// Package einvoice parses Italian FatturaPA electronic invoices.
package einvoice

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"github.com/SscSPs/movement_intake/internal/core/domain"
)

// ErrNotAnInvoice is returned for well-formed XML that is not a FatturaPA document.
var ErrNotAnInvoice = errors.New("document is not a FatturaPA invoice")

type fattura struct {
	XMLName xml.Name   `xml:"FatturaElettronica"`
	Header  header     `xml:"FatturaElettronicaHeader"`
	Bodies  []bodyPart `xml:"FatturaElettronicaBody"`
}

type header struct {
	Supplier party `xml:"CedentePrestatore"`
	Customer party `xml:"CessionarioCommittente"`
}

type party struct {
	IdPaese       string `xml:"DatiAnagrafici>IdFiscaleIVA>IdPaese"`
	IdCodice      string `xml:"DatiAnagrafici>IdFiscaleIVA>IdCodice"`
	CodiceFiscale string `xml:"DatiAnagrafici>CodiceFiscale"`
	Denominazione string `xml:"DatiAnagrafici>Anagrafica>Denominazione"`
	Nome          string `xml:"DatiAnagrafici>Anagrafica>Nome"`
	Cognome       string `xml:"DatiAnagrafici>Anagrafica>Cognome"`
	Sede          sede   `xml:"Sede"`
}

type sede struct {
	Indirizzo    string `xml:"Indirizzo"`
	NumeroCivico string `xml:"NumeroCivico"`
	CAP          string `xml:"CAP"`
	Comune       string `xml:"Comune"`
	Provincia    string `xml:"Provincia"`
	Nazione      string `xml:"Nazione"`
}

type bodyPart struct {
	Documento documento   `xml:"DatiGenerali>DatiGeneraliDocumento"`
	Linee     []linea     `xml:"DatiBeniServizi>DettaglioLinee"`
	Riepilogo []riepilogo `xml:"DatiBeniServizi>DatiRiepilogo"`
}

type documento struct {
	TipoDocumento          string   `xml:"TipoDocumento"`
	Divisa                 string   `xml:"Divisa"`
	Data                   string   `xml:"Data"`
	Numero                 string   `xml:"Numero"`
	ImportoTotaleDocumento string   `xml:"ImportoTotaleDocumento"`
	Causale                []string `xml:"Causale"`
}

type linea struct {
	NumeroLinea    int    `xml:"NumeroLinea"`
	Descrizione    string `xml:"Descrizione"`
	Quantita       string `xml:"Quantita"`
	PrezzoUnitario string `xml:"PrezzoUnitario"`
	PrezzoTotale   string `xml:"PrezzoTotale"`
	AliquotaIVA    string `xml:"AliquotaIVA"`
}

type riepilogo struct {
	AliquotaIVA       string `xml:"AliquotaIVA"`
	ImponibileImporto string `xml:"ImponibileImporto"`
	Imposta           string `xml:"Imposta"`
}

// Parser decodes FatturaPA XML into domain.ElectronicInvoice.
type Parser struct{}

// NewParser returns a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse implements the InvoiceParser port. Only the first invoice body of a batch is read.
func (p *Parser) Parse(ctx context.Context, content []byte) (*domain.ElectronicInvoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var doc fattura
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.CharsetReader = charsetReader
	if err := dec.Decode(&doc); err != nil {
		var unexpected xml.UnmarshalError
		if errors.As(err, &unexpected) {
			return nil, fmt.Errorf("%w: %v", ErrNotAnInvoice, err)
		}
		return nil, fmt.Errorf("decode invoice XML: %w", err)
	}
	if len(doc.Bodies) == 0 {
		return nil, fmt.Errorf("%w: no FatturaElettronicaBody", ErrNotAnInvoice)
	}
	body := doc.Bodies[0]

	inv := &domain.ElectronicInvoice{
		Supplier: doc.Header.Supplier.candidate(),
		Customer: doc.Header.Customer.candidate(),
	}

	h := &inv.Invoice
	h.DocumentType = strings.TrimSpace(body.Documento.TipoDocumento)
	h.DocumentNumber = strings.TrimSpace(body.Documento.Numero)
	h.Currency = strings.TrimSpace(body.Documento.Divisa)
	h.Description = strings.TrimSpace(strings.Join(body.Documento.Causale, " "))
	if raw := strings.TrimSpace(body.Documento.Data); raw != "" {
		date, err := time.Parse(domain.DateLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid invoice date %q: %w", raw, err)
		}
		h.Date = date
	}

	var err error
	if h.TotalAmount, err = nullDecimal(body.Documento.ImportoTotaleDocumento); err != nil {
		return nil, fmt.Errorf("invalid ImportoTotaleDocumento: %w", err)
	}

	if len(body.Riepilogo) > 0 {
		net, vat := decimal.Zero, decimal.Zero
		seen := map[string]bool{}
		for _, r := range body.Riepilogo {
			base, err := decimal.NewFromString(strings.TrimSpace(r.ImponibileImporto))
			if err != nil {
				return nil, fmt.Errorf("invalid ImponibileImporto %q: %w", r.ImponibileImporto, err)
			}
			tax := decimal.Zero
			if s := strings.TrimSpace(r.Imposta); s != "" {
				if tax, err = decimal.NewFromString(s); err != nil {
					return nil, fmt.Errorf("invalid Imposta %q: %w", r.Imposta, err)
				}
			}
			net = net.Add(base)
			vat = vat.Add(tax)

			rate, err := decimal.NewFromString(strings.TrimSpace(r.AliquotaIVA))
			if err != nil {
				return nil, fmt.Errorf("invalid AliquotaIVA %q: %w", r.AliquotaIVA, err)
			}
			if key := rate.StringFixed(2); !seen[key] {
				seen[key] = true
				h.VatRates = append(h.VatRates, rate)
			}
		}
		h.NetAmount = decimal.NewNullDecimal(net)
		h.VatAmount = decimal.NewNullDecimal(vat)
	}

	for _, l := range body.Linee {
		line := domain.InvoiceLine{Number: l.NumeroLinea, Description: strings.TrimSpace(l.Descrizione)}
		line.Quantity = decimalOrZero(l.Quantita)
		line.UnitPrice = decimalOrZero(l.PrezzoUnitario)
		line.Total = decimalOrZero(l.PrezzoTotale)
		line.VatRate = decimalOrZero(l.AliquotaIVA)
		inv.Lines = append(inv.Lines, line)
	}

	return inv, nil
}

func (p party) candidate() domain.EntityCandidate {
	name := strings.TrimSpace(p.Denominazione)
	if name == "" {
		name = strings.TrimSpace(strings.TrimSpace(p.Nome) + " " + strings.TrimSpace(p.Cognome))
	}
	return domain.EntityCandidate{
		Name:      name,
		VatNumber: strings.TrimSpace(p.IdCodice),
		TaxCode:   strings.TrimSpace(p.CodiceFiscale),
		Address:   p.Sede.line(),
	}
}

func (s sede) line() string {
	street := strings.TrimSpace(strings.TrimSpace(s.Indirizzo) + " " + strings.TrimSpace(s.NumeroCivico))
	city := strings.TrimSpace(strings.TrimSpace(s.CAP) + " " + strings.TrimSpace(s.Comune))
	if prov := strings.TrimSpace(s.Provincia); prov != "" {
		city += " (" + prov + ")"
	}
	var parts []string
	for _, part := range []string{street, strings.TrimSpace(city), strings.TrimSpace(s.Nazione)} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}

func nullDecimal(raw string) (decimal.NullDecimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func decimalOrZero(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// charsetReader accepts the ISO-8859-1 and windows-1252 declarations some invoicing software emits.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	}
	return nil, fmt.Errorf("unsupported charset %q", charset)
}
