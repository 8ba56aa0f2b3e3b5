package accounting

import (
	"github.com/SscSPs/movement_intake/internal/core/domain"
	"github.com/shopspring/decimal"
)

// VatBreakdown splits a gross amount into its taxable base and VAT portion.
type VatBreakdown struct {
	Net decimal.Decimal
	VAT decimal.Decimal
}

var one = decimal.NewFromInt(1)

// VatRate returns the inclusive rate for a VAT code as a fraction (0.22 for iva_22).
// Unknown codes, exemptions and art. 74 operations carry no VAT.
func VatRate(code domain.VatCode) decimal.Decimal {
	switch code {
	case domain.Vat22:
		return decimal.RequireFromString("0.22")
	case domain.Vat10:
		return decimal.RequireFromString("0.10")
	case domain.Vat4:
		return decimal.RequireFromString("0.04")
	default:
		return decimal.Zero
	}
}

// VatCodeForPercent maps a VAT percentage (22, 10, 4, 0) to its code.
// ok is false for percentages outside the enumeration.
func VatCodeForPercent(percent decimal.Decimal) (domain.VatCode, bool) {
	switch {
	case percent.Equal(decimal.NewFromInt(22)):
		return domain.Vat22, true
	case percent.Equal(decimal.NewFromInt(10)):
		return domain.Vat10, true
	case percent.Equal(decimal.NewFromInt(4)):
		return domain.Vat4, true
	case percent.IsZero():
		return domain.VatExempt, true
	}
	return "", false
}

// ComputeVAT splits a VAT-inclusive gross amount: vat = gross * rate / (1 + rate), net = gross - vat.
// The VAT is rounded half-up to cents once, at the end, and net takes the remainder so the two
// parts add up to a cent-precise gross. A non-positive gross is not yet computable and yields
// zero for both.
func ComputeVAT(gross decimal.Decimal, code domain.VatCode) VatBreakdown {
	if !gross.IsPositive() {
		return VatBreakdown{Net: decimal.Zero, VAT: decimal.Zero}
	}
	rate := VatRate(code)
	// DivRound keeps enough precision that the single final rounding decides the cents.
	vat := gross.Mul(rate).DivRound(one.Add(rate), 16).Round(2)
	return VatBreakdown{
		Net: gross.Sub(vat).Round(2),
		VAT: vat,
	}
}
