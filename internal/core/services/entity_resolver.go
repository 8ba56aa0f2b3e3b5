package services

import (
	"strings"
	"unicode"

	"github.com/SscSPs/movement_intake/internal/core/domain"
)

// ResolveEntity matches a document party against a registry snapshot.
//
// A VAT number equal to the candidate's (case-insensitive, whitespace ignored) is an exact
// match and always wins over a name match anywhere in the registry. Otherwise the first entry
// whose display name contains the candidate name, case-insensitively, is a fuzzy match.
func ResolveEntity[P domain.Party](candidate domain.EntityCandidate, registry []P) domain.EntityResolution {
	if vat := normalizeVatNumber(candidate.VatNumber); vat != "" {
		for _, p := range registry {
			if normalizeVatNumber(p.PartyVatNumber()) == vat {
				return domain.EntityResolution{MatchedID: p.PartyID(), MatchConfidence: domain.MatchExact}
			}
		}
	}

	if name := strings.ToLower(strings.TrimSpace(candidate.Name)); name != "" {
		for _, p := range registry {
			if strings.Contains(strings.ToLower(p.DisplayName()), name) {
				return domain.EntityResolution{MatchedID: p.PartyID(), MatchConfidence: domain.MatchFuzzy}
			}
		}
	}

	return domain.EntityResolution{MatchConfidence: domain.MatchNone}
}

func normalizeVatNumber(v string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, v)
}
