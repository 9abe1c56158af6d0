package normalize

import "strings"

// PhraseGroup is one disjunct of the opportunity keyword prefilter: the
// record matches when every phrase in some clause appears in its full text.
type PhraseGroup struct {
	Label   string
	Clauses [][]string
}

// OpportunityPatterns lists the financial-release phrase groups in labeling
// priority order. The same groups drive the storage-layer prefilter; the
// labels are display-only.
var OpportunityPatterns = []PhraseGroup{
	{Label: "mandado de levantamento", Clauses: [][]string{
		{"mandado de levantamento"},
	}},
	{Label: "alvará de levantamento", Clauses: [][]string{
		{"alvará", "levantamento"},
	}},
	{Label: "alvará de pagamento", Clauses: [][]string{
		{"alvará", "pagamento"},
	}},
	{Label: "expedição de precatório", Clauses: [][]string{
		{"expedição de precatório"},
		{"expedir precatório"},
	}},
	{Label: "precatório", Clauses: [][]string{
		{"precatório"},
	}},
	{Label: "rpv", Clauses: [][]string{
		{"requisição de pequeno valor"},
		{"rpv", "expedir"},
	}},
	{Label: "acordo homologado", Clauses: [][]string{
		{"homologação de acordo"},
		{"acordo homologado"},
	}},
	{Label: "desbloqueio", Clauses: [][]string{
		{"desbloqueio"},
		{"levantamento do bloqueio"},
		{"bloqueio levantado"},
	}},
	{Label: "ordem de pagamento", Clauses: [][]string{
		{"ordem de pagamento"},
	}},
}

// DetectPattern returns the label of the first phrase group the text matches,
// or a generic label when the prefilter matched in storage but no group can
// be pinned down here (the storage filter and this list are the same phrases,
// so that only happens for text mutated between the two passes).
func DetectPattern(text string) string {
	lower := strings.ToLower(text)
	for _, group := range OpportunityPatterns {
		for _, clause := range group.Clauses {
			if containsAll(lower, clause) {
				return group.Label
			}
		}
	}
	return "sinal de recebimento"
}

func containsAll(text string, phrases []string) bool {
	for _, p := range phrases {
		if !strings.Contains(text, p) {
			return false
		}
	}
	return true
}
