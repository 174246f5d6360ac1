package health

import (
	"strings"

	"github.com/opsdrill/opsdrill/internal/domain"
	"golang.org/x/text/cases"
)

// MatchKind identifies which strategy linked an incident to a service.
// Strategies are evaluated in declaration order; the first hit wins.
type MatchKind string

// Match kinds, strongest first.
const (
	MatchByID        MatchKind = "id"
	MatchByExactName MatchKind = "exact_name"
	MatchByKeyword   MatchKind = "keyword"
	MatchBySubstring MatchKind = "substring"
	MatchByText      MatchKind = "text"
	MatchNone        MatchKind = ""
)

// keywordSynonyms maps free-text tokens the scenario generator is known to
// emit to tokens expected in service names. Matching is case-folded on both
// sides.
var keywordSynonyms = map[string][]string{
	"db":       {"database"},
	"database": {"database"},
	"sql":      {"database"},
	"auth":     {"authentication"},
	"login":    {"authentication"},
	"sso":      {"authentication"},
	"mail":     {"mail", "email"},
	"email":    {"mail", "email"},
	"smtp":     {"mail"},
	"web":      {"web", "portal"},
	"site":     {"web", "portal"},
	"network":  {"network", "vpn"},
	"vpn":      {"network", "vpn"},
	"storage":  {"storage", "file"},
	"disk":     {"storage"},
}

var fold = cases.Fold()

// Match reports how an incident's service reference relates to a service.
// Incident generation upstream supplies free-text service names, so matching
// is intentionally permissive: direct id link, exact name, keyword synonym,
// substring either direction, and finally title/description containment.
func Match(inc *domain.Incident, svc *domain.Service) MatchKind {
	if inc.AffectedServiceID != nil && *inc.AffectedServiceID == svc.ID {
		return MatchByID
	}

	name := fold.String(strings.TrimSpace(svc.Name))
	ref := fold.String(strings.TrimSpace(inc.AffectedService))

	if ref != "" && ref == name {
		return MatchByExactName
	}

	if ref != "" && matchKeyword(ref, name) {
		return MatchByKeyword
	}

	if ref != "" && (strings.Contains(name, ref) || strings.Contains(ref, name)) {
		return MatchBySubstring
	}

	if name != "" {
		text := fold.String(inc.Title + " " + inc.Description)
		if strings.Contains(text, name) {
			return MatchByText
		}
	}

	return MatchNone
}

// matchKeyword checks whether any token of the folded reference is a known
// synonym for a token appearing in the folded service name.
func matchKeyword(ref, name string) bool {
	for _, token := range strings.Fields(ref) {
		for _, target := range keywordSynonyms[token] {
			if strings.Contains(name, target) {
				return true
			}
		}
	}
	return false
}
