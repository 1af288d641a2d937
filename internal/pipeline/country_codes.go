package pipeline

import "strings"

// isoCountryCodes maps a lowercased canonical country name to its ISO-2 and
// ISO-3 codes, consulted by the filling phase's "select" strategy when the
// profile's free-form country name does not appear verbatim among a
// dropdown's options (spec §4.4 "For country, also try ISO-2/ISO-3 codes
// derived from a fixed table").
var isoCountryCodes = map[string][2]string{
	"united states":        {"US", "USA"},
	"united states of america": {"US", "USA"},
	"united kingdom":       {"GB", "GBR"},
	"canada":               {"CA", "CAN"},
	"australia":            {"AU", "AUS"},
	"germany":              {"DE", "DEU"},
	"france":               {"FR", "FRA"},
	"spain":                {"ES", "ESP"},
	"italy":                {"IT", "ITA"},
	"netherlands":          {"NL", "NLD"},
	"ireland":              {"IE", "IRL"},
	"new zealand":          {"NZ", "NZL"},
	"india":                {"IN", "IND"},
	"japan":                {"JP", "JPN"},
	"china":                {"CN", "CHN"},
	"brazil":               {"BR", "BRA"},
	"mexico":               {"MX", "MEX"},
	"south africa":         {"ZA", "ZAF"},
	"singapore":            {"SG", "SGP"},
	"sweden":               {"SE", "SWE"},
	"norway":               {"NO", "NOR"},
	"denmark":              {"DK", "DNK"},
	"switzerland":          {"CH", "CHE"},
	"portugal":             {"PT", "PRT"},
	"poland":               {"PL", "POL"},
}

// countryCandidates returns the candidate values the select strategy should
// try for a free-form country name, in order: the name itself, ISO-2, then
// ISO-3. Returns just name if it is not in the fixed table.
func countryCandidates(name string) []string {
	candidates := []string{name}
	codes, ok := isoCountryCodes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return candidates
	}
	return append(candidates, codes[0], codes[1])
}
