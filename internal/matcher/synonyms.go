package matcher

// synonyms is the static dictionary of lowercased alphanumeric tokens
// associated with each canonical key (spec §4.2, GLOSSARY "Synonym token").
// Order matters only in that more specific keys are checked before more
// general ones where overlap exists (e.g. dob_year before year-ish terms).
var synonyms = map[string][]string{
	"email":     {"email", "emailaddress", "mail", "e-mail"},
	"firstName": {"firstname", "first name", "fname", "givenname", "given name"},
	"lastName":  {"lastname", "last name", "lname", "surname", "familyname", "family name"},
	"name":      {"fullname", "full name", "your name"},
	"phone":     {"phone", "telephone", "tel", "mobile", "cell", "phonenumber"},
	"password":  {"password", "pwd", "pass"},
	"title":     {"title", "salutation", "honorific"},
	"gender":    {"gender", "sex"},
	"address1":  {"address1", "address line 1", "street", "streetaddress", "addressline1"},
	"address2":  {"address2", "address line 2", "apt", "suite", "addressline2"},
	"city":      {"city", "town"},
	"state":     {"state", "province", "region"},
	"zip":       {"zip", "zipcode", "postal", "postalcode", "postcode"},
	"country":   {"country", "nation"},
	"company":   {"company", "organization", "employer", "organisation"},
	"website":   {"website", "url", "homepage"},
	"username":  {"username", "userid", "login", "handle"},
	"dob_year":  {"year", "birthyear", "yob"},
	"dob_month": {"month", "birthmonth"},
	"dob_day":   {"day", "birthday", "dob"},
}

// tokenize lowercases s and strips everything but letters/digits/spaces.
func tokenize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			out = append(out, r)
		default:
			out = append(out, ' ')
		}
	}
	return string(out)
}

func contains(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	h, n := []rune(haystack), []rune(needle)
	for i := 0; i+len(n) <= len(h); i++ {
		match := true
		for j := range n {
			if h[i+j] != n[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// matchAgainstText returns the first canonical key whose synonym token is a
// contained substring of tokenize(text), in CanonicalProfileKeys order for
// determinism (spec P6).
func matchAgainstText(text string, keys []string) string {
	if text == "" {
		return ""
	}
	folded := tokenize(text)
	for _, key := range keys {
		for _, tok := range synonyms[key] {
			if contains(folded, tokenize(tok)) {
				return key
			}
		}
	}
	return ""
}
