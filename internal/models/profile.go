package models

import "time"

// Profile holds a user's form-fill identity: the semantic fields the
// Pipeline Executor draws values from when filling a detected field plan.
// Profiles are created and mutated only by the user; the core never writes
// to them.
type Profile struct {
	ID string `json:"id"`

	FullName   string `json:"full_name"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`     // formatted, as explicitly supplied
	PhoneRaw   string `json:"phone_raw"` // digits only
	Password   string `json:"password"`
	Title      string `json:"title"`
	Gender     string `json:"gender"`

	// DateOfBirth is kept both as canonical strings and as parsed integers;
	// see internal/normalizer for the derivation rules (spec §4.1).
	DOB        string `json:"dob"`       // "YYYY-MM-DD" when derivable
	DOBYear    string `json:"dob_year"`
	DOBMonth   string `json:"dob_month"`
	DOBDay     string `json:"dob_day"`
	DOBYearInt int    `json:"dob_year_int"`
	DOBMonthInt int   `json:"dob_month_int"`
	DOBDayInt  int    `json:"dob_day_int"`

	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	City     string `json:"city"`
	State    string `json:"state"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
	Company  string `json:"company"`
	Website  string `json:"website"`
	Username string `json:"username"`

	// Extra holds any additional free-form key/value pairs supplied by the
	// user that do not map onto a canonical key.
	Extra map[string]string `json:"extra,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanonicalValues returns the canonical profile-key -> value mapping the
// Pipeline Executor's fill phase consults, built from the normalized
// Profile. Empty values are omitted.
func (p *Profile) CanonicalValues() map[string]string {
	m := map[string]string{}
	add := func(key, value string) {
		if value != "" {
			m[key] = value
		}
	}

	add("email", p.Email)
	add("firstName", p.FirstName)
	add("lastName", p.LastName)
	add("name", p.FullName)
	add("phone", p.Phone)
	add("phone_raw", p.PhoneRaw)
	add("password", p.Password)
	add("title", p.Title)
	add("dob", p.DOB)
	add("dob_year", p.DOBYear)
	add("dob_month", p.DOBMonth)
	add("dob_day", p.DOBDay)
	add("gender", p.Gender)
	add("address1", p.Address1)
	add("address2", p.Address2)
	add("city", p.City)
	add("state", p.State)
	add("zip", p.Zip)
	add("country", p.Country)
	add("company", p.Company)
	add("website", p.Website)
	add("username", p.Username)

	for k, v := range p.Extra {
		add(k, v)
	}

	return m
}

// CanonicalProfileKeys is the finite set of semantic keys the Profile
// Normalizer may produce and the AI Analyzer Client/Pattern Matcher resolve
// against (spec §4.1, GLOSSARY).
var CanonicalProfileKeys = []string{
	"email", "firstName", "lastName", "name", "phone", "phone_raw",
	"password", "title", "dob", "dob_year", "dob_month", "dob_day",
	"dob_year_int", "dob_month_int", "dob_day_int", "gender",
	"address1", "address2", "city", "state", "zip", "country",
	"company", "website", "username",
}

// IsCanonicalProfileKey reports whether key belongs to the canonical set.
func IsCanonicalProfileKey(key string) bool {
	for _, k := range CanonicalProfileKeys {
		if k == key {
			return true
		}
	}
	return false
}
