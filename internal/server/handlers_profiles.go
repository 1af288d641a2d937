package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/models"
)

// profileResponse wraps a Profile with the "defaulted" marker spec §4.1
// requires: which canonical keys the Normalizer filled in rather than the
// caller supplying explicitly.
type profileResponse struct {
	*models.Profile
	Defaulted []string `json:"defaulted,omitempty"`
}

// applyNormalized maps the Normalizer's canonical key/value output onto a
// Profile's typed fields, and stashes anything left over (non-canonical
// keys the caller sent) in Extra.
func applyNormalized(p *models.Profile, raw map[string]interface{}, values map[string]string) {
	get := func(k string) string { return values[k] }

	p.Email = get("email")
	p.FirstName = get("firstName")
	p.LastName = get("lastName")
	p.FullName = get("name")
	p.Phone = get("phone")
	p.PhoneRaw = get("phone_raw")
	p.Password = get("password")
	p.Title = get("title")
	p.Gender = get("gender")
	p.DOB = get("dob")
	p.DOBYear = get("dob_year")
	p.DOBMonth = get("dob_month")
	p.DOBDay = get("dob_day")
	p.DOBYearInt = parseIntOr(get("dob_year_int"), 0)
	p.DOBMonthInt = parseIntOr(get("dob_month_int"), 0)
	p.DOBDayInt = parseIntOr(get("dob_day_int"), 0)
	p.Address1 = get("address1")
	p.Address2 = get("address2")
	p.City = get("city")
	p.State = get("state")
	p.Zip = get("zip")
	p.Country = get("country")
	p.Company = get("company")
	p.Website = get("website")
	p.Username = get("username")

	extra := map[string]string{}
	for k, v := range raw {
		if models.IsCanonicalProfileKey(k) || k == "extra" {
			continue
		}
		if s, ok := v.(string); ok {
			extra[k] = s
		}
	}
	if len(extra) > 0 {
		p.Extra = extra
	}
}

func parseIntOr(s string, def int) int {
	n := 0
	neg := false
	if s == "" {
		return def
	}
	for i, r := range s {
		if i == 0 && r == '-' {
			neg = true
			continue
		}
		if r < '0' || r > '9' {
			return def
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		n = -n
	}
	return n
}

// decodeProfileRequest reads the body once and returns both the raw map
// the Normalizer consumes and the email for validation (spec §6 requires
// a well-formed email when one is supplied).
func decodeProfileRequest(r *http.Request) (map[string]interface{}, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	raw := map[string]interface{}{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func validEmail(raw map[string]interface{}) bool {
	v, ok := raw["email"]
	if !ok {
		return true
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return true
	}
	_, err := mail.ParseAddress(s)
	return err == nil
}

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.deps.Profiles.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	id := pathID(r.URL.Path, "/api/profiles/")
	if id == "" {
		http.Error(w, "profile id required", http.StatusBadRequest)
		return
	}
	p, err := s.deps.Profiles.Get(r.Context(), id)
	if err != nil {
		s.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeProfileRequest(r)
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !validEmail(raw) {
		http.Error(w, "email must be a valid address", http.StatusBadRequest)
		return
	}

	values, defaulted := s.deps.Normalizer.Normalize(raw)
	p := &models.Profile{ID: uuid.NewString(), CreatedAt: time.Now()}
	applyNormalized(p, raw, values)

	if err := s.deps.Profiles.Create(r.Context(), p); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, profileResponse{Profile: p, Defaulted: defaultedKeys(defaulted)})
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	id := pathID(r.URL.Path, "/api/profiles/")
	if id == "" {
		http.Error(w, "profile id required", http.StatusBadRequest)
		return
	}

	existing, err := s.deps.Profiles.Get(r.Context(), id)
	if err != nil {
		s.writeRepoError(w, err)
		return
	}

	raw, err := decodeProfileRequest(r)
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !validEmail(raw) {
		http.Error(w, "email must be a valid address", http.StatusBadRequest)
		return
	}

	values, defaulted := s.deps.Normalizer.Normalize(raw)
	applyNormalized(existing, raw, values)

	if err := s.deps.Profiles.Update(r.Context(), existing); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: existing, Defaulted: defaultedKeys(defaulted)})
}

func defaultedKeys(defaulted map[string]bool) []string {
	keys := make([]string, 0, len(defaulted))
	for k := range defaulted {
		keys = append(keys, k)
	}
	return keys
}

func (s *Server) deleteProfile(w http.ResponseWriter, r *http.Request) {
	id := pathID(r.URL.Path, "/api/profiles/")
	if id == "" {
		http.Error(w, "profile id required", http.StatusBadRequest)
		return
	}
	if err := s.deps.Profiles.Delete(r.Context(), id); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) writeRepoError(w http.ResponseWriter, err error) {
	if err == interfaces.ErrNotFound {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.writeError(w, http.StatusInternalServerError, err)
}
