package models

import "time"

// DomainMapping is the learned (selector -> profile_key) plan for a
// registrable domain, replaced atomically on every successful learning
// write (spec §3, §4.7).
type DomainMapping struct {
	Domain      string           `json:"domain"`
	Plan        []FieldPlanEntry `json:"plan"`
	Version     int              `json:"version"`
	FirstURL    string           `json:"first_url"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Merge computes the union-deduplicated plan of m and other, keeping the
// higher-confidence entry per selector on conflict. Used by the Domain
// Mapping Store's at-most-one-writer learning path (spec §4.7, P2).
func (m *DomainMapping) Merge(other []FieldPlanEntry) []FieldPlanEntry {
	bySelector := make(map[string]FieldPlanEntry, len(m.Plan)+len(other))
	order := make([]string, 0, len(m.Plan)+len(other))

	upsert := func(e FieldPlanEntry) {
		if existing, ok := bySelector[e.Selector]; ok {
			if e.Confidence > existing.Confidence {
				bySelector[e.Selector] = e
			}
			return
		}
		bySelector[e.Selector] = e
		order = append(order, e.Selector)
	}

	for _, e := range m.Plan {
		upsert(e)
	}
	for _, e := range other {
		upsert(e)
	}

	merged := make([]FieldPlanEntry, 0, len(order))
	for _, sel := range order {
		merged = append(merged, bySelector[sel])
	}
	return merged
}
