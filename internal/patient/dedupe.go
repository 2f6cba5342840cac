package patient

import (
	"sort"
	"strings"
)

// DedupePolicy weights the duplicate signals. A candidate at or above
// StrongThreshold blocks an unconfirmed create.
type DedupePolicy struct {
	EmailWeight     int
	PhoneWeight     int
	NameDOBWeight   int
	StrongThreshold int
}

// DefaultDedupePolicy mirrors the clinical registry defaults: exact
// contact matches are decisive on their own, a family+given+DOB triple
// is strong but not decisive alone unless it clears the threshold.
var DefaultDedupePolicy = DedupePolicy{
	EmailWeight:     100,
	PhoneWeight:     100,
	NameDOBWeight:   70,
	StrongThreshold: 70,
}

// Candidate is an existing record scored against an intake payload.
type Candidate struct {
	Patient Patient  `json:"patient"`
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}

// NormalizeEmail lower-cases and trims an email for comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone strips everything but digits, keeping a leading plus.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Score rates an existing record against intake fields.
func (p DedupePolicy) Score(fields IntakeFields, existing Patient) Candidate {
	cand := Candidate{Patient: existing}

	if email := NormalizeEmail(fields.Email); email != "" && email == NormalizeEmail(existing.Email) {
		cand.Score += p.EmailWeight
		cand.Reasons = append(cand.Reasons, "email")
	}
	if phone := NormalizePhone(fields.Phone); phone != "" && phone == NormalizePhone(existing.Phone) {
		cand.Score += p.PhoneWeight
		cand.Reasons = append(cand.Reasons, "phone")
	}
	if dob, err := fields.parseDOB(); err == nil && dob != nil && existing.DOB != nil &&
		dob.Equal(*existing.DOB) &&
		normalizeName(fields.FamilyName) == normalizeName(existing.FamilyName) &&
		normalizeName(fields.GivenName) == normalizeName(existing.GivenName) {
		cand.Score += p.NameDOBWeight
		cand.Reasons = append(cand.Reasons, "name_dob")
	}
	return cand
}

// Rank scores every candidate record and returns those with a nonzero
// score, strongest first, ties broken by most recently updated.
func (p DedupePolicy) Rank(fields IntakeFields, records []Patient) []Candidate {
	out := make([]Candidate, 0, len(records))
	for _, rec := range records {
		if cand := p.Score(fields, rec); cand.Score > 0 {
			out = append(out, cand)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Patient.UpdatedAt.After(out[j].Patient.UpdatedAt)
	})
	return out
}

// Strong reports whether any candidate clears the blocking threshold.
func (p DedupePolicy) Strong(cands []Candidate) bool {
	return len(cands) > 0 && cands[0].Score >= p.StrongThreshold
}
