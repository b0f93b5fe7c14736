package models

import (
	"slices"
	"strings"
)

// CandidateFilter narrows a candidate listing. Zero values do not filter.
type CandidateFilter struct {
	Status        CandidateStatus
	SkillID       string
	BillingClass  BillingClass
	Nationality   string
	City          string
	Gender        string
	Availability  Availability
	Language      string
	MinExperience int
	MaxExperience int
	Text          string
}

// Match applies every non-zero criterion to c.
func (f CandidateFilter) Match(c *Candidate) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.SkillID != "" && c.PrimarySkillID != f.SkillID && !slices.Contains(c.SkillIDs, f.SkillID) {
		return false
	}
	if f.BillingClass != "" && c.BillingClass != f.BillingClass {
		return false
	}
	if f.Nationality != "" && !strings.EqualFold(c.Nationality, f.Nationality) {
		return false
	}
	if f.City != "" && !strings.EqualFold(c.City, f.City) {
		return false
	}
	if f.Gender != "" && c.Gender != f.Gender {
		return false
	}
	if f.Availability != "" && c.Availability != f.Availability {
		return false
	}
	if f.Language != "" && !slices.ContainsFunc(c.Languages, func(l string) bool { return strings.EqualFold(l, f.Language) }) {
		return false
	}
	if f.MinExperience > 0 && c.ExperienceYears < f.MinExperience {
		return false
	}
	if f.MaxExperience > 0 && c.ExperienceYears > f.MaxExperience {
		return false
	}
	if f.Text != "" {
		needle := strings.ToLower(strings.TrimSpace(f.Text))
		if !strings.Contains(strings.ToLower(c.Name), needle) && !strings.Contains(strings.ToLower(c.NameAr), needle) {
			return false
		}
	}
	return true
}
