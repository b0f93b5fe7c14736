package candidates

import (
	"context"
	"sort"

	"talent-source/internal/auth"
	"talent-source/models"
)

type Query struct {
	Filter models.CandidateFilter
	Page   int
	Limit  int
}

type Page struct {
	Items []View `json:"items"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

func (q *Query) normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultPageSize
	case q.Limit > MaxPageSize:
		q.Limit = MaxPageSize
	}
}

// Browse lists candidates newest first. Employers only see active candidates
// and never see contact details in listings.
func (s *Service) Browse(ctx context.Context, viewer auth.Principal, q Query) (*Page, error) {
	q.normalize()
	if viewer.Role != models.RoleAdmin {
		q.Filter.Status = models.CandidateActive
	}

	all, err := s.store.ListCandidates(ctx, q.Filter)
	if err != nil {
		return nil, err
	}
	matched := all[:0]
	for i := range all {
		if q.Filter.Match(&all[i]) {
			matched = append(matched, all[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	page := &Page{Items: []View{}, Total: len(matched), Page: q.Page, Limit: q.Limit}
	start := (q.Page - 1) * q.Limit
	if start >= len(matched) {
		return page, nil
	}
	end := min(start+q.Limit, len(matched))
	for _, c := range matched[start:end] {
		page.Items = append(page.Items, newView(c, viewer.Role == models.RoleAdmin))
	}
	return page, nil
}
