package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"talent-source/internal/revalidate"
	"talent-source/internal/skills"
)

type suggestRequest struct {
	Name string `json:"name"`
}

func (s *Server) listSkills(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Skills.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) searchSkills(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	matches, err := s.deps.Skills.Search(r.Context(), q.Get("q"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) createSkill(w http.ResponseWriter, r *http.Request) {
	var in skills.Input
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	skill, err := s.deps.Skills.Create(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, skill)
}

func (s *Server) updateSkill(w http.ResponseWriter, r *http.Request) {
	var in skills.Input
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	skill, err := s.deps.Skills.Update(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, skill)
}

func (s *Server) suggestSkill(w http.ResponseWriter, r *http.Request) {
	var in suggestRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	suggestion, err := s.deps.Skills.Suggest(r.Context(), strings.TrimSpace(in.Name))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.deps.Purchases.Plans(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

// revalidatePaths lets admins push arbitrary paths and tags.
func (s *Server) revalidatePaths(w http.ResponseWriter, r *http.Request) {
	var target revalidate.Target
	if err := decodeJSON(w, r, &target); err != nil {
		s.fail(w, r, err)
		return
	}
	if target.Empty() {
		s.fail(w, r, ErrBadRequest)
		return
	}
	if err := s.deps.Revalidator.Revalidate(r.Context(), target); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, target)
}
