package httpapi

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"talent-source/internal/candidates"
	"talent-source/internal/employers"
	"talent-source/models"
)

const maxUploadBody = 6 << 20

type statusRequest struct {
	Status models.CandidateStatus `json:"status"`
}

// candidateID resolves "me" to the signed-in candidate.
func candidateID(r *http.Request) string {
	id := mux.Vars(r)["id"]
	if p := principal(r); id == "me" && p.Role == models.RoleCandidate {
		return p.ID
	}
	return id
}

func parseQuery(values url.Values) (candidates.Query, error) {
	intParam := func(name string) (int, error) {
		raw := strings.TrimSpace(values.Get(name))
		if raw == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0, badRequest("%s must be a non-negative number", name)
		}
		return n, nil
	}

	var q candidates.Query
	var err error
	f := &q.Filter
	f.Status = models.CandidateStatus(values.Get("status"))
	f.SkillID = values.Get("skill")
	f.Nationality = values.Get("nationality")
	f.City = values.Get("city")
	f.Gender = values.Get("gender")
	f.Availability = models.Availability(values.Get("availability"))
	f.Language = values.Get("language")
	f.Text = values.Get("q")
	if class := values.Get("class"); class != "" {
		if f.BillingClass, err = models.ParseBillingClass(class); err != nil {
			return q, badRequest("%v", err)
		}
	}
	if f.MinExperience, err = intParam("minExperience"); err != nil {
		return q, err
	}
	if f.MaxExperience, err = intParam("maxExperience"); err != nil {
		return q, err
	}
	if q.Page, err = intParam("page"); err != nil {
		return q, err
	}
	if q.Limit, err = intParam("limit"); err != nil {
		return q, err
	}
	return q, nil
}

func (s *Server) browseCandidates(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.deps.Candidates.Browse(r.Context(), principal(r), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) getCandidate(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Candidates.Get(r.Context(), principal(r), candidateID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) updateCandidate(w http.ResponseWriter, r *http.Request) {
	var in candidates.ProfileUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.deps.Candidates.UpdateProfile(r.Context(), principal(r).ID, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// uploadCandidateFile stores the multipart "file" field as the candidate's
// CV or photo.
func (s *Server) uploadCandidateFile(w http.ResponseWriter, r *http.Request) {
	kind, err := candidates.ParseFileKind(mux.Vars(r)["kind"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadBody); err != nil {
		if strings.Contains(err.Error(), "too large") {
			s.fail(w, r, candidates.ErrFileTooLarge)
			return
		}
		s.fail(w, r, badRequest("%v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, badRequest("file: %v", err))
		return
	}
	defer file.Close()

	c, err := s.deps.Candidates.Upload(r.Context(), principal(r).ID, kind, header.Filename, file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) candidateCV(w http.ResponseWriter, r *http.Request) {
	link, err := s.deps.Candidates.CVURL(r.Context(), principal(r), candidateID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":       link,
		"expiresIn": int(candidates.CVURLTTL.Seconds()),
	})
}

func (s *Server) unlockCandidate(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Candidates.Unlock(r.Context(), principal(r).ID, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) setCandidateStatus(w http.ResponseWriter, r *http.Request) {
	var in statusRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.deps.Candidates.SetStatus(r.Context(), id, in.Status); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": in.Status})
}

func (s *Server) updateEmployer(w http.ResponseWriter, r *http.Request) {
	var in employers.ProfileUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	e, err := s.deps.Employers.UpdateProfile(r.Context(), principal(r).ID, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
