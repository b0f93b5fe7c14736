package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"talent-source/internal/interviews"
)

type rejectRequest struct {
	Note string `json:"note"`
}

func (s *Server) requestInterview(w http.ResponseWriter, r *http.Request) {
	var in interviews.RequestInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if in.CandidateID == "" {
		s.fail(w, r, badRequest("candidateId is required"))
		return
	}
	iv, err := s.deps.Interviews.Request(r.Context(), principal(r).ID, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, iv)
}

// listInterviews serves both the party view and the admin queue.
func (s *Server) listInterviews(w http.ResponseWriter, r *http.Request) {
	status, err := interviews.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	list, err := s.deps.Interviews.List(r.Context(), principal(r), status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) cancelInterview(w http.ResponseWriter, r *http.Request) {
	iv, err := s.deps.Interviews.Cancel(r.Context(), principal(r).ID, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

func (s *Server) completeInterview(w http.ResponseWriter, r *http.Request) {
	iv, err := s.deps.Interviews.Complete(r.Context(), principal(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

func (s *Server) approveInterview(w http.ResponseWriter, r *http.Request) {
	iv, err := s.deps.Interviews.Approve(r.Context(), principal(r).ID, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

func (s *Server) rejectInterview(w http.ResponseWriter, r *http.Request) {
	var in rejectRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	iv, err := s.deps.Interviews.Reject(r.Context(), principal(r).ID, mux.Vars(r)["id"], in.Note)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}
