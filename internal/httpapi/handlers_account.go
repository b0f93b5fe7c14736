package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"talent-source/internal/interviews"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type snapshotRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	list, err := s.deps.Notifications.List(r.Context(), principal(r).ID, unread)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) readNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Notifications.MarkRead(r.Context(), mux.Vars(r)["id"], principal(r).ID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) readAllNotifications(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Notifications.MarkAllRead(r.Context(), principal(r).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}

func (s *Server) exportCandidates(w http.ResponseWriter, r *http.Request) {
	var in snapshotRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.Exports.CandidatesSnapshot(r.Context(), in.StartDate, in.EndDate)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// exportInterviews renders the workbook in memory so failures still get a
// JSON error.
func (s *Server) exportInterviews(w http.ResponseWriter, r *http.Request) {
	status, err := interviews.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	var buf bytes.Buffer
	if err := s.deps.Exports.InterviewsReport(r.Context(), &buf, status); err != nil {
		s.fail(w, r, err)
		return
	}
	filename := fmt.Sprintf("interviews-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
