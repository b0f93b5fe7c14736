// Package httpapi exposes the marketplace as a JSON API over gorilla/mux.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"talent-source/internal/auth"
	"talent-source/internal/candidates"
	"talent-source/internal/employers"
	"talent-source/internal/export"
	"talent-source/internal/interviews"
	"talent-source/internal/notifications"
	"talent-source/internal/otp"
	"talent-source/internal/purchases"
	"talent-source/internal/revalidate"
	"talent-source/internal/skills"
	"talent-source/models"
	"talent-source/services"
)

const DefaultCacheTTL = 5 * time.Minute

type Revalidator interface {
	Revalidate(ctx context.Context, target revalidate.Target) error
}

// Deps are the services behind the routes. Cache may be nil to disable
// response caching.
type Deps struct {
	Sessions      *auth.Sessions
	Auth          *auth.Service
	OTP           *otp.Service
	Skills        *skills.Service
	Candidates    *candidates.Service
	Employers     *employers.Service
	Interviews    *interviews.Service
	Notifications *notifications.Service
	Purchases     *purchases.Service
	Exports       *export.Service
	Revalidator   Revalidator
	Cache         services.Cache
	CacheTTL      time.Duration
	// PaymentReturnURL receives the browser after the payment callback.
	// Empty means the callback answers with JSON.
	PaymentReturnURL string
}

type Server struct {
	deps    Deps
	router  *mux.Router
	handler http.Handler
}

func New(deps Deps) *Server {
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = DefaultCacheTTL
	}
	s := &Server{deps: deps, router: mux.NewRouter()}
	s.routes()
	// wrapped outside the router so unmatched routes are covered too
	s.handler = s.recoverer(s.logRequests(s.language(deps.Sessions.Middleware(s.router))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

var (
	anyone      = []models.Role{models.RoleCandidate, models.RoleEmployer, models.RoleAdmin}
	employer    = []models.Role{models.RoleEmployer}
	candidate   = []models.Role{models.RoleCandidate}
	admin       = []models.Role{models.RoleAdmin}
	hirers      = []models.Role{models.RoleEmployer, models.RoleAdmin}
	interviewee = []models.Role{models.RoleEmployer, models.RoleCandidate}
)

func (s *Server) routes() {
	r := s.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, r, models.ErrNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Message: http.StatusText(http.StatusMethodNotAllowed)})
	})

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/{collection}/register", s.register).Methods(http.MethodPost)
	api.HandleFunc("/auth/{collection}/login", s.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.logout).Methods(http.MethodPost)
	api.Handle("/auth/me", s.only(anyone, s.me)).Methods(http.MethodGet)
	api.HandleFunc("/auth/password/reset", s.passwordReset).Methods(http.MethodPost)
	api.Handle("/otp/send", s.only(anyone, s.sendOTP)).Methods(http.MethodPost)
	api.Handle("/otp/verify", s.only(anyone, s.verifyOTP)).Methods(http.MethodPost)

	api.Handle("/skills", s.cached(s.listSkills, revalidate.Skills)).Methods(http.MethodGet)
	api.Handle("/skills/search", s.cached(s.searchSkills, revalidate.Skills)).Methods(http.MethodGet)
	api.Handle("/plans", s.cached(s.listPlans, revalidate.Plans)).Methods(http.MethodGet)

	api.Handle("/candidates", s.only(hirers, s.cached(s.browseCandidates, revalidate.Candidates))).Methods(http.MethodGet)
	api.Handle("/candidates/me", s.only(candidate, s.updateCandidate)).Methods(http.MethodPatch)
	api.Handle("/candidates/me/{kind:cv|photo}", s.only(candidate, s.uploadCandidateFile)).Methods(http.MethodPost)
	api.Handle("/candidates/{id}", s.only(anyone, s.getCandidate)).Methods(http.MethodGet)
	api.Handle("/candidates/{id}/cv", s.only(anyone, s.candidateCV)).Methods(http.MethodGet)
	api.Handle("/candidates/{id}/unlock", s.only(employer, s.unlockCandidate)).Methods(http.MethodPost)

	api.Handle("/employers/me", s.only(employer, s.updateEmployer)).Methods(http.MethodPatch)

	api.Handle("/purchases", s.only(employer, s.checkout)).Methods(http.MethodPost)
	api.Handle("/purchases", s.only(employer, s.listPurchases)).Methods(http.MethodGet)
	api.HandleFunc("/purchases/callback", s.paymentCallback).Methods(http.MethodGet)
	api.HandleFunc("/webhooks/myfatoorah", s.paymentWebhook).Methods(http.MethodPost)

	api.Handle("/interviews", s.only(employer, s.requestInterview)).Methods(http.MethodPost)
	api.Handle("/interviews", s.only(interviewee, s.listInterviews)).Methods(http.MethodGet)
	api.Handle("/interviews/{id}/cancel", s.only(employer, s.cancelInterview)).Methods(http.MethodPost)
	api.Handle("/interviews/{id}/complete", s.only(hirers, s.completeInterview)).Methods(http.MethodPost)

	api.Handle("/notifications", s.only(anyone, s.listNotifications)).Methods(http.MethodGet)
	api.Handle("/notifications/read-all", s.only(anyone, s.readAllNotifications)).Methods(http.MethodPost)
	api.Handle("/notifications/{id}/read", s.only(anyone, s.readNotification)).Methods(http.MethodPost)

	adm := api.PathPrefix("/admin").Subrouter()
	adm.Use(auth.RequireRole(s.fail, admin...), auth.RequireActive(s.fail, s.deps.Auth.Active))
	adm.HandleFunc("/interviews", s.listInterviews).Methods(http.MethodGet)
	adm.HandleFunc("/interviews/{id}/approve", s.approveInterview).Methods(http.MethodPost)
	adm.HandleFunc("/interviews/{id}/reject", s.rejectInterview).Methods(http.MethodPost)
	adm.HandleFunc("/candidates/{id}/status", s.setCandidateStatus).Methods(http.MethodPatch)
	adm.HandleFunc("/skills", s.createSkill).Methods(http.MethodPost)
	adm.HandleFunc("/skills/suggest", s.suggestSkill).Methods(http.MethodPost)
	adm.HandleFunc("/skills/{id}", s.updateSkill).Methods(http.MethodPatch)
	adm.HandleFunc("/revalidate", s.revalidatePaths).Methods(http.MethodPost)
	adm.HandleFunc("/exports/candidates", s.exportCandidates).Methods(http.MethodPost)
	adm.HandleFunc("/exports/interviews.xlsx", s.exportInterviews).Methods(http.MethodGet)
}

func (s *Server) only(roles []models.Role, h http.HandlerFunc) http.Handler {
	return auth.RequireRole(s.fail, roles...)(auth.RequireActive(s.fail, s.deps.Auth.Active)(h))
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// principal is only called behind RequireRole.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}
