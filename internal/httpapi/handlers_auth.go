package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"talent-source/internal/auth"
	"talent-source/internal/i18n"
	"talent-source/models"
	"talent-source/utils"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	ID      string      `json:"id"`
	Role    models.Role `json:"role"`
	Account any         `json:"account,omitempty"`
}

type passwordResetRequest struct {
	Collection string `json:"collection"`
	Phone      string `json:"phone"`
	Code       string `json:"code"`
	Password   string `json:"password"`
}

type otpRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

func collectionRole(r *http.Request) (models.Role, error) {
	role, ok := auth.RoleForCollection(mux.Vars(r)["collection"])
	if !ok {
		return "", models.ErrNotFound
	}
	return role, nil
}

// register creates the account, signs it in and texts a phone verification
// code.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	role, err := collectionRole(r)
	if err != nil || role == models.RoleAdmin {
		s.fail(w, r, models.ErrNotFound)
		return
	}
	ctx := r.Context()
	lang := i18n.FromContext(ctx)

	var (
		id, phone string
		account   any
	)
	switch role {
	case models.RoleCandidate:
		var in auth.CandidateRegistration
		if err := decodeJSON(w, r, &in); err != nil {
			s.fail(w, r, err)
			return
		}
		if in.PreferredLanguage == "" {
			in.PreferredLanguage = lang
		}
		c, err := s.deps.Auth.RegisterCandidate(ctx, in)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		id, phone, account = c.ID, c.Phone, c
	case models.RoleEmployer:
		var in auth.EmployerRegistration
		if err := decodeJSON(w, r, &in); err != nil {
			s.fail(w, r, err)
			return
		}
		if in.PreferredLanguage == "" {
			in.PreferredLanguage = lang
		}
		e, err := s.deps.Auth.RegisterEmployer(ctx, in)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		id, phone, account = e.ID, e.Phone, e
	}

	p := auth.Principal{ID: id, Role: role}
	if err := s.deps.Sessions.SetCookie(w, p); err != nil {
		s.fail(w, r, err)
		return
	}
	if s.deps.OTP != nil {
		if _, err := s.deps.OTP.Send(ctx, phone, models.OTPVerifyPhone, lang); err != nil {
			utils.Logger().Warn("registration otp", zap.String("id", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, sessionResponse{ID: id, Role: role, Account: account})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	role, err := collectionRole(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var in loginRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.deps.Auth.Login(r.Context(), role, in.Email, in.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Sessions.SetCookie(w, p); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: p.ID, Role: p.Role})
}

func (s *Server) logout(w http.ResponseWriter, _ *http.Request) {
	s.deps.Sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// me returns the signed-in account. Employers also get their credit account.
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var (
		account any
		err     error
	)
	if p.Role == models.RoleEmployer && s.deps.Employers != nil {
		account, err = s.deps.Employers.Me(r.Context(), p.ID)
	} else {
		account, err = s.deps.Auth.Me(r.Context(), p)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: p.ID, Role: p.Role, Account: account})
}

// passwordReset texts a reset code, or sets the new password when the
// request carries the code.
func (s *Server) passwordReset(w http.ResponseWriter, r *http.Request) {
	var in passwordResetRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	role, ok := auth.RoleForCollection(in.Collection)
	if !ok {
		role = models.RoleCandidate
	}
	ctx := r.Context()
	if in.Code == "" {
		if err := s.deps.Auth.RequestPasswordReset(ctx, role, in.Phone, i18n.FromContext(ctx)); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
		return
	}
	if err := s.deps.Auth.ResetPassword(ctx, role, in.Phone, in.Code, in.Password); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) sendOTP(w http.ResponseWriter, r *http.Request) {
	var in otpRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.OTP.Send(r.Context(), in.Phone, models.OTPVerifyPhone, i18n.FromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var in otpRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	p := principal(r)
	if err := s.deps.OTP.ConfirmPhone(r.Context(), p.Role, p.ID, in.Phone, in.Code); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"phoneVerified": true})
}
