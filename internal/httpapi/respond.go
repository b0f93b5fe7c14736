package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"talent-source/internal/auth"
	"talent-source/internal/billing"
	"talent-source/internal/candidates"
	"talent-source/internal/employers"
	"talent-source/internal/export"
	"talent-source/internal/i18n"
	"talent-source/internal/interviews"
	"talent-source/internal/otp"
	"talent-source/internal/purchases"
	"talent-source/internal/skills"
	"talent-source/models"
	"talent-source/utils"
)

const maxJSONBody = 1 << 20

var ErrBadRequest = errors.New("bad request")

type errorBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = fmt.Fprintf(w, `{"message":%q}`, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// failure is how an error is reported to the client.
type failure struct {
	status int
	key    string
	detail bool
}

// failures is checked in order; the first match wins.
var failures = []struct {
	err error
	failure
}{
	{auth.ErrUnauthenticated, failure{http.StatusUnauthorized, "error.unauthorized", false}},
	{auth.ErrInvalidSession, failure{http.StatusUnauthorized, "error.unauthorized", false}},
	{auth.ErrInvalidCredentials, failure{http.StatusUnauthorized, "error.invalid_credentials", false}},
	{auth.ErrAccountSuspended, failure{http.StatusForbidden, "error.account_suspended", false}},
	{auth.ErrWeakPassword, failure{http.StatusBadRequest, "error.weak_password", false}},
	{models.ErrForbidden, failure{http.StatusForbidden, "error.forbidden", false}},
	{models.ErrNotFound, failure{http.StatusNotFound, "error.not_found", false}},
	{models.ErrEmailTaken, failure{http.StatusConflict, "error.email_taken", false}},
	{models.ErrPhoneTaken, failure{http.StatusConflict, "error.phone_taken", false}},
	{models.ErrSlugTaken, failure{http.StatusConflict, "error.slug_taken", false}},
	{models.ErrInsufficientCredits, failure{http.StatusPaymentRequired, "error.insufficient_credits", false}},
	{models.ErrPlanExpired, failure{http.StatusPaymentRequired, "error.plan_expired", false}},
	{models.ErrDuplicateRequest, failure{http.StatusConflict, "error.duplicate_request", false}},
	{interviews.ErrInvalidTransition, failure{http.StatusConflict, "error.invalid_transition", false}},
	{interviews.ErrPastTime, failure{http.StatusBadRequest, "error.past_interview_time", false}},
	{interviews.ErrCandidateUnavailable, failure{http.StatusConflict, "error.candidate_unavailable", false}},
	{candidates.ErrUnavailable, failure{http.StatusConflict, "error.candidate_unavailable", false}},
	{models.ErrConflict, failure{http.StatusConflict, "error.conflict", false}},
	{otp.ErrInvalidCode, failure{http.StatusBadRequest, "error.otp_invalid", false}},
	{otp.ErrExpired, failure{http.StatusBadRequest, "error.otp_expired", false}},
	{otp.ErrTooManyAttempts, failure{http.StatusTooManyRequests, "error.otp_too_many_attempts", false}},
	{otp.ErrTooManyRequests, failure{http.StatusTooManyRequests, "error.otp_too_many_requests", false}},
	{otp.ErrInvalidPhone, failure{http.StatusBadRequest, "error.invalid_phone", false}},
	{skills.ErrEmptyQuery, failure{http.StatusBadRequest, "error.empty_query", false}},
	{skills.ErrSuggestionsUnset, failure{http.StatusServiceUnavailable, "error.internal", false}},
	{candidates.ErrFileTooLarge, failure{http.StatusRequestEntityTooLarge, "error.file_too_large", false}},
	{candidates.ErrUnsupportedFile, failure{http.StatusUnsupportedMediaType, "error.unsupported_file", false}},
	{purchases.ErrPlanUnavailable, failure{http.StatusNotFound, "error.plan_unavailable", false}},
	{purchases.ErrPaymentFailed, failure{http.StatusBadGateway, "error.payment_failed", false}},
	{purchases.ErrAmountMismatch, failure{http.StatusConflict, "error.payment_failed", false}},
	{purchases.ErrInvalidSignature, failure{http.StatusUnauthorized, "error.invalid_signature", false}},
	{ErrBadRequest, failure{http.StatusBadRequest, "error.invalid_input", true}},
	{auth.ErrInvalidEmail, failure{http.StatusBadRequest, "error.invalid_input", true}},
	{auth.ErrMissingField, failure{http.StatusBadRequest, "error.invalid_input", true}},
	{candidates.ErrInvalidProfile, failure{http.StatusBadRequest, "error.invalid_input", true}},
	{candidates.ErrInvalidStatus, failure{http.StatusBadRequest, "error.invalid_input", true}},
	{employers.ErrInvalidProfile, failure{http.StatusBadRequest, "error.invalid_input", true}},
	{skills.ErrInvalidSkill, failure{http.StatusBadRequest, "error.invalid_input", true}},
	{interviews.ErrNoteRequired, failure{http.StatusBadRequest, "error.invalid_input", true}},
	{otp.ErrInvalidPurpose, failure{http.StatusBadRequest, "error.invalid_input", true}},
	{billing.ErrInvalidAmount, failure{http.StatusBadRequest, "error.invalid_input", true}},
	{export.ErrInvalidRange, failure{http.StatusBadRequest, "error.invalid_input", true}},
}

func classify(err error) failure {
	for _, f := range failures {
		if errors.Is(err, f.err) {
			return f.failure
		}
	}
	return failure{http.StatusInternalServerError, "error.internal", false}
}

// fail writes err as a localized {"message"} body.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	lang := i18n.FromContext(r.Context())
	f := classify(err)

	var msg string
	var throttle *otp.ThrottleError
	switch {
	case errors.As(err, &throttle):
		seconds := int(throttle.RetryAfter.Seconds())
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		if errors.Is(throttle, otp.ErrResendTooSoon) {
			msg = i18n.T(lang, "error.otp_resend_too_soon", seconds)
		} else {
			msg = i18n.T(lang, f.key)
		}
		f.status = http.StatusTooManyRequests
	case f.detail:
		msg = i18n.T(lang, f.key, err.Error())
	default:
		msg = i18n.T(lang, f.key)
	}

	if f.status >= http.StatusInternalServerError {
		s.logError(r, "request failed", err)
	} else {
		utils.Debug("request rejected", zap.String("path", r.URL.Path), zap.Int("status", f.status), zap.Error(err))
	}
	writeJSON(w, f.status, errorBody{Message: msg})
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

func (s *Server) logError(r *http.Request, msg string, err error) {
	utils.Logger().Error(msg, zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
}
