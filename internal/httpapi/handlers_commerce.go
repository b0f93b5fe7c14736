package httpapi

import (
	"io"
	"net/http"
	"net/url"

	"talent-source/internal/i18n"
	"talent-source/internal/purchases"
	"talent-source/models"
	"talent-source/services"
)

type checkoutRequest struct {
	PlanID string `json:"planId"`
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	var in checkoutRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if in.PlanID == "" {
		s.fail(w, r, badRequest("planId is required"))
		return
	}
	p, err := s.deps.Purchases.Checkout(r.Context(), principal(r).ID, in.PlanID, i18n.FromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) listPurchases(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Purchases.List(r.Context(), principal(r).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// paymentCallback is where the gateway sends the browser after payment.
func (s *Server) paymentCallback(w http.ResponseWriter, r *http.Request) {
	paymentID := r.URL.Query().Get("paymentId")
	p, err := s.deps.Purchases.Fulfill(r.Context(), paymentID, services.PaymentKeyPaymentID)
	if s.deps.PaymentReturnURL == "" {
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
		return
	}

	target, perr := url.Parse(s.deps.PaymentReturnURL)
	if perr != nil {
		s.fail(w, r, perr)
		return
	}
	q := target.Query()
	switch {
	case err != nil:
		q.Set("status", string(models.PurchaseFailed))
		s.logCallbackError(r, err)
	default:
		q.Set("purchase", p.ID)
		q.Set("status", string(p.Status))
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}

func (s *Server) logCallbackError(r *http.Request, err error) {
	if classify(err).status >= http.StatusInternalServerError {
		s.logError(r, "payment callback", err)
	}
}

// paymentWebhook settles invoices reported by the gateway. The signature
// covers the raw body.
func (s *Server) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	p, err := s.deps.Purchases.HandleWebhook(r.Context(), body, r.Header.Get(purchases.SignatureHeader))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchase": p.ID, "status": p.Status})
}
