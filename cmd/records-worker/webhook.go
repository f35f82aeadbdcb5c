package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"municipalrecords-backend/services/requests"
	"municipalrecords-backend/services/requests/db"
)

type paymentConfirmedEvent struct {
	RequestId   int64  `json:"request_id"`
	PaymentRef  string `json:"payment_ref"`
	AmountCents int64  `json:"amount_cents"`
}

// RegisterWebhook mounts the payment processor's callback. The
// processor retries deliveries, so the handler leans on
// ConfirmPayment's idempotence instead of deduplicating itself.
func RegisterWebhook(mux *http.ServeMux, service requests.Service, secret string) {
	mux.HandleFunc("POST /payments/confirmed", func(w http.ResponseWriter, r *http.Request) {
		given := r.Header.Get("x-webhook-secret")
		if subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var event paymentConfirmedEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if event.RequestId == 0 || event.PaymentRef == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		err := service.ConfirmPayment(r.Context(), event.RequestId, event.PaymentRef, event.AmountCents)
		if errors.Is(err, db.ErrConflict) {
			slog.WarnContext(r.Context(), "conflicting payment confirmation",
				"request_id", event.RequestId, "payment_ref", event.PaymentRef)
			w.WriteHeader(http.StatusConflict)
			return
		}
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to confirm payment",
				"request_id", event.RequestId, "err", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	})
}
