package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"karabook/internal/payment"
	"karabook/internal/reservation"
)

const maxWebhookBody = 1 << 20

// handlePaymentWebhook ingests provider notifications. Signature
// verification runs before anything else touches the body. Responses
// follow provider retry semantics: 2xx stops redelivery, 5xx requests
// it. Lifecycle rejections answer 200 because the ledger row is
// recorded and redelivering the same event can never succeed.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	tolerance := s.cfg.Payment.WebhookTolerance
	if tolerance <= 0 {
		tolerance = payment.DefaultWebhookTolerance
	}
	sig := r.Header.Get("X-Payment-Signature")
	if err := payment.VerifySignature([]byte(s.cfg.Payment.WebhookSecret), sig, body, s.now().UTC(), tolerance); err != nil {
		s.logger.Warn().Err(err).Msg("webhook signature rejected")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var evt payment.WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if evt.EventID == "" || evt.Kind == "" || evt.ReservationID <= 0 {
		writeError(w, http.StatusBadRequest, "event_id, kind and reservation_id are required")
		return
	}

	outcome, err := s.payments.ApplyEvent(r.Context(), evt.EventID, evt.ReservationID, evt.Kind, string(evt.Payload))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
	case errors.Is(err, reservation.ErrInvalidTransition):
		// Recorded for reconciliation; acknowledging stops the
		// provider's retry loop.
		writeJSON(w, http.StatusOK, map[string]string{"outcome": "rejected"})
	case errors.Is(err, reservation.ErrUnknownEventKind):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		if s.redelivery != nil {
			if qerr := s.redelivery.Enqueue(r.Context(), evt.EventID, evt.ReservationID, evt.Kind, string(evt.Payload)); qerr != nil {
				s.logger.Error().Err(qerr).Str("provider_event_id", evt.EventID).Msg("redelivery enqueue failed")
			}
		}
		writeError(w, http.StatusInternalServerError, "event processing failed")
	}
}
