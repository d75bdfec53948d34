package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"karabook/internal/database"
	"karabook/internal/reservation"
	"karabook/internal/service"
)

func (s *Server) handleReservations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createReservation(w, r)
	case http.MethodGet:
		s.listReservations(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type createReservationBody struct {
	RoomID      int64     `json:"room_id"`
	GuestName   string    `json:"guest_name"`
	GuestPhone  string    `json:"guest_phone"`
	PartySize   int       `json:"party_size"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	AmountCents int64     `json:"amount_cents"`
}

func (s *Server) createReservation(w http.ResponseWriter, r *http.Request) {
	var body createReservationBody
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.reservations.Create(r.Context(), service.CreateReservationRequest{
		RoomID:      body.RoomID,
		GuestName:   body.GuestName,
		GuestPhone:  body.GuestPhone,
		PartySize:   body.PartySize,
		StartTime:   body.StartTime,
		EndTime:     body.EndTime,
		AmountCents: body.AmountCents,
	})
	if err != nil {
		// The hold exists even when the payment provider is down.
		// Hand it back with 202 so the client can retry the intent.
		if errors.Is(err, service.ErrUpstream) && res != nil {
			writeJSON(w, http.StatusAccepted, res)
			return
		}
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) listReservations(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := s.reservations.ListInRange(r.Context(), from, to)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": list})
}

func (s *Server) handleReservationByID(w http.ResponseWriter, r *http.Request) {
	id, action, ok := parseIDAndAction(r.URL.Path, "/api/v1/reservations/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if action == "" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		res, err := s.reservations.Get(r.Context(), id)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var res any
	var err error
	switch action {
	case "cancel":
		res, err = s.reservations.Cancel(r.Context(), id)
	case "check-in":
		res, err = s.reservations.CheckIn(r.Context(), id)
	case "complete":
		res, err = s.reservations.Complete(r.Context(), id)
	case "payment-intent":
		res, err = s.reservations.EnsurePaymentIntent(r.Context(), id)
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rooms, err := s.reservations.ActiveRooms(r.Context())
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	roomID, action, ok := parseIDAndAction(r.URL.Path, "/api/v1/availability/")
	if !ok || action != "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	busy, err := s.reservations.RoomAvailability(r.Context(), roomID, from, to)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	type window struct {
		StartTime time.Time `json:"start_time"`
		EndTime   time.Time `json:"end_time"`
		Status    string    `json:"status"`
	}
	windows := make([]window, 0, len(busy))
	for _, b := range busy {
		windows = append(windows, window{StartTime: b.StartTime, EndTime: b.EndTime, Status: b.Status})
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_id": roomID, "busy": windows})
}

func (s *Server) handleWaitlist(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var body struct {
			GuestName  string `json:"guest_name"`
			GuestPhone string `json:"guest_phone"`
			PartySize  int    `json:"party_size"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		entry, err := s.waitlist.Join(r.Context(), body.GuestName, body.GuestPhone, body.PartySize)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	case http.MethodGet:
		activeOnly := r.URL.Query().Get("active") == "true"
		entries, err := s.waitlist.List(r.Context(), activeOnly)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"waitlist": entries})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleWaitlistByID(w http.ResponseWriter, r *http.Request) {
	id, action, ok := parseIDAndAction(r.URL.Path, "/api/v1/waitlist/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if action == "" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		entry, err := s.waitlist.Get(r.Context(), id)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, entry)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var entry any
	var err error
	switch action {
	case "notify":
		entry, err = s.waitlist.Notify(r.Context(), id)
	case "seat":
		entry, err = s.waitlist.Seat(r.Context(), id)
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleUnappliedEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	evts, err := s.payments.UnappliedEvents(r.Context(), limit)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evts})
}

// parseIDAndAction splits "/prefix/{id}" or "/prefix/{id}/{action}".
func parseIDAndAction(path, prefix string) (int64, string, bool) {
	if !strings.HasPrefix(path, prefix) {
		return 0, "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	idPart, action, _ := strings.Cut(rest, "/")
	if strings.Contains(action, "/") {
		return 0, "", false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, action, true
}

func parseRange(r *http.Request) (time.Time, time.Time, error) {
	from, err := parseTimeParam(r, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, errors.New(name + " is required (RFC 3339)")
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("invalid " + name + ": expected RFC 3339")
	}
	return t, nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrTimeConflict):
		return http.StatusConflict
	case errors.Is(err, reservation.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, database.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, database.ErrIntentAlreadySet):
		return http.StatusConflict
	case errors.Is(err, database.ErrInvalidTimeRange),
		errors.Is(err, service.ErrStartTimeInPast):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrRoomInactive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
