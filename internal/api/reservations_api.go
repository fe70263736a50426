package api

import (
	"encoding/json"
	"net/http"

	"labreserve/internal/engine"
	"labreserve/internal/metrics"
	"labreserve/internal/models"
)

// CreateReservationRequest is the POST /api/reservations body. Times are raw
// 4-digit input exactly as typed ("0900").
type CreateReservationRequest struct {
	UserName  string `json:"user_name"`
	Lab       string `json:"lab"`
	Equipment string `json:"equipment"`
	Date      string `json:"date"` // YYYY-MM-DD
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Password  string `json:"password"`
}

// EditReservationRequest is the POST /api/reservations/edit body. Empty
// fields keep their stored value.
type EditReservationRequest struct {
	ID        string `json:"id"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	Date      string `json:"date,omitempty"`
	Equipment string `json:"equipment,omitempty"`
	Password  string `json:"password"`
}

// DeleteReservationRequest is the POST /api/reservations/delete body. Admin
// deletes carry the admin password header instead of the row password.
type DeleteReservationRequest struct {
	ID       string `json:"id"`
	Password string `json:"password,omitempty"`
}

// handleReservations lists or creates reservations.
// GET  /api/reservations?date=YYYY-MM-DD&equipment=NAME
// POST /api/reservations
func (s *HTTPServer) handleReservations(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations")
	switch r.Method {
	case http.MethodGet:
		s.listReservations(w, r)
	case http.MethodPost:
		s.createReservation(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) listReservations(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	equipment := r.URL.Query().Get("equipment")

	var (
		reservations []models.Reservation
		err          error
	)
	if date != "" && equipment != "" {
		reservations, err = s.engine.ReservationsOn(r.Context(), date, equipment)
	} else {
		reservations, err = s.engine.Reservations(r.Context())
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if reservations == nil {
		reservations = []models.Reservation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reservations": reservations})
}

func (s *HTTPServer) createReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := s.engine.Create(r.Context(), engine.CreateRequest{
		UserName:  req.UserName,
		Lab:       req.Lab,
		Equipment: req.Equipment,
		Date:      req.Date,
		RawStart:  req.StartTime,
		RawEnd:    req.EndTime,
		Password:  req.Password,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"reservations": created,
		"overnight":    len(created) == 2,
	})
}

// handleEditReservation updates one reservation.
// POST /api/reservations/edit
func (s *HTTPServer) handleEditReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations_edit")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req EditReservationRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updated, err := s.engine.Edit(r.Context(), engine.EditRequest{
		ID:           req.ID,
		RawStart:     req.StartTime,
		RawEnd:       req.EndTime,
		NewDate:      req.Date,
		NewEquipment: req.Equipment,
		Password:     req.Password,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reservation": updated})
}

// handleDeleteReservation removes one reservation. The admin password header
// overrides the per-row password.
// POST /api/reservations/delete
func (s *HTTPServer) handleDeleteReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations_delete")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req DeleteReservationRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	admin := s.engine.VerifyAdmin(r.Header.Get("X-Admin-Password"))
	if err := s.engine.Delete(r.Context(), req.ID, req.Password, admin); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// handleUpcoming lists future reservations for one equipment.
// GET /api/reservations/upcoming?equipment=NAME
func (s *HTTPServer) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations_upcoming")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	equipment := r.URL.Query().Get("equipment")
	if equipment == "" {
		writeError(w, http.StatusBadRequest, "equipment parameter required")
		return
	}

	upcoming, err := s.engine.Upcoming(r.Context(), equipment)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if upcoming == nil {
		upcoming = []models.Reservation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reservations": upcoming})
}
