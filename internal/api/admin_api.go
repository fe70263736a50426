package api

import (
	"encoding/json"
	"net/http"

	"labreserve/internal/metrics"
	"labreserve/internal/models"
)

// RenameRequest is the POST /api/registry/rename body. Kind is "lab" or
// "equipment".
type RenameRequest struct {
	Kind    string `json:"kind"`
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

// RegistryEntryRequest is the body for registry add and remove calls.
type RegistryEntryRequest struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// WaterRequest is the POST /api/water body. Amount is raw user input in
// liters, validated downstream.
type WaterRequest struct {
	UserName string `json:"user_name"`
	Lab      string `json:"lab"`
	Amount   string `json:"amount"`
}

// handleRegistry returns the known labs and equipment.
// GET /api/registry
func (s *HTTPServer) handleRegistry(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("registry")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	labs, err := s.engine.Labs(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	equipment, err := s.engine.Equipment(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"labs":      labs,
		"equipment": equipment,
	})
}

// handleRename renames a lab or equipment and propagates the new name to
// every table that references it. Admin only.
// POST /api/registry/rename
func (s *HTTPServer) handleRename(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("registry_rename")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}

	var req RenameRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var err error
	switch req.Kind {
	case "lab":
		err = s.engine.RenameLab(r.Context(), req.OldName, req.NewName)
	case "equipment":
		err = s.engine.RenameEquipment(r.Context(), req.OldName, req.NewName)
	default:
		writeError(w, http.StatusBadRequest, "kind must be lab or equipment")
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"renamed": true})
}

// handleRegistryAdd registers a new lab or equipment name. Admin only.
// POST /api/registry/add
func (s *HTTPServer) handleRegistryAdd(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("registry_add")
	s.mutateRegistry(w, r, true)
}

// handleRegistryRemove drops a lab or equipment name from the registry.
// Existing reservations keep the old name. Admin only.
// POST /api/registry/remove
func (s *HTTPServer) handleRegistryRemove(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("registry_remove")
	s.mutateRegistry(w, r, false)
}

func (s *HTTPServer) mutateRegistry(w http.ResponseWriter, r *http.Request, add bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}

	var req RegistryEntryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var err error
	switch {
	case req.Kind == "lab" && add:
		err = s.engine.AddLab(r.Context(), req.Name)
	case req.Kind == "lab":
		err = s.engine.RemoveLab(r.Context(), req.Name)
	case req.Kind == "equipment" && add:
		err = s.engine.AddEquipment(r.Context(), req.Name)
	case req.Kind == "equipment":
		err = s.engine.RemoveEquipment(r.Context(), req.Name)
	default:
		writeError(w, http.StatusBadRequest, "kind must be lab or equipment")
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleWater lists or records water usage.
// GET  /api/water
// POST /api/water
func (s *HTTPServer) handleWater(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("water")
	switch r.Method {
	case http.MethodGet:
		usage, err := s.engine.WaterUsage(r.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if usage == nil {
			usage = []models.WaterUsage{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"water": usage})
	case http.MethodPost:
		var req WaterRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		recorded, err := s.engine.RecordWater(r.Context(), req.UserName, req.Lab, req.Amount)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"water": recorded})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleEquipmentStats reports per-lab occupancy for one equipment. With a
// month parameter it returns that month's shares, without one the full
// monthly trend.
// GET /api/stats/equipment?equipment=NAME&month=YYYY-MM
func (s *HTTPServer) handleEquipmentStats(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("stats_equipment")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	equipment := r.URL.Query().Get("equipment")
	if equipment == "" {
		writeError(w, http.StatusBadRequest, "equipment parameter required")
		return
	}

	if month := r.URL.Query().Get("month"); month != "" {
		shares, err := s.engine.EquipmentOccupancy(r.Context(), equipment, month)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"shares": shares})
		return
	}

	trend, err := s.engine.EquipmentTrend(r.Context(), equipment)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trend": trend})
}

// handleWaterStats reports per-lab water consumption shares for a month, or
// the full monthly trend when no month is given.
// GET /api/stats/water?month=YYYY-MM
func (s *HTTPServer) handleWaterStats(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("stats_water")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if month := r.URL.Query().Get("month"); month != "" {
		shares, err := s.engine.WaterShares(r.Context(), month)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"shares": shares})
		return
	}

	trend, err := s.engine.WaterTrend(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trend": trend})
}

// handleLogs returns the audit log, newest first. Admin only.
// GET /api/logs
func (s *HTTPServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("logs")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}

	entries, err := s.engine.AuditLog(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if entries == nil {
		entries = []models.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": entries})
}
