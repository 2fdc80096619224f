package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ghalamif/twinfleet/internal/app/fleet"
	"github.com/ghalamif/twinfleet/internal/domain"
	"github.com/ghalamif/twinfleet/internal/ports"
	"github.com/ghalamif/twinfleet/internal/twin"
)

const defaultLimit = 20

type Handler struct {
	fleet *fleet.Controller
	obs   ports.Observability
}

func NewHandler(c *fleet.Controller, obs ports.Observability) *Handler {
	return &Handler{fleet: c, obs: obs}
}

type equipmentView struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Location          string        `json:"location,omitempty"`
	Status            domain.Status `json:"status"`
	Health            domain.Health `json:"health"`
	EfficiencyPercent float64       `json:"efficiency_percent"`
	Temperature       float64       `json:"temperature"`
	CurrentCapacity   float64       `json:"current_capacity"`
	CurrentSpeed      float64       `json:"current_speed"`
	UptimePercentage  float64       `json:"uptime_percentage"`
	FailureCount      int           `json:"failure_count"`
	OperationalTicks  int           `json:"operational_ticks"`
	DowntimeTicks     int           `json:"downtime_ticks"`
	Sensors           []string      `json:"sensors"`
}

type equipmentDetail struct {
	equipmentView
	Events    []domain.Event        `json:"events"`
	Lifecycle twin.LifecycleSummary `json:"lifecycle"`
}

type speedRequest struct {
	RPM *float64 `json:"rpm"`
}

// lifecycleRequest carries the upgrade kind, the replaced part, or the reason
// for a reset or decommission.
type lifecycleRequest struct {
	Kind   string `json:"kind"`
	Part   string `json:"part"`
	Reason string `json:"reason"`
}

func viewOf(u *fleet.Unit) equipmentView {
	sum := u.Equipment.PerformanceSummary()
	sensors := make([]string, len(u.Sensors))
	for i, s := range u.Sensors {
		sensors[i] = s.ID()
	}
	return equipmentView{
		ID:                sum.ID,
		Name:              sum.Name,
		Location:          sum.Location,
		Status:            sum.Status,
		Health:            sum.Health,
		EfficiencyPercent: sum.EfficiencyPercent,
		Temperature:       sum.Temperature,
		CurrentCapacity:   sum.CurrentCapacity,
		CurrentSpeed:      sum.CurrentSpeed,
		UptimePercentage:  sum.UptimePercentage,
		FailureCount:      sum.FailureCount,
		OperationalTicks:  sum.OperationalTicks,
		DowntimeTicks:     sum.DowntimeTicks,
		Sensors:           sensors,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"run_id":    h.fleet.RunID(),
		"iteration": h.fleet.Iteration(),
		"store":     h.fleet.Store().Name(),
	})
}

func (h *Handler) ListEquipment(w http.ResponseWriter, r *http.Request) {
	units := h.fleet.Units()
	out := make([]equipmentView, len(units))
	for i, u := range units {
		out[i] = viewOf(u)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetEquipment(w http.ResponseWriter, r *http.Request) {
	u, ok := h.unit(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, detailOf(u))
}

func detailOf(u *fleet.Unit) equipmentDetail {
	events := u.Equipment.Events()
	if events == nil {
		events = []domain.Event{}
	}
	return equipmentDetail{
		equipmentView: viewOf(u),
		Events:        events,
		Lifecycle:     u.Equipment.LifecycleSummary(),
	}
}

func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	u, ok := h.unit(w, r)
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	snaps, err := h.fleet.Store().QuerySnapshots(r.Context(), u.ID(), limit)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (h *Handler) ListReadings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.fleet.Sensor(id); !ok {
		writeError(w, http.StatusNotFound, "sensor "+strconv.Quote(id)+" not found")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	readings, err := h.fleet.Store().QueryReadings(r.Context(), id, limit)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

func (h *Handler) SetSpeed(w http.ResponseWriter, r *http.Request) {
	u, ok := h.unit(w, r)
	if !ok {
		return
	}
	var req speedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RPM == nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object with a numeric rpm")
		return
	}
	if err := u.Equipment.SetSpeed(*req.RPM); err != nil {
		if errors.Is(err, twin.ErrSpeedLimitExceeded) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.obs.LogInfo("speed_set",
		ports.Field{Key: "equipment_id", Value: u.ID()},
		ports.Field{Key: "rpm", Value: *req.RPM})
	writeJSON(w, http.StatusOK, viewOf(u))
}

func (h *Handler) Maintain(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.fleet.TriggerMaintenance(id); err != nil {
		if errors.Is(err, fleet.ErrUnitNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	u, _ := h.fleet.Unit(id)
	writeJSON(w, http.StatusOK, viewOf(u))
}

func (h *Handler) RecordUpgrade(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "upgrade_recorded", func(u *fleet.Unit, req lifecycleRequest) (string, error) {
		if req.Kind == "" {
			return "kind is required", nil
		}
		return "", u.Equipment.RecordUpgrade(req.Kind)
	})
}

func (h *Handler) RecordReplacement(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "replacement_recorded", func(u *fleet.Unit, req lifecycleRequest) (string, error) {
		if req.Part == "" {
			return "part is required", nil
		}
		return "", u.Equipment.RecordReplacement(req.Part)
	})
}

func (h *Handler) ResetLifecycle(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "lifecycle_reset", func(u *fleet.Unit, req lifecycleRequest) (string, error) {
		return "", u.Equipment.ResetLifecycle(req.Reason)
	})
}

func (h *Handler) Decommission(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "equipment_decommissioned", func(u *fleet.Unit, req lifecycleRequest) (string, error) {
		return "", u.Equipment.Decommission(req.Reason)
	})
}

// lifecycle decodes an optional JSON body and applies op. op returns a
// non-empty message for a bad request, or the equipment error.
func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, logMsg string, op func(*fleet.Unit, lifecycleRequest) (string, error)) {
	u, ok := h.unit(w, r)
	if !ok {
		return
	}
	var req lifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}
	bad, err := op(u, req)
	switch {
	case bad != "":
		writeError(w, http.StatusBadRequest, bad)
		return
	case errors.Is(err, twin.ErrDecommissioned):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.obs.LogInfo(logMsg,
		ports.Field{Key: "equipment_id", Value: u.ID()},
		ports.Field{Key: "kind", Value: req.Kind},
		ports.Field{Key: "part", Value: req.Part},
		ports.Field{Key: "reason", Value: req.Reason})
	writeJSON(w, http.StatusOK, detailOf(u))
}

func (h *Handler) unit(w http.ResponseWriter, r *http.Request) (*fleet.Unit, bool) {
	id := chi.URLParam(r, "id")
	u, ok := h.fleet.Unit(id)
	if !ok {
		writeError(w, http.StatusNotFound, "equipment "+strconv.Quote(id)+" not found")
	}
	return u, ok
}

func (h *Handler) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ports.ErrInvalidLimit) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.obs.LogError("store_query_failed", err)
	writeError(w, http.StatusServiceUnavailable, "store unavailable")
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
