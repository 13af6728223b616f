package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/st20medic/trucks/internal/clearance"
	"github.com/st20medic/trucks/internal/domain"
	"github.com/st20medic/trucks/internal/mail"
	"github.com/st20medic/trucks/internal/pipeline"
	"github.com/st20medic/trucks/internal/rules"
	"github.com/st20medic/trucks/internal/store"
)

// Runner triggers one pass on demand. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, now time.Time, force bool) (pipeline.Summary, error)
}

// Clearer records a mechanic's dismissal. *clearance.Workflow satisfies it.
type Clearer interface {
	Clear(ctx context.Context, vehicleID string, kind domain.AlertKind, justification, author string) (domain.AccountabilityRecord, error)
}

// VehicleReader serves the vehicle-detail read path. *store.PostgresStore
// satisfies it.
type VehicleReader interface {
	GetVehicleState(ctx context.Context, vehicleID string) (store.VehicleState, error)
	ListClearanceLog(ctx context.Context, vehicleID string) ([]domain.AccountabilityRecord, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	runner   Runner
	clearer  Clearer
	vehicles VehicleReader
	ruleset  rules.Ruleset
	pingers  []Pinger
	logger   *zap.Logger
}

func NewHandler(runner Runner, clearer Clearer, vehicles VehicleReader, rs rules.Ruleset, pingers []Pinger, logger *zap.Logger) *Handler {
	return &Handler{
		runner:   runner,
		clearer:  clearer,
		vehicles: vehicles,
		ruleset:  rs,
		pingers:  pingers,
		logger:   logger.Named("http"),
	}
}

// RunAlerts is the on-demand trigger. ?force=true bypasses the batch-send
// window for verification runs; the per-kind clearance gate always applies.
func (h *Handler) RunAlerts(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	summary, err := h.runner.Run(r.Context(), time.Now(), force)
	if err != nil {
		if errors.Is(err, mail.ErrAuth) {
			writeError(w, http.StatusBadGateway, "notification channel rejected credentials")
			return
		}
		h.logger.Error("manual pass failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "alert pass failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type clearRequest struct {
	Kind          string `json:"kind"`
	Justification string `json:"justification"`
	Author        string `json:"author"`
}

// ClearAlert dismisses one alert kind for one vehicle.
func (h *Handler) ClearAlert(w http.ResponseWriter, r *http.Request) {
	vehicleID := mux.Vars(r)["id"]

	var req clearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.clearer.Clear(r.Context(), vehicleID, domain.AlertKind(req.Kind), req.Justification, req.Author)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, rec)
	case errors.Is(err, clearance.ErrEmptyJustification),
		errors.Is(err, clearance.ErrInvalidKind):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "vehicle not found")
	case errors.Is(err, clearance.ErrUnaccountable):
		// The dismissal did NOT take effect; the UI must say so.
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("clearance failed",
			zap.String("vehicle_id", vehicleID),
			zap.String("kind", req.Kind),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "clearance failed")
	}
}

// VehicleAlerts evaluates one vehicle's current alert state through the same
// ruleset the pipeline uses, so the on-screen state can never drift from what
// the digest would report.
func (h *Handler) VehicleAlerts(w http.ResponseWriter, r *http.Request) {
	vehicleID := mux.Vars(r)["id"]

	st, err := h.vehicles.GetVehicleState(r.Context(), vehicleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "vehicle not found")
			return
		}
		h.logger.Error("vehicle read failed", zap.String("vehicle_id", vehicleID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "vehicle read failed")
		return
	}

	now := time.Now()
	alerts := h.ruleset.Evaluate(st.Snapshot, st.Clearances, now)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"vehicle_id":     st.Snapshot.ID,
		"unit_label":     st.Snapshot.UnitLabel,
		"odometer":       st.Snapshot.Odometer,
		"out_of_service": st.Snapshot.OutOfService(),
		"alerts":         alerts,
		"evaluated_at":   now,
	})
}

// ClearanceHistory returns the accountability trail for one vehicle.
func (h *Handler) ClearanceHistory(w http.ResponseWriter, r *http.Request) {
	vehicleID := mux.Vars(r)["id"]

	recs, err := h.vehicles.ListClearanceLog(r.Context(), vehicleID)
	if err != nil {
		h.logger.Error("clearance history read failed", zap.String("vehicle_id", vehicleID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history read failed")
		return
	}
	if recs == nil {
		recs = []domain.AccountabilityRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	for _, p := range h.pingers {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
