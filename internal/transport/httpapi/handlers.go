package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/PossumXI/Asgard/mpctracker/internal/obslog"
	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

var log = obslog.For("httpapi")

type handler struct {
	core Core
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func serviceResultStatus(res types.ServiceResult) int {
	if res.Success {
		return http.StatusOK
	}
	return http.StatusBadRequest
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok", "service": "mpctracker"})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, h.core.Status())
}

func (h *handler) predictedHorizon(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, types.PredictedHorizon{Stamp: time.Now(), Points: h.core.PredictedHorizon()})
}

func (h *handler) drift(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]float64{"tick_drift_ratio": h.core.DriftRatio()})
}

// activateRequest carries the optional last-known command and the
// required estimator sample the supervisor seeds activation from.
type activateRequest struct {
	LastCommand *types.PositionCommand `json:"last_command,omitempty"`
	Estimator   types.VehicleState     `json:"estimator"`
}

func (h *handler) activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decodeBody(r, &req); err != nil {
		jsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	res := h.core.Activate(req.LastCommand, req.Estimator)
	jsonResponse(w, serviceResultStatus(res), res)
}

func (h *handler) deactivate(w http.ResponseWriter, r *http.Request) {
	res := h.core.Deactivate()
	jsonResponse(w, serviceResultStatus(res), res)
}

func (h *handler) hover(w http.ResponseWriter, r *http.Request) {
	res := h.core.Hover()
	jsonResponse(w, serviceResultStatus(res), res)
}

func (h *handler) setReference(w http.ResponseWriter, r *http.Request) {
	var ref types.SetpointReference
	if err := decodeBody(r, &ref); err != nil {
		jsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	res := h.core.SetReference(ref)
	jsonResponse(w, serviceResultStatus(res), res)
}

func (h *handler) setTrajectory(w http.ResponseWriter, r *http.Request) {
	var ref types.TrajectoryReference
	if err := decodeBody(r, &ref); err != nil {
		jsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	res := h.core.SetTrajectory(ref)
	jsonResponse(w, serviceResultStatus(res), res)
}

func (h *handler) startTrajectoryTracking(w http.ResponseWriter, r *http.Request) {
	res := h.core.StartTrajectoryTracking()
	jsonResponse(w, serviceResultStatus(res), res)
}

func (h *handler) resumeTrajectoryTracking(w http.ResponseWriter, r *http.Request) {
	res := h.core.ResumeTrajectoryTracking()
	jsonResponse(w, serviceResultStatus(res), res)
}

func (h *handler) setConstraints(w http.ResponseWriter, r *http.Request) {
	var cons types.DynamicConstraints
	if err := decodeBody(r, &cons); err != nil {
		jsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	res := h.core.SetConstraints(cons)
	jsonResponse(w, serviceResultStatus(res), res)
}

type odometrySwitchRequest struct {
	Old  types.VehicleState `json:"old"`
	Next types.VehicleState `json:"next"`
}

func (h *handler) switchOdometrySource(w http.ResponseWriter, r *http.Request) {
	var req odometrySwitchRequest
	if err := decodeBody(r, &req); err != nil {
		jsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	res := h.core.SwitchOdometrySource(req.Old, req.Next)
	jsonResponse(w, serviceResultStatus(res), res)
}

type callbacksRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *handler) enableCallbacks(w http.ResponseWriter, r *http.Request) {
	var req callbacksRequest
	if err := decodeBody(r, &req); err != nil {
		jsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	res := h.core.EnableCallbacks(req.Enabled)
	jsonResponse(w, serviceResultStatus(res), res)
}
