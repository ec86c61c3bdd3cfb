package enrollhandler

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/MapleMaven/esp32-sram-puf/enrollment"
	"github.com/MapleMaven/esp32-sram-puf/interfaces"
	"github.com/MapleMaven/esp32-sram-puf/metrics"
	"github.com/MapleMaven/esp32-sram-puf/sram"
)

// BootReport is the request body a device agent posts after each boot.
type BootReport struct {
	// ResetCause is the hardware-reported cause name, e.g. "power-on".
	ResetCause string `json:"reset_cause"`

	// Sample is the base64-encoded power-up SRAM image. It may be omitted
	// on boots the device already knows will be rejected, but must be
	// present for any genuine power-on while enrollment is incomplete.
	Sample string `json:"sample,omitempty"`
}

// BootResponse reports the enrollment outcome of one boot.
type BootResponse struct {
	Event  string `json:"event"`
	State  string `json:"state"`
	Round  int    `json:"round"`
	Rounds int    `json:"rounds"`
	Prompt string `json:"prompt,omitempty"`

	StableBits int    `json:"stable_bits,omitempty"`
	TotalBits  int    `json:"total_bits,omitempty"`
	Key        string `json:"key,omitempty"`
}

// StatusResponse reports a device's enrollment state.
type StatusResponse struct {
	State      string `json:"state"`
	Round      int    `json:"round"`
	Rounds     int    `json:"rounds"`
	StableBits int    `json:"stable_bits,omitempty"`
	TotalBits  int    `json:"total_bits,omitempty"`
}

// Handler processes enrollment boot reports from device agents. Each
// device's record lives in its own storage namespace; reports for the same
// device are serialized so a step sees a consistent record.
type Handler struct {
	controller *enrollment.Controller
	backend    interfaces.KVBackend
	log        *slog.Logger

	deviceLocks sync.Map // DeviceID -> *sync.Mutex
}

// NewHandler creates a new HTTP request handler.
func NewHandler(controller *enrollment.Controller, backend interfaces.KVBackend, log *slog.Logger) *Handler {
	return &Handler{
		controller: controller,
		backend:    backend,
		log:        log,
	}
}

// RegisterRoutes mounts the enrollment API.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/device/{device_id}/boot", h.HandleBoot)
	r.Get("/api/device/{device_id}/status", h.HandleStatus)
	r.Post("/api/device/{device_id}/reset", h.HandleReset)
}

// HandleBoot runs one enrollment step for the reporting device.
//
// URL format: POST /api/device/{device_id}/boot
//
// The JSON body carries the boot's reset cause and, base64-encoded, the
// power-up SRAM image. The response reports the resulting state, the
// operator prompt for the next step, and on completion the stability
// diagnostic and hex-encoded final key.
func (h *Handler) HandleBoot(w http.ResponseWriter, r *http.Request) {
	device, err := interfaces.NewDeviceID(chi.URLParam(r, "device_id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var report BootReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, fmt.Errorf("invalid boot report: %w", err).Error(), http.StatusBadRequest)
		return
	}

	cause, err := interfaces.ParseResetCause(report.ResetCause)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	source, err := h.sampleSource(report)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	unlock := h.lockDevice(device)
	defer unlock()

	outcome, err := h.controller.Step(r.Context(), h.backend.Namespace(device.String()), cause, source)
	if err != nil {
		h.log.Error("Boot step failed", slog.String("device", device.String()), "err", err)
		http.Error(w, "enrollment step failed", http.StatusInternalServerError)
		return
	}

	metrics.RecordBootReport(outcome.Event.String())
	switch outcome.Event {
	case enrollment.EventFinalized:
		metrics.RecordEnrollmentComplete(device.String(), outcome.StableBits, outcome.TotalBits)
	case enrollment.EventCorruptionRepaired, enrollment.EventPersistFailed:
		metrics.RecordStorageError()
	}

	resp := BootResponse{
		Event:  outcome.Event.String(),
		State:  outcome.State.String(),
		Round:  outcome.Round,
		Rounds: outcome.Rounds,
		Prompt: outcome.Prompt,
	}
	if outcome.Key != nil {
		resp.StableBits = outcome.StableBits
		resp.TotalBits = outcome.TotalBits
		resp.Key = outcome.Key.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleStatus reports the device's enrollment state.
//
// URL format: GET /api/device/{device_id}/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	device, err := interfaces.NewDeviceID(chi.URLParam(r, "device_id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	unlock := h.lockDevice(device)
	defer unlock()

	outcome, err := h.controller.Status(r.Context(), h.backend.Namespace(device.String()))
	if err != nil {
		h.log.Error("Status query failed", slog.String("device", device.String()), "err", err)
		http.Error(w, "status query failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		State:      outcome.State.String(),
		Round:      outcome.Round,
		Rounds:     outcome.Rounds,
		StableBits: outcome.StableBits,
		TotalBits:  outcome.TotalBits,
	})
}

// HandleReset performs the manual reset operation: the device's namespace
// is cleared back to the uninitialized state. Deliberately out-of-band;
// nothing in the normal enrollment flow calls this.
//
// URL format: POST /api/device/{device_id}/reset
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	device, err := interfaces.NewDeviceID(chi.URLParam(r, "device_id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	unlock := h.lockDevice(device)
	defer unlock()

	if err := h.controller.Reset(r.Context(), h.backend.Namespace(device.String())); err != nil {
		h.log.Error("Manual reset failed", slog.String("device", device.String()), "err", err)
		http.Error(w, "reset failed", http.StatusInternalServerError)
		return
	}

	h.log.Info("Enrollment record erased", slog.String("device", device.String()))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) sampleSource(report BootReport) (sram.SampleSource, error) {
	if report.Sample == "" {
		// The controller only consults the source on an accepted genuine
		// boot; a missing sample then surfaces as a step error.
		return sram.SourceFunc(func() ([]byte, error) {
			return nil, fmt.Errorf("boot report carries no sample")
		}), nil
	}

	raw, err := base64.StdEncoding.DecodeString(report.Sample)
	if err != nil {
		return nil, fmt.Errorf("invalid sample encoding: %w", err)
	}
	return sram.NewStaticSource(raw, h.controller.Config().SampleSize)
}

func (h *Handler) lockDevice(device interfaces.DeviceID) func() {
	v, _ := h.deviceLocks.LoadOrStore(device, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
