package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/nvplabs/nvp-backend/internal/repository"
	"github.com/nvplabs/nvp-backend/internal/services"
	"github.com/nvplabs/nvp-backend/pkg/clientip"
)

var (
	registrationEngine *services.RegistrationEngine
	statusEngine       *services.StatusEngine
)

// InitDeviceHandlers wires the engines constructed in main into the
// package-level handlers the router references.
func InitDeviceHandlers(reg *services.RegistrationEngine, status *services.StatusEngine) {
	registrationEngine = reg
	statusEngine = status
}

// RegisterDeviceRequest is the device registration payload.
type RegisterDeviceRequest struct {
	DeviceID      string `json:"device_id" validate:"required,max=255"`
	Platform      string `json:"platform" validate:"required,oneof=android ios windows mac"`
	OSVersion     string `json:"os_version" validate:"required,max=100"`
	DeviceModel   string `json:"device_model" validate:"required,max=255"`
	Architecture  string `json:"architecture" validate:"required,oneof=arm64 x64"`
	PlayerVersion string `json:"player_version" validate:"required,max=50"`
	AppBuild      int    `json:"app_build" validate:"omitempty,gt=0"`
}

// DeviceStatusRequest is the status check payload.
type DeviceStatusRequest struct {
	DeviceID string `json:"device_id" validate:"required,max=255"`
}

// RegisterDevice handles POST /api/device/register.
// Responds 201 with the one-time PIN when this call created the record,
// 200 without a PIN for any repeat contact.
func RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if req.AppBuild == 0 {
		req.AppBuild = 1
	}

	resp, isNew, err := registrationEngine.Register(r.Context(), services.RegisterInput{
		DeviceID:      req.DeviceID,
		Platform:      req.Platform,
		OSVersion:     req.OSVersion,
		DeviceModel:   req.DeviceModel,
		Architecture:  req.Architecture,
		PlayerVersion: req.PlayerVersion,
		AppBuild:      req.AppBuild,
		IPAddress:     clientip.RealClientIP(r),
	})
	if err != nil {
		if errors.Is(err, services.ErrUIDExhausted) {
			log.Printf("[device/register] uid space exhausted: %v", err)
			writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable, please retry")
			return
		}
		log.Printf("[device/register] error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

// DeviceStatus handles POST /api/device/status.
func DeviceStatus(w http.ResponseWriter, r *http.Request) {
	var req DeviceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	resp, err := statusEngine.CheckStatus(r.Context(), req.DeviceID, clientip.RealClientIP(r))
	if err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			writeError(w, http.StatusNotFound, "Device not found")
			return
		}
		log.Printf("[device/status] error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
