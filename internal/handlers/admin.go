package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/nvplabs/nvp-backend/internal/repository"
	"github.com/nvplabs/nvp-backend/internal/services"
	"github.com/nvplabs/nvp-backend/pkg/clientip"
)

var adminService *services.AdminDeviceService

// InitAdminHandlers wires the admin service constructed in main.
func InitAdminHandlers(s *services.AdminDeviceService) {
	adminService = s
}

// AdminListDevices handles GET /api/admin/devices with optional filters:
// status, platform, manual_override, search, limit, offset.
func AdminListDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.ListFilter{
		Status:   q.Get("status"),
		Platform: q.Get("platform"),
		Search:   q.Get("search"),
	}
	if v := q.Get("manual_override"); v != "" {
		override := v == "true"
		filter.ManualOverride = &override
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	devices, total, err := adminService.ListDevices(r.Context(), filter)
	if err != nil {
		log.Printf("[admin/devices] list error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"devices": devices,
		"total":   total,
	})
}

// AdminGetDevice handles GET /api/admin/devices/detail?device_id=...
func AdminGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	device, err := adminService.GetDevice(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			writeError(w, http.StatusNotFound, "Device not found")
			return
		}
		log.Printf("[admin/devices] get error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load device")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"device":  device,
	})
}

// AdminStats handles GET /api/admin/stats.
func AdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := adminService.Stats(r.Context())
	if err != nil {
		log.Printf("[admin/stats] error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stats":   stats,
	})
}

// AdminDeviceActionRequest is the manual device operation payload.
type AdminDeviceActionRequest struct {
	DeviceID string `json:"device_id" validate:"required,max=255"`
	Action   string `json:"action" validate:"required,oneof=activate ban unban extend_trial reset_trial set_expiry set_override add_note"`
	Days     int    `json:"days" validate:"omitempty,gt=0"`
	Expiry   string `json:"expiry,omitempty"`
	Override bool   `json:"override,omitempty"`
	Note     string `json:"note,omitempty"`
	AdminID  string `json:"admin_id,omitempty"`
}

// AdminDeviceAction handles PUT /api/admin/devices/action.
func AdminDeviceAction(w http.ResponseWriter, r *http.Request) {
	var req AdminDeviceActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	device, err := adminService.ApplyAction(r.Context(), services.AdminActionInput{
		DeviceID: req.DeviceID,
		Action:   req.Action,
		Days:     req.Days,
		Expiry:   req.Expiry,
		Override: req.Override,
		Note:     req.Note,
		AdminID:  req.AdminID,
		IP:       clientip.RealClientIP(r),
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDeviceNotFound):
			writeError(w, http.StatusNotFound, "Device not found")
		case errors.Is(err, services.ErrInvalidAction):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("[admin/devices] action %s error: %v", req.Action, err)
			writeError(w, http.StatusInternalServerError, "Failed to apply action")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"device":  device,
	})
}

// AdminRegeneratePinRequest asks for a fresh PIN for one device.
type AdminRegeneratePinRequest struct {
	DeviceID string `json:"device_id" validate:"required,max=255"`
	AdminID  string `json:"admin_id,omitempty"`
}

// AdminRegeneratePin handles POST /api/admin/devices/regenerate-pin.
// The plaintext PIN appears in this response and nowhere else afterwards.
func AdminRegeneratePin(w http.ResponseWriter, r *http.Request) {
	var req AdminRegeneratePinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	pin, err := adminService.RegeneratePIN(r.Context(), req.DeviceID, req.AdminID, clientip.RealClientIP(r))
	if err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			writeError(w, http.StatusNotFound, "Device not found")
			return
		}
		log.Printf("[admin/regenerate-pin] error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to regenerate PIN")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"pin":     pin,
	})
}
