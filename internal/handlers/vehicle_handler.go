package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"control-room/gateway/internal/adapters"
	"control-room/gateway/internal/middleware"
	"control-room/gateway/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// maxVehicleBody upper bound on the lookup request body
const maxVehicleBody = 64 << 10

// vehicleLookupRequest inbound lookup body
type vehicleLookupRequest struct {
	RegistrationNumber string `json:"registrationNumber" validate:"required"`
}

var vehicleValidator = validator.New()

// handleDVLAHealth DVLA configuration, no upstream I/O
// GET /dvla/health
func (h *GatewayHandler) handleDVLAHealth(c *gin.Context, _ *types.Route, _ string) {
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"configured": h.vehicles.Configured(),
		"endpoint":   h.vehicles.Endpoint(),
	})
}

// handleVehicle vehicle lookup by registration mark
// POST /dvla/vehicle {"registrationNumber": "..."}
func (h *GatewayHandler) handleVehicle(c *gin.Context, _ *types.Route, _ string) {
	requestID := c.GetString(middleware.ContextRequestID)

	// 1. Read body, empty means {}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxVehicleBody))
	if err != nil {
		h.badRequest(c, "Invalid JSON body")
		return
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	var req vehicleLookupRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.badRequest(c, "Invalid JSON body")
		return
	}

	// 2. Normalize, then validate
	req.RegistrationNumber = adapters.NormalizeRegistration(req.RegistrationNumber)
	if err := vehicleValidator.Struct(req); err != nil {
		h.badRequest(c, "registrationNumber is required")
		return
	}

	// 3. Lookup
	result, err := h.vehicles.LookupVehicle(c.Request.Context(), req.RegistrationNumber)
	if err != nil {
		h.logger.Warnf("[%s] vehicle lookup: %v", requestID, err)
		h.configMissing(c, adapters.EnvDVLAKey)
		return
	}
	if result.Kind == types.CallTransportError {
		detail := ""
		if result.Err != nil {
			detail = result.Err.Error()
		}
		h.writeError(c, http.StatusBadGateway, types.ErrorResponse{
			Error:  "DVLA upstream failed",
			Code:   types.ErrCodeBadGateway,
			Detail: detail,
		})
		return
	}

	// 4. Relay status and body
	contentType := result.ContentType
	if contentType == "" || result.StatusCode >= http.StatusBadRequest {
		contentType = "application/json"
	}
	if c.Writer.Header().Get("Access-Control-Allow-Origin") == "" {
		c.Header("Access-Control-Allow-Origin", "*")
	}
	c.Data(result.StatusCode, contentType, result.Body)
}
