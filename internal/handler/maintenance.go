package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/moderation-escalation/internal/service"
)

// MaintenanceHandler broadcasts maintenance notices.
type MaintenanceHandler struct {
	Tracker *service.AckTracker
}

type maintenanceRequest struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Message string    `json:"message"`
}

// Notify handles POST /v1/admin/maintenance/notify.  A window that was
// already announced answers 200 with sent=false.
func (h *MaintenanceHandler) Notify(c echo.Context) error {
	var req maintenanceRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "start and end must be RFC3339 timestamps")
	}
	sent, err := h.Tracker.NotifyMaintenance(c.Request().Context(), req.Start, req.End, req.Message)
	if err != nil {
		return respondError(c, err)
	}
	status := http.StatusOK
	if sent {
		status = http.StatusAccepted
	}
	return c.JSON(status, echo.Map{
		"sent":      sent,
		"event_key": service.MaintenanceEventKey(req.Start, req.End),
	})
}
