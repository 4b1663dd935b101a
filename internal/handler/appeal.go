package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/moderation-escalation/internal/service"
)

// AppealHandler exposes the appeal workflow to users and admins.
type AppealHandler struct {
	Appeals *service.Appeals
}

// NewAppealHandler constructs an AppealHandler.
func NewAppealHandler(a *service.Appeals) *AppealHandler {
	if a == nil {
		panic("nil service passed to NewAppealHandler")
	}
	return &AppealHandler{Appeals: a}
}

type submitAppealRequest struct {
	SuspensionID uint64 `json:"suspension_id"`
	AppealReason string `json:"appeal_reason"`
}

// Submit handles POST /v1/me/appeals.
func (h *AppealHandler) Submit(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req submitAppealRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if req.SuspensionID == 0 {
		return badRequest(c, "suspension_id is required")
	}
	ap, err := h.Appeals.Submit(c.Request().Context(), userID, req.SuspensionID, req.AppealReason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, ap)
}

// ListMine handles GET /v1/me/appeals.
func (h *AppealHandler) ListMine(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	list, err := h.Appeals.ListForUser(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// List handles GET /v1/admin/appeals?status=&page=&limit=.
func (h *AppealHandler) List(c echo.Context) error {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return respondError(c, err)
	}
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		return respondError(c, err)
	}
	list, err := h.Appeals.List(c.Request().Context(), c.QueryParam("status"), page, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list, "page": page, "limit": limit})
}

// Stats handles GET /v1/admin/appeals/stats.
func (h *AppealHandler) Stats(c echo.Context) error {
	st, err := h.Appeals.Stats(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

type reviewAppealRequest struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes"`
}

// Review handles POST /v1/admin/appeals/:id/review.
func (h *AppealHandler) Review(c echo.Context) error {
	adminID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	appealID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req reviewAppealRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	decision, err := service.ParseDecision(req.Decision)
	if err != nil {
		return respondError(c, err)
	}
	out, err := h.Appeals.Review(c.Request().Context(), appealID, adminID, decision, req.Notes)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
