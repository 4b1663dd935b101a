package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/moderation-escalation/internal/policy"
	"github.com/iliyamo/moderation-escalation/internal/service"
)

// ModerationHandler exposes violation recording, lifts and moderation
// queries.
type ModerationHandler struct {
	Moderator *service.Moderator
	Ledger    *service.Ledger
	Audit     *service.Auditor
}

// NewModerationHandler constructs a ModerationHandler and panics if any
// dependency is nil.
func NewModerationHandler(m *service.Moderator, l *service.Ledger, a *service.Auditor) *ModerationHandler {
	if m == nil || l == nil || a == nil {
		panic("nil service passed to NewModerationHandler")
	}
	return &ModerationHandler{Moderator: m, Ledger: l, Audit: a}
}

type classifierViolationRequest struct {
	ViolationType     string             `json:"violation_type"`
	ContentID         string             `json:"content_id"`
	ContentText       string             `json:"content_text"`
	FlaggedCategories map[string]bool    `json:"flagged_categories"`
	CategoryScores    map[string]float64 `json:"category_scores"`
	ViolationSummary  string             `json:"violation_summary"`
	ReportID          *uint64            `json:"report_id"`
}

// RecordViolation handles POST /v1/internal/users/:id/violations.  It is
// called by the classifier and always applies the automatic escalation
// path.
func (h *ModerationHandler) RecordViolation(c echo.Context) error {
	userID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req classifierViolationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	out, err := h.Moderator.ApplyModerationAction(c.Request().Context(), service.ModerationRequest{
		UserID:            userID,
		ViolationType:     req.ViolationType,
		ContentID:         req.ContentID,
		ContentText:       req.ContentText,
		Action:            policy.ActionAutomatic,
		ReportID:          req.ReportID,
		FlaggedCategories: req.FlaggedCategories,
		CategoryScores:    req.CategoryScores,
		ViolationSummary:  req.ViolationSummary,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

type adminModerationRequest struct {
	Action        string  `json:"action"`
	AdminReason   string  `json:"admin_reason"`
	ViolationType string  `json:"violation_type"`
	ContentID     string  `json:"content_id"`
	ContentText   string  `json:"content_text"`
	ReportID      *uint64 `json:"report_id"`
}

// Moderate handles POST /v1/admin/users/:id/moderation.
func (h *ModerationHandler) Moderate(c echo.Context) error {
	adminID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	userID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req adminModerationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	action, err := policy.ParseAdminAction(req.Action)
	if err != nil {
		return respondError(c, err)
	}
	out, err := h.Moderator.ApplyModerationAction(c.Request().Context(), service.ModerationRequest{
		UserID:        userID,
		ViolationType: req.ViolationType,
		ContentID:     req.ContentID,
		ContentText:   req.ContentText,
		AdminReason:   req.AdminReason,
		Action:        action,
		ReportID:      req.ReportID,
		AdminID:       &adminID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

type liftRequest struct {
	Reason string `json:"reason"`
}

// LiftUser handles POST /v1/admin/users/:id/lift: lifts the user's most
// recent active suspension.
func (h *ModerationHandler) LiftUser(c echo.Context) error {
	adminID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	userID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req liftRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	s, err := h.Ledger.LiftActiveForUser(c.Request().Context(), userID, adminID, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// LiftSuspension handles POST /v1/admin/suspensions/:id/lift.
func (h *ModerationHandler) LiftSuspension(c echo.Context) error {
	adminID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	suspensionID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req liftRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	s, err := h.Ledger.Lift(c.Request().Context(), suspensionID, adminID, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// subject resolves the user a query is about: the :id path parameter on
// admin routes, the caller on /v1/me routes.
func subject(c echo.Context) (uint64, error) {
	if c.Param("id") != "" {
		return pathID(c, "id")
	}
	return getUserID(c)
}

// Status handles GET /v1/me/moderation and GET /v1/admin/users/:id/moderation.
func (h *ModerationHandler) Status(c echo.Context) error {
	userID, err := subject(c)
	if err != nil {
		return respondError(c, err)
	}
	st, err := h.Ledger.GetStatus(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Violations handles GET /v1/me/violations and GET /v1/admin/users/:id/violations.
func (h *ModerationHandler) Violations(c echo.Context) error {
	userID, err := subject(c)
	if err != nil {
		return respondError(c, err)
	}
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return respondError(c, err)
	}
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		return respondError(c, err)
	}
	res, err := h.Moderator.GetViolations(c.Request().Context(), userID, page, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Suspensions handles GET /v1/me/suspensions and GET /v1/admin/users/:id/suspensions.
func (h *ModerationHandler) Suspensions(c echo.Context) error {
	userID, err := subject(c)
	if err != nil {
		return respondError(c, err)
	}
	list, err := h.Ledger.Query(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// Acknowledge handles POST /v1/me/suspensions/:id/acknowledge.
func (h *ModerationHandler) Acknowledge(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	suspensionID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	s, err := h.Ledger.Acknowledge(c.Request().Context(), userID, suspensionID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// AuditLog handles GET /v1/admin/users/:id/audit.
func (h *ModerationHandler) AuditLog(c echo.Context) error {
	userID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		return respondError(c, err)
	}
	entries, err := h.Audit.ListForUser(c.Request().Context(), userID, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": entries})
}
