package handler // handler defines http handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/moderation-escalation/internal/apperror"
	"github.com/iliyamo/moderation-escalation/internal/middleware"
)

// getUserID extracts the authenticated user id from echo.Context.
func getUserID(c echo.Context) (uint64, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0, errors.New("invalid user_id in context")
	}
	return id, nil
}

// pathID parses the named path parameter as a positive integer id.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.Validation("invalid_id", "invalid "+name)
	}
	return id, nil
}

// queryInt reads an optional integer query parameter; def is returned when
// the parameter is absent.
func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.Validation("invalid_query", "invalid "+name)
	}
	return n, nil
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "unauthorized"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": msg})
}

// respondError writes err as {"error": reason, "message": text} with the
// status that matches its kind.  Persistence details are logged, not
// returned.
func respondError(c echo.Context, err error) error {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		log.Error().Err(err).Str("component", "http").Str("path", c.Path()).Msg("unclassified error")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error", "message": "internal error"})
	}
	status := http.StatusInternalServerError
	switch appErr.Kind {
	case apperror.KindValidation:
		status = http.StatusBadRequest
	case apperror.KindNotFound:
		status = http.StatusNotFound
	case apperror.KindConflict:
		status = http.StatusConflict
	case apperror.KindPersistence:
		log.Error().Err(appErr.Err).Str("component", "http").Str("path", c.Path()).Msg(appErr.Message)
	}
	return c.JSON(status, echo.Map{"error": appErr.Reason, "message": appErr.Message})
}
