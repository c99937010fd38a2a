package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dealer-syndication/internal/apperr"
	"github.com/iliyamo/dealer-syndication/internal/logging"
)

// ErrorHandler renders every error as {"error": kind, "message": ...,
// "fields": [...]} with the status of its kind.  Errors that are not
// *apperr.Error are logged and reported as internal without detail.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	ctx := c.Request().Context()

	var he *echo.HTTPError
	if errors.As(err, &he) {
		kind := "http_error"
		switch he.Code {
		case http.StatusNotFound:
			kind = string(apperr.KindNotFound)
		case http.StatusUnauthorized:
			kind = string(apperr.KindUnauthorized)
		case http.StatusMethodNotAllowed:
			kind = "method_not_allowed"
		}
		_ = c.JSON(he.Code, echo.Map{"error": kind, "message": http.StatusText(he.Code)})
		return
	}

	var ae *apperr.Error
	if !errors.As(err, &ae) {
		logging.Ctx(ctx).Error().Err(err).Str("route", c.Path()).Msg("unhandled error")
		_ = c.JSON(http.StatusInternalServerError, echo.Map{"error": apperr.KindInternal, "message": "internal error"})
		return
	}
	body := echo.Map{"error": ae.Kind, "message": ae.Message}
	if len(ae.Fields) > 0 {
		body["fields"] = ae.Fields
	}
	if ae.Kind == apperr.KindUpstream {
		body["retryable"] = ae.Retryable
		logging.Ctx(ctx).Warn().Err(err).Msg("upstream failure")
	}
	_ = c.JSON(apperr.HTTPStatus(ae.Kind), body)
}

// bind decodes the JSON body into v.  Malformed bodies are validation
// errors rather than echo's plain 400.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return apperr.Field("body", "malformed JSON body")
	}
	return nil
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Field(name, "must be a positive integer")
	}
	return id, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Field(name, "must be an integer")
	}
	return n, nil
}

// queryInt64 parses an optional int64 query parameter into a pointer.
func queryInt64(c echo.Context, name string) (*int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, apperr.Field(name, "must be an integer")
	}
	return &n, nil
}
