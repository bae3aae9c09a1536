package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"taskboard/domain"
)

// respondError maps service errors onto HTTP responses. NotFound messages
// name the entity but never say whether it is absent or foreign.
func respondError(c echo.Context, err error) error {
	status, body, stage := classify(err)
	observe(c).SetErrorStage(stage)
	if status == http.StatusInternalServerError {
		c.Logger().Error(err)
		observe(c).SetError(err)
	}
	return c.JSON(status, body)
}

func classify(err error) (int, errorResponse, string) {
	var (
		nf   *domain.NotFoundError
		verr *domain.ValidationError
	)
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, errorResponse{Error: domain.ErrUnauthenticated.Error()}, "identity"
	case errors.Is(err, errInvalidBody):
		return http.StatusBadRequest, errorResponse{Error: "Validation error", Details: []domain.FieldError{{Field: "body", Message: "invalid body"}}}, "decode"
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorResponse{Error: "Validation error", Details: verr.Fields}, "validation"
	case errors.As(err, &nf):
		return http.StatusNotFound, errorResponse{Error: nf.Error()}, "not_found"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "Not found"}, "not_found"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusBadRequest, errorResponse{Error: "Username already exists"}, "conflict"
	default:
		return http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"}, "store"
	}
}

func nullField(field string) error {
	return &domain.ValidationError{Fields: []domain.FieldError{{Field: field, Message: "must not be null"}}}
}
