package gateway

import (
	"errors"
	"net/http"

	"github.com/RunRun-labs/RunRun-Backend-sub001/internal/battle"
	"github.com/RunRun-labs/RunRun-Backend-sub001/pkg/battledto"
)

// toDomainError maps coordinator errors onto the structured error taxonomy
// carried by ERROR notices.
func toDomainError(err error) battledto.DomainError {
	switch {
	case errors.Is(err, battle.ErrNotFound):
		return battledto.DomainError{Code: battledto.CodeNotFound, HTTPStatus: http.StatusNotFound}
	case errors.Is(err, battle.ErrForbidden):
		return battledto.DomainError{Code: battledto.CodeForbidden, HTTPStatus: http.StatusForbidden}
	case errors.Is(err, battle.ErrInvalidState):
		return battledto.DomainError{Code: battledto.CodeInvalidState, HTTPStatus: http.StatusConflict}
	case errors.Is(err, battle.ErrInvalidArgs):
		return battledto.DomainError{Code: battledto.CodeInvalidState, HTTPStatus: http.StatusBadRequest}
	default:
		return battledto.DomainError{Code: battledto.CodeInternalError, HTTPStatus: http.StatusInternalServerError}
	}
}
