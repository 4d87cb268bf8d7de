package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/RunRun-labs/RunRun-Backend-sub001/internal/battle"
	"github.com/RunRun-labs/RunRun-Backend-sub001/pkg/battledto"
)

func TestToDomainError(t *testing.T) {
	cases := []struct {
		err        error
		wantCode   string
		wantStatus int
	}{
		{battle.ErrNotFound, battledto.CodeNotFound, http.StatusNotFound},
		{battle.ErrForbidden, battledto.CodeForbidden, http.StatusForbidden},
		{battle.ErrInvalidState, battledto.CodeInvalidState, http.StatusConflict},
		{battle.ErrInvalidArgs, battledto.CodeInvalidState, http.StatusBadRequest},
		{errors.New("redis down"), battledto.CodeInternalError, http.StatusInternalServerError},
		// wrapped coordinator errors still map to their taxonomy entry
		{fmt.Errorf("toggle ready: %w", battle.ErrInvalidState), battledto.CodeInvalidState, http.StatusConflict},
	}
	for _, c := range cases {
		got := toDomainError(c.err)
		if got.Code != c.wantCode || got.HTTPStatus != c.wantStatus {
			t.Fatalf("toDomainError(%v) = %s/%d, want %s/%d", c.err, got.Code, got.HTTPStatus, c.wantCode, c.wantStatus)
		}
	}
}
