package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/forestwatch-backend-go/internal/editor"
	"github.com/jengzang/forestwatch-backend-go/internal/grid"
	"github.com/jengzang/forestwatch-backend-go/internal/service"
	"github.com/jengzang/forestwatch-backend-go/internal/tiles"
	"github.com/jengzang/forestwatch-backend-go/internal/upstream"
	"github.com/jengzang/forestwatch-backend-go/pkg/response"
)

// statusOf maps domain errors to HTTP status codes
func statusOf(err error) int {
	var fe *upstream.FetchError
	switch {
	case errors.Is(err, service.ErrInvalid),
		errors.Is(err, editor.ErrInvalidGeometry):
		return http.StatusBadRequest
	case errors.Is(err, grid.ErrBlocked):
		return http.StatusForbidden
	case errors.Is(err, grid.ErrNotInWork),
		errors.Is(err, grid.ErrNotInGrid),
		errors.Is(err, grid.ErrNoRetry),
		errors.Is(err, grid.ErrNoParent),
		errors.Is(err, editor.ErrNoTarget),
		errors.Is(err, editor.ErrNoAction),
		errors.Is(err, editor.ErrToolInactive),
		errors.Is(err, tiles.ErrNotReady),
		errors.Is(err, tiles.ErrSuperseded):
		return http.StatusConflict
	case errors.As(err, &fe):
		if fe.Kind == upstream.KindTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, message string, err error) {
	response.Error(c, statusOf(err), message, err)
}
