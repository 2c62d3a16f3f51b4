package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eigerco/attestd/internal/statetransition"
	"github.com/eigerco/attestd/internal/txpool"
	"github.com/eigerco/attestd/pkg/log"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: message})
}

// writeError maps state transition and admission errors to responses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, txpool.ErrAlreadyKnown):
		writeErrorCode(c, http.StatusBadRequest, "ALREADY_KNOWN", err.Error())
		return
	case errors.Is(err, txpool.ErrTooLowPriority):
		writeErrorCode(c, http.StatusBadRequest, "TOO_LOW_PRIORITY", err.Error())
		return
	}

	code := statetransition.ErrorCode(err)
	switch code {
	case "":
		log.API.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	case "NOT_AUTHENTICATED":
		writeErrorCode(c, http.StatusUnauthorized, code, err.Error())
	case "NOT_AUTHORIZED":
		writeErrorCode(c, http.StatusForbidden, code, err.Error())
	default:
		writeErrorCode(c, http.StatusBadRequest, code, err.Error())
	}
}
