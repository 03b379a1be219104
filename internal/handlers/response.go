package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Byeongcheol-Kim/graphchat/internal/graph"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/apierr"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

// RespondServiceError maps service and storage failures onto the HTTP error
// taxonomy: not-found 404, validation 400, conflict 409, storage outage 503,
// anything else 500.
func RespondServiceError(c *gin.Context, log *logger.Logger, err error) {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		RespondError(c, apiErr.Status, apiErr.Code, apiErr)
		return
	}

	switch kind := graph.KindOf(err); kind {
	case graph.KindNotFound:
		RespondError(c, http.StatusNotFound, kind.String(), err)
	case graph.KindConflict:
		RespondError(c, http.StatusConflict, kind.String(), err)
	case graph.KindUnavailable:
		log.Error("Storage unavailable", "error", err)
		RespondError(c, http.StatusServiceUnavailable, kind.String(), err)
	case graph.KindMalformed:
		log.Error("Malformed storage payload", "error", err)
		RespondError(c, http.StatusInternalServerError, kind.String(), err)
	default:
		log.Error("Unhandled error", "error", err)
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
