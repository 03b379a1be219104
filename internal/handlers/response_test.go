package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Byeongcheol-Kim/graphchat/internal/graph"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/apierr"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func respond(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	RespondServiceError(c, mustTestLogger(t), err)
	return rec
}

func TestRespondServiceErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "store not found", err: graph.NotFound("node.get", errors.New("no rows")), wantStatus: http.StatusNotFound, wantCode: "not_found"},
		{name: "store conflict", err: graph.Conflict("session.create", errors.New("dup")), wantStatus: http.StatusConflict, wantCode: "conflict"},
		{name: "store unavailable", err: graph.Unavailable("session.get", errors.New("refused")), wantStatus: http.StatusServiceUnavailable, wantCode: "unavailable"},
		{name: "validation", err: apierr.Validation(errors.New("title required")), wantStatus: http.StatusBadRequest, wantCode: "validation"},
		{name: "api conflict", err: apierr.Conflict(errors.New("dismissed")), wantStatus: http.StatusConflict, wantCode: "conflict"},
		{name: "unknown", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := respond(t, tc.err)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status: want=%d got=%d", tc.wantStatus, rec.Code)
			}
			var envelope ErrorEnvelope
			if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
				t.Fatalf("unmarshal body: %v", err)
			}
			if envelope.Error.Code != tc.wantCode {
				t.Fatalf("code: want=%q got=%q", tc.wantCode, envelope.Error.Code)
			}
			if envelope.Error.Message == "" {
				t.Fatal("error message must not be empty")
			}
		})
	}
}

func TestRespondServiceErrorUnwrapsWrappedStoreError(t *testing.T) {
	wrapped := errors.Join(errors.New("outer"), graph.NotFound("message.get", errors.New("no rows")))
	rec := respond(t, wrapped)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("wrapped store error must still map, got %d", rec.Code)
	}
}
