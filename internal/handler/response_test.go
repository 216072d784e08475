package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/streamhaven/entitlement-api/pkg/errors"
)

func writeTo(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	WriteError(c, err)
	return rec
}

func TestWriteErrorLockTimeout(t *testing.T) {
	rec := writeTo(t, apperrors.LockTimeout(errors.New("lock wait exceeded")))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), string(apperrors.CodeLockTimeout))
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rec := writeTo(t, errors.New("pq: connection reset"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get("Retry-After"))
	assert.NotContains(t, rec.Body.String(), "pq:")
}

func TestWriteErrorConflictCodes(t *testing.T) {
	rec := writeTo(t, &apperrors.AppError{Code: apperrors.CodeFamilyFull, Message: "no free seats"})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "FAMILY_FULL")
}
