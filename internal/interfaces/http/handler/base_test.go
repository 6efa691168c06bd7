package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/remittance/internal/domain/shared"
	"github.com/erp/remittance/internal/interfaces/http/dto"
	"github.com/erp/remittance/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set(middleware.RequestIDKey, "req-7")
	return c, w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestBaseHandler_Success(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext()

	h.Success(c, gin.H{"payment_id": "PMT-1"})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
}

func TestBaseHandler_Created(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext()

	h.Created(c, gin.H{"payment_id": "PMT-1"})

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "payment not found",
			err:        shared.NewPaymentNotFoundError("REF-1"),
			wantStatus: http.StatusNotFound,
			wantCode:   dto.ErrCodePaymentNotFound,
		},
		{
			name:       "wrapped invalid monetary value",
			err:        fmt.Errorf("normalize: %w", shared.NewInvalidMonetaryValueError("amount_paid", "abc", errors.New("bad"))),
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.ErrCodeInvalidMonetaryValue,
		},
		{
			name:       "persistence",
			err:        shared.NewPersistenceError("upsert payment", errors.New("connection reset")),
			wantStatus: http.StatusInternalServerError,
			wantCode:   dto.ErrCodePersistence,
		},
		{
			name:       "plain error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   dto.ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			c, w := newTestContext()

			h.HandleError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeBody(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, "req-7", resp.Error.RequestID)
		})
	}

	t.Run("plain error message is not exposed", func(t *testing.T) {
		h := &BaseHandler{}
		c, w := newTestContext()

		h.HandleError(c, errors.New("dial tcp 10.0.0.5:5432"))

		assert.NotContains(t, w.Body.String(), "10.0.0.5")
		assert.Len(t, c.Errors, 1)
	})

	t.Run("nil error writes nothing", func(t *testing.T) {
		h := &BaseHandler{}
		c, w := newTestContext()

		h.HandleError(c, nil)

		assert.Empty(t, w.Body.String())
	})
}
