package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/broadbill/broadbill/internal/payment"
	"github.com/broadbill/broadbill/internal/plan"
	"github.com/broadbill/broadbill/internal/zone"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func recordError(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	AbortWithError(c, zap.NewNop(), err)
	return rec
}

func TestAbortWithErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", zone.ErrNotFound, http.StatusNotFound},
		{"settled invoice", payment.ErrInvoiceAlreadyPaid, http.StatusNotFound},
		{"conflict", plan.ErrPlanInUse, http.StatusConflict},
		{"validation", payment.ErrInvalidAmount, http.StatusBadRequest},
		{"invalid state", payment.ErrInvalidState, http.StatusBadRequest},
		{"inconsistency", payment.ErrInternalInconsistency, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := recordError(t, tc.err)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestSignatureMismatchKeepsLegacyShape(t *testing.T) {
	rec := recordError(t, payment.ErrSignatureMismatch)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := rec.Body.String(); got != `{"message":"Transaction not legit!"}` {
		t.Fatalf("body = %s", got)
	}
}

func TestUnknownErrorHidesDetails(t *testing.T) {
	rec := recordError(t, errors.New("pq: connection reset"))
	if got := rec.Body.String(); got != `{"message":"internal server error","code":"internal"}` {
		t.Fatalf("body = %s, internals must not leak", got)
	}
}
