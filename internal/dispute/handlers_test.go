package dispute

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amoree/amoree/internal/booking"
	"github.com/amoree/amoree/internal/wallet"
)

func setupRouter(t *testing.T, caller string) (*gin.Engine, *fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newFixture(t)
	h := NewHandler(f.disputes)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if caller != "" {
			c.Set("authUserID", caller)
		}
	})
	v1 := r.Group("/v1")
	h.RegisterProtectedRoutes(v1)
	h.RegisterAdminRoutes(v1)
	return r, f
}

func postResolve(t *testing.T, r *gin.Engine, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/resolve-dispute", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestResolveDispute_Success(t *testing.T) {
	r, f := setupRouter(t, adminID)

	w := postResolve(t, r, gin.H{
		"disputeId":  f.dispute.ID,
		"resolution": "release_to_partner",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success    bool   `json:"success"`
		Resolution string `json:"resolution"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "release_to_partner", resp.Resolution)
}

func TestResolveDispute_ErrorMapping(t *testing.T) {
	cases := []struct {
		name      string
		caller    string
		body      gin.H
		wantCode  int
		wantError string
	}{
		{
			name:      "anonymous",
			caller:    "",
			body:      gin.H{"disputeId": "dsp_x", "resolution": "refund_full"},
			wantCode:  http.StatusUnauthorized,
			wantError: "unauthorized",
		},
		{
			name:      "non-admin",
			caller:    bookerID,
			body:      gin.H{"disputeId": "dsp_x", "resolution": "refund_full"},
			wantCode:  http.StatusForbidden,
			wantError: "forbidden",
		},
		{
			name:      "invalid resolution",
			caller:    adminID,
			body:      gin.H{"disputeId": "dsp_x", "resolution": "foo"},
			wantCode:  http.StatusBadRequest,
			wantError: "invalid_resolution",
		},
		{
			name:      "unknown dispute",
			caller:    adminID,
			body:      gin.H{"disputeId": "dsp_missing0", "resolution": "refund_full"},
			wantCode:  http.StatusNotFound,
			wantError: "not_found",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := setupRouter(t, tc.caller)
			w := postResolve(t, r, tc.body)
			assert.Equal(t, tc.wantCode, w.Code, w.Body.String())

			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantError, resp["error"])
		})
	}
}

func TestResolveDispute_BadAmount(t *testing.T) {
	r, f := setupRouter(t, adminID)

	w := postResolve(t, r, gin.H{
		"disputeId":        f.dispute.ID,
		"resolution":       "refund_partial",
		"resolutionAmount": 5_000_000,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_resolution_amount")
}

func TestResolveDispute_SecondCallConflicts(t *testing.T) {
	r, f := setupRouter(t, adminID)

	body := gin.H{"disputeId": f.dispute.ID, "resolution": "no_action"}
	require.Equal(t, http.StatusOK, postResolve(t, r, body).Code)

	w := postResolve(t, r, body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already_resolved")
}

func TestFileDispute_Endpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ledger := &countingLedger{Ledger: wallet.New(wallet.NewMemoryStore())}
	require.NoError(t, ledger.Topup(context.Background(), bookerID, 2_000_000, "test"))
	bookings := booking.NewService(booking.NewMemoryStore(), ledger)
	b, err := bookings.Create(context.Background(), bookerID, booking.CreateRequest{
		PartnerID: partnerID, TotalAmount: 1_000_000, PartnerEarning: 700_000, PlatformFee: 300_000,
	})
	require.NoError(t, err)

	svc := NewService(NewMemoryStore(), bookings, ledger, fakeAdmins{adminID: true}, nil)
	h := NewHandler(svc)

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("authUserID", bookerID) })
	h.RegisterProtectedRoutes(r.Group("/v1"))

	payload := fmt.Sprintf(`{"bookingId":%q,"reason":"partner no-show"}`, b.ID)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/disputes", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var d Dispute
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, b.ID, d.BookingID)
	assert.Equal(t, StatusOpen, d.Status)

	got, err := bookings.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusDisputed, got.Status)
}
