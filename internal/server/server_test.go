package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amoree/amoree/internal/config"
)

const adminSecret = "sk_000000000000000000000000000000000000000000000000000000000000test"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Port:         "0",
		Env:          "development",
		LogLevel:     "error",
		Currency:     "VND",
		MinTopup:     10_000,
		MaxTopup:     100_000_000,
		PlatformID:   "platform",
		AdminSecret:  adminSecret,
		RateLimitRPS: 1000,
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func (s *Server) do(t *testing.T, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func (s *Server) issueKey(t *testing.T, userID string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/keys", adminSecret, map[string]string{
		"userId": userID,
		"name":   "test",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Key
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	w = s.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/v1/me/wallet", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	userKey := s.issueKey(t, "usr_booker01")
	w = s.do(t, http.MethodPost, "/v1/resolve-dispute", userKey, map[string]string{
		"disputeId": "dsp_x", "resolution": "refund_full",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// TestDisputeFlow drives the whole lifecycle through HTTP: fund, book,
// accept, dispute, resolve with a partial refund, then verify every balance.
func TestDisputeFlow(t *testing.T) {
	s := newTestServer(t)
	bookerKey := s.issueKey(t, "usr_booker01")
	partnerKey := s.issueKey(t, "usr_partner1")

	// Admin records the booker's deposit.
	w := s.do(t, http.MethodPost, "/v1/wallet/topup", adminSecret, map[string]any{
		"userId": "usr_booker01", "amount": 2_000_000, "reference": "bank transfer",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Booker books a date.
	w = s.do(t, http.MethodPost, "/v1/bookings", bookerKey, map[string]any{
		"partnerId":      "usr_partner1",
		"totalAmount":    1_000_000,
		"partnerEarning": 700_000,
		"platformFee":    300_000,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var b struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))

	// Partner accepts.
	w = s.do(t, http.MethodPost, fmt.Sprintf("/v1/bookings/%s/accept", b.ID), partnerKey, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Booker files a dispute.
	w = s.do(t, http.MethodPost, "/v1/disputes", bookerKey, map[string]string{
		"bookingId": b.ID, "reason": "date cut short",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var d struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))

	// Completing a disputed booking is blocked.
	w = s.do(t, http.MethodPost, fmt.Sprintf("/v1/bookings/%s/complete", b.ID), bookerKey, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Admin resolves with a 400,000 refund.
	w = s.do(t, http.MethodPost, "/v1/resolve-dispute", adminSecret, map[string]any{
		"disputeId":        d.ID,
		"resolution":       "refund_partial",
		"resolutionAmount": 400_000,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"success":true`)

	// A second resolution conflicts.
	w = s.do(t, http.MethodPost, "/v1/resolve-dispute", adminSecret, map[string]any{
		"disputeId": d.ID, "resolution": "release_to_partner",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Balances: booker 1,400,000, partner 420,000, platform 180,000.
	assertBalance := func(key, userID string, wantAvailable int64) {
		var path string
		if key == adminSecret {
			path = "/v1/wallet/" + userID
		} else {
			path = "/v1/me/wallet"
		}
		w := s.do(t, http.MethodGet, path, key, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var acct struct {
			Available int64 `json:"availableBalance"`
			Escrow    int64 `json:"escrowBalance"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &acct))
		assert.Equal(t, wantAvailable, acct.Available, "available for %s", userID)
		assert.Zero(t, acct.Escrow, "escrow for %s", userID)
	}
	assertBalance(bookerKey, "usr_booker01", 1_400_000)
	assertBalance(partnerKey, "usr_partner1", 420_000)
	assertBalance(adminSecret, "platform", 180_000)

	// Both parties were notified.
	for _, key := range []string{bookerKey, partnerKey} {
		w = s.do(t, http.MethodGet, "/v1/me/notifications", key, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "dispute_resolved")
	}

	// Transaction history records the refund.
	w = s.do(t, http.MethodGet, "/v1/me/transactions", bookerKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"refund"`)
}

func TestRequestIDPropagation(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-fixed-42")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, "req-fixed-42", w.Header().Get("X-Request-ID"))

	w2 := s.do(t, http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, w2.Header().Get("X-Request-ID"))
}
