package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/salon-api/internal/app"
	"github.com/jwalitptl/salon-api/internal/config"
	"github.com/jwalitptl/salon-api/internal/gateway/fake"
	"github.com/jwalitptl/salon-api/internal/middleware"
	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/service/servicetest"
	"github.com/jwalitptl/salon-api/pkg/auth"
)

type testServer struct {
	*servicetest.Fixture
	engine *gin.Engine
	tokens *auth.Manager
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := servicetest.New(t)
	a := app.New(app.Deps{
		Repos:   f.Repos,
		Gateway: fake.New("whsec_test"),
		Clock:   f.Clock,
		Metrics: f.Metrics,
		Logger:  f.Log,
	}, config.Default())

	tokens := auth.NewManager("test-secret", "salon-api", time.Hour)
	r := NewRouter(Deps{
		App:      a,
		Auth:     middleware.NewAuthMiddleware(tokens),
		Registry: prom.NewRegistry(),
		Metrics:  f.Metrics,
		Logger:   f.Log,
		Clock:    f.Clock,
	}, RouterConfig{
		CORSConfig: middleware.DefaultCORSConfig(),
		Timeout:    middleware.DefaultTimeoutConfig(),
		SizeLimit:  middleware.DefaultSizeLimitConfig(),
		Security:   middleware.DefaultSecurityConfig(),
	})
	r.Setup()

	return &testServer{Fixture: f, engine: r.Engine(), tokens: tokens}
}

type envelope struct {
	Status  string            `json:"status"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

func (s *testServer) do(t *testing.T, method, path string, actor *model.Actor, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		token, err := s.tokens.Generate(actor.UserID, string(actor.Role))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (s *testServer) book(t *testing.T, hhmm string) map[string]interface{} {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/api/v1/reservations", &s.Client, map[string]interface{}{
		"service_id":        s.Service.ID,
		"stylist_id":        s.Stylist.ID,
		"scheduled_at":      s.At(t, "2025-06-03", hhmm),
		"payment_method_id": "pm_card_visa",
		"amount":            "50.00",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result struct {
		Reservation map[string]interface{} `json:"reservation"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	return result.Reservation
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t)

	for _, path := range []string{"/health/live", "/health/ready", "/api/v1/health/live", "/metrics"} {
		w, _ := s.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w, _ := s.do(t, http.MethodGet, "/health/live", nil, nil)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	s := newServer(t)

	w, env := s.do(t, http.MethodGet, "/api/v1/reservations", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "unauthorized", env.Error)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPublicCatalog(t *testing.T) {
	s := newServer(t)

	w, env := s.do(t, http.MethodGet, "/api/v1/branches", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var branches []model.Branch
	require.NoError(t, json.Unmarshal(env.Data, &branches))
	require.Len(t, branches, 1)
	assert.Equal(t, s.Branch.ID, branches[0].ID)

	w, _ = s.do(t, http.MethodGet, "/api/v1/stylists/"+s.Stylist.ID.String()+"/availability", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAvailableSlots(t *testing.T) {
	s := newServer(t)

	w, env := s.do(t, http.MethodGet, "/api/v1/reservations/available-slots?date=2025-06-03", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "is required", env.Fields["service_id"])

	path := "/api/v1/reservations/available-slots?service_id=" + s.Service.ID.String() +
		"&stylist_id=" + s.Stylist.ID.String() + "&date=2025-06-03"
	w, env = s.do(t, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var slots []model.TimeSlot
	require.NoError(t, json.Unmarshal(env.Data, &slots))
	assert.NotEmpty(t, slots)
}

func TestBookingFlow(t *testing.T) {
	s := newServer(t)
	res := s.book(t, "10:00")
	id := res["id"].(string)
	assert.Equal(t, "confirmed", res["status"])

	w, _ := s.do(t, http.MethodGet, "/api/v1/reservations/"+id, &s.Client, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := s.do(t, http.MethodGet, "/api/v1/reservations/"+id, &s.OtherClient, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "authorization_error", env.Error)

	w, env = s.do(t, http.MethodPost, "/api/v1/reservations", &s.OtherClient, map[string]interface{}{
		"service_id":        s.Service.ID,
		"stylist_id":        s.Stylist.ID,
		"scheduled_at":      s.At(t, "2025-06-03", "10:30"),
		"payment_method_id": "pm_card_visa",
		"amount":            "50.00",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "conflict_error", env.Error)

	w, env = s.do(t, http.MethodGet, "/api/v1/reservations?page=1&page_size=10", &s.Client, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Items      []model.Reservation `json:"items"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.EqualValues(t, 1, page.Pagination.Total)

	w, _ = s.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/cancel", &s.Client, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValidationErrors(t *testing.T) {
	s := newServer(t)

	w, env := s.do(t, http.MethodPost, "/api/v1/reservations", &s.Client, map[string]interface{}{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "validation_error", env.Error)
	assert.Contains(t, env.Fields, "service_id")
	assert.Contains(t, env.Fields, "payment_method_id")

	w, env = s.do(t, http.MethodGet, "/api/v1/reservations/not-a-uuid", &s.Client, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, env.Fields, "id")
}

func TestAuditRoutesAreAdminOnly(t *testing.T) {
	s := newServer(t)

	w, _ := s.do(t, http.MethodGet, "/api/v1/audit/logs", &s.Client, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/audit/logs", &s.Admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/audit/export", &s.Admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "Record ID")
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	s := newServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader([]byte(`{"id":"evt_1"}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":false}`, w.Body.String())
}

func TestNotificationsInbox(t *testing.T) {
	s := newServer(t)

	w, env := s.do(t, http.MethodGet, "/api/v1/notifications?unread=true", &s.Client, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"total":0`)

	w, _ = s.do(t, http.MethodPost, "/api/v1/notifications/"+uuid.NewString()+"/read", &s.Client, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
