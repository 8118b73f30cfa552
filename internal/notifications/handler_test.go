package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eternisai/devotional-push/internal/auth"
	"github.com/eternisai/devotional-push/internal/logger"
	"github.com/eternisai/devotional-push/internal/subscriptions"
	"github.com/eternisai/devotional-push/internal/webpush"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOperatorKey = "operator-key"
	testCronSecret  = "cron-secret"
)

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	log := logger.Discard()
	operator := auth.NewBearerSecretMiddleware(testOperatorKey, "operator", log)
	cron := auth.NewBearerSecretMiddleware(testCronSecret, "cron", log)
	NewHandler(svc, log).RegisterRoutes(r.Group("/api/v1"), operator.RequireSecret(), cron.RequireSecret())
	return r
}

func doJSON(r http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlerPublicKey(t *testing.T) {
	w := doJSON(newTestRouter(newTestService(subscriptions.NewMemoryStore(), &fakeSender{}, monday0630UTC)),
		http.MethodGet, "/api/v1/push/vapid-public-key", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"publicKey":"BPublicKeyForTests"}`, w.Body.String())

	w = doJSON(newTestRouter(newTestService(subscriptions.NewMemoryStore(), nil, monday0630UTC)),
		http.MethodGet, "/api/v1/push/vapid-public-key", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "not configured")
}

func TestHandlerSubscribe(t *testing.T) {
	store := subscriptions.NewMemoryStore()
	r := newTestRouter(newTestService(store, &fakeSender{}, monday0630UTC))
	sub := newSubscriber(t, "https://push.example.com/me").sub

	w := doJSON(r, http.MethodPost, "/api/v1/push/subscribe", map[string]any{
		"subscription":  sub,
		"morningHour":   "7",
		"morningMinute": 15,
		"eveningHour":   42,
		"timezone":      "Europe/Berlin",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Key         string                    `json:"key"`
		Preferences subscriptions.Preferences `json:"preferences"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, subscriptions.RecordKey(sub.Endpoint), resp.Key)
	assert.Equal(t, subscriptions.Preferences{
		MorningHour:           7,
		MorningMinute:         15,
		EveningHour:           23,
		EveningMinute:         0,
		Timezone:              "Europe/Berlin",
		SundayReminderEnabled: true,
	}, resp.Preferences)

	w = doJSON(r, http.MethodDelete, "/api/v1/push/subscribe", map[string]string{"endpoint": sub.Endpoint}, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	records, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHandlerSubscribeRejectsBadInput(t *testing.T) {
	r := newTestRouter(newTestService(subscriptions.NewMemoryStore(), &fakeSender{}, monday0630UTC))
	good := newSubscriber(t, "https://push.example.com/me").sub

	insecure := good
	insecure.Endpoint = "http://push.example.com/me"
	shortAuth := good
	shortAuth.Keys.Auth = webpush.ToBase64URL([]byte("short"))
	missingKey := good
	missingKey.Keys.P256dh = ""

	tests := []struct {
		name string
		body any
		want string
	}{
		{"no subscription", map[string]any{"timezone": "UTC"}, "subscription"},
		{"plain http endpoint", map[string]any{"subscription": insecure}, "https"},
		{"short auth secret", map[string]any{"subscription": shortAuth}, "keys.auth"},
		{"missing p256dh", map[string]any{"subscription": missingKey}, "keys.p256dh"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/api/v1/push/subscribe", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}

func TestHandlerTestSend(t *testing.T) {
	store := subscriptions.NewMemoryStore()
	putRecord(t, store, "https://push.example.com/me", subscriptions.DefaultPreferences())
	r := newTestRouter(newTestService(store, &fakeSender{}, monday0630UTC))

	w := doJSON(r, http.MethodPost, "/api/v1/push/test", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/push/test", nil, testCronSecret)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/push/test", nil, testOperatorKey)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success":true,"outcome":"delivered","status":201}`, w.Body.String())

	w = doJSON(r, http.MethodPost, "/api/v1/push/test", map[string]string{"endpoint": "https://push.example.com/unknown"}, testOperatorKey)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerTestSendNotConfigured(t *testing.T) {
	r := newTestRouter(newTestService(subscriptions.NewMemoryStore(), nil, monday0630UTC))
	w := doJSON(r, http.MethodPost, "/api/v1/push/test", nil, testOperatorKey)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandlerDispatch(t *testing.T) {
	store := subscriptions.NewMemoryStore()
	putRecord(t, store, "https://push.example.com/me", prefsAt(6, 30, "UTC"))
	sender := &fakeSender{}
	r := newTestRouter(newTestService(store, sender, monday0630UTC))

	w := doJSON(r, http.MethodPost, "/api/v1/push/dispatch", nil, testOperatorKey)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, sender.messages())

	w = doJSON(r, http.MethodPost, "/api/v1/push/dispatch", nil, testCronSecret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Subscriptions)
	assert.Equal(t, 1, report.Delivered)
	require.Len(t, report.Attempts, 1)
	assert.Equal(t, KindMorning, report.Attempts[0].Kind)
}
