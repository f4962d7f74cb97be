package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/noah-isme/counseling-booking-api/internal/handler"
	"github.com/noah-isme/counseling-booking-api/internal/models"
	"github.com/noah-isme/counseling-booking-api/internal/service"
	"github.com/noah-isme/counseling-booking-api/pkg/config"
	appErrors "github.com/noah-isme/counseling-booking-api/pkg/errors"
)

type tokenStub map[string]*models.JWTClaims

func (s tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.ErrUnauthorized
}

func newTestEngine() http.Handler {
	cfg := &config.Config{Env: config.EnvDevelopment, APIPrefix: "/api/v1"}
	tokens := tokenStub{
		"student":   {UserID: "s-1", Role: models.RoleStudent},
		"counselor": {UserID: "c-1", Role: models.RoleCounselor},
	}
	h := Handlers{
		Slot:        handler.NewSlotHandler(nil, nil),
		Appointment: handler.NewAppointmentHandler(nil),
		Calendar:    handler.NewCalendarHandler(nil, nil, nil),
		Counselor:   handler.NewCounselorHandler(nil),
		Export:      handler.NewExportHandler(nil),
		Metrics:     handler.NewMetricsHandler(service.NewMetricsService(), nil),
	}
	return Setup(cfg, h, tokens, service.NewMetricsService(), zap.NewNop())
}

func serve(engine http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestPublicProbes(t *testing.T) {
	engine := newTestEngine()

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/ready", "").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/metrics", "").Code)
}

func TestAPIRequiresToken(t *testing.T) {
	engine := newTestEngine()

	assert.Equal(t, http.StatusUnauthorized, serve(engine, http.MethodGet, "/api/v1/appointments", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(engine, http.MethodGet, "/api/v1/slots/bookable", "forged").Code)
}

func TestRoleGates(t *testing.T) {
	engine := newTestEngine()

	cases := []struct {
		method, path, token string
	}{
		{http.MethodPost, "/api/v1/appointments/a-1/status", "student"},
		{http.MethodPost, "/api/v1/appointments/a-1/follow-ups", "student"},
		{http.MethodPut, "/api/v1/counselors/c-1/availability", "student"},
		{http.MethodGet, "/api/v1/exports/schedule", "student"},
		{http.MethodPost, "/api/v1/appointments", "counselor"},
		{http.MethodPut, "/api/v1/appointments/a-1", "counselor"},
		{http.MethodDelete, "/api/v1/appointments/a-1", "counselor"},
	}
	for _, tc := range cases {
		rec := serve(engine, tc.method, tc.path, tc.token)
		assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s as %s", tc.method, tc.path, tc.token)
	}
}
