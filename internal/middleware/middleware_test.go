package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/counseling-booking-api/internal/models"
	"github.com/noah-isme/counseling-booking-api/internal/service"
	appErrors "github.com/noah-isme/counseling-booking-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

func newProtectedRouter(roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(service.NewMetricsService()), WithResponseMeta())
	r.GET("/protected",
		JWT(validatorStub{claims: &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent}}),
		RequireRoles(roles...),
		func(c *gin.Context) {
			SetCacheHit(c, true)
			c.JSON(http.StatusOK, gin.H{"user": ClaimsFromContext(c).UserID, "meta": ExtractMeta(c)})
		})
	return r
}

func TestJWTAndRoles(t *testing.T) {
	cases := []struct {
		name   string
		header string
		roles  []models.UserRole
		status int
	}{
		{name: "missing header", status: http.StatusUnauthorized, roles: []models.UserRole{models.RoleStudent}},
		{name: "wrong scheme", header: "Basic good", status: http.StatusUnauthorized, roles: []models.UserRole{models.RoleStudent}},
		{name: "bad token", header: "Bearer bad", status: http.StatusUnauthorized, roles: []models.UserRole{models.RoleStudent}},
		{name: "role not allowed", header: "Bearer good", status: http.StatusForbidden, roles: []models.UserRole{models.RoleAdmin}},
		{name: "allowed", header: "bearer good", status: http.StatusOK, roles: []models.UserRole{models.RoleStudent, models.RoleAdmin}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			newProtectedRouter(tc.roles...).ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Contains(t, rec.Body.String(), `"user":"u-1"`)
				assert.Contains(t, rec.Body.String(), `"cache_hit":true`)
			}
		})
	}
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/open", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
