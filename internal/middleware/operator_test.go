package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnatolyKozmin/Shend/internal/models"
	appErrors "github.com/AnatolyKozmin/Shend/pkg/errors"
)

type authStub struct{}

func (authStub) ValidateToken(token string) (*models.Principal, error) {
	if token != "good-token" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return &models.Principal{ID: "op-1", Capabilities: []models.Capability{models.CapabilityViewBookings}}, nil
}

func (authStub) ValidateKey(key string) (*models.Principal, error) {
	if key != "good-key" {
		return nil, appErrors.ErrUnauthorized
	}
	return &models.Principal{ID: "op-key", Capabilities: []models.Capability{models.CapabilitySyncAvailability}}, nil
}

func operatorRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/bookings", OperatorAuth(authStub{}), RequireCapability(models.CapabilityViewBookings), func(c *gin.Context) {
		c.String(http.StatusOK, PrincipalFromContext(c).ID)
	})
	return router
}

func TestOperatorAuth(t *testing.T) {
	cases := []struct {
		name   string
		header string
		value  string
		status int
		body   string
	}{
		{name: "bearer", header: "Authorization", value: "Bearer good-token", status: http.StatusOK, body: "op-1"},
		{name: "bad bearer", header: "Authorization", value: "Bearer nope", status: http.StatusUnauthorized},
		{name: "malformed header", header: "Authorization", value: "good-token", status: http.StatusUnauthorized},
		{name: "key without capability", header: OperatorKeyHeader, value: "good-key", status: http.StatusForbidden},
		{name: "anonymous", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/bookings", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			w := httptest.NewRecorder()
			operatorRouter().ServeHTTP(w, req)
			require.Equal(t, tc.status, w.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, w.Body.String())
			}
		})
	}
}

type observerStub struct {
	routes   []string
	statuses []int
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.routes = append(o.routes, path)
	o.statuses = append(o.statuses, status)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &observerStub{}
	router := gin.New()
	router.Use(Metrics(observer))
	router.GET("/bookings/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/bookings/42", "/random"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Equal(t, []string{"/bookings/:id", unmatchedRoute}, observer.routes)
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNotFound}, observer.statuses)
}
