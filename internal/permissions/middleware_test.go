package permissions

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/logger"
)

type declaredHandler struct{}

func (declaredHandler) HasRequiredPermissions() PermissionSet {
	return PermissionSet{
		"list":   {IntegrationsRead},
		"update": {IntegrationsRead, IntegrationsWrite},
	}
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gate := NewGate(NewStaticAuthority(map[string][]string{
		"reader": {IntegrationsRead.String()},
		"writer": {IntegrationsRead.String(), IntegrationsWrite.String()},
	}), time.Second, logger.NopLogger())

	h := declaredHandler{}
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"actor": ActorID(c)}) }

	r := gin.New()
	r.GET("/items", RequirePermissions(gate, h, "list", "X-Actor-ID"), ok)
	r.PUT("/items", RequirePermissions(gate, h, "update", "X-Actor-ID"), ok)
	r.DELETE("/items", RequirePermissions(gate, h, "destroy", "X-Actor-ID"), ok)
	return r
}

func TestRequirePermissions(t *testing.T) {
	router := newRouter(t)

	tests := []struct {
		name       string
		method     string
		actor      string
		wantStatus int
		wantCode   string
	}{
		{name: "reader lists", method: http.MethodGet, actor: "reader", wantStatus: http.StatusOK},
		{name: "reader cannot update", method: http.MethodPut, actor: "reader", wantStatus: http.StatusForbidden, wantCode: "FORBIDDEN"},
		{name: "writer updates", method: http.MethodPut, actor: "writer", wantStatus: http.StatusOK},
		{name: "missing actor", method: http.MethodGet, wantStatus: http.StatusUnauthorized, wantCode: "UNAUTHORIZED"},
		{name: "undeclared action", method: http.MethodDelete, actor: "writer", wantStatus: http.StatusForbidden, wantCode: "FORBIDDEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/items", nil)
			if tt.actor != "" {
				req.Header.Set("X-Actor-ID", tt.actor)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["error_code"])
			} else {
				assert.Equal(t, tt.actor, body["actor"])
			}
		})
	}
}

func TestValidateDeclarations(t *testing.T) {
	h := declaredHandler{}

	assert.NoError(t, ValidateDeclarations(h, "list", "update"))

	err := ValidateDeclarations(h, "list", "destroy", "archive")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUndeclaredAction)
	assert.Contains(t, err.Error(), "archive, destroy")
}
