package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"dialer-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

func doRequest(t *testing.T, role string, mw gin.HandlerFunc) int {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		if role != "" {
			ctx := auth.WithIdentity(c.Request.Context(), "u1", "ws1", role)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}, mw, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireAnyRole(t *testing.T) {
	cases := []struct {
		name    string
		role    string
		allowed []string
		want    int
	}{
		{"allowed role passes", RoleOperator, Dialing(), http.StatusOK},
		{"analyst denied on dialing", RoleAnalyst, Dialing(), http.StatusForbidden},
		{"analyst allowed on reading", RoleAnalyst, Reading(), http.StatusOK},
		{"super admin bypasses", RoleSuperAdmin, []string{RoleOwner}, http.StatusOK},
		{"missing role unauthorized", "", Dialing(), http.StatusUnauthorized},
		{"unknown role denied", "janitor", Dialing(), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := doRequest(t, tc.role, RequireAnyRole(tc.allowed...)); got != tc.want {
				t.Fatalf("status = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRequireWorkspace(t *testing.T) {
	if got := doRequest(t, RoleOwner, RequireWorkspace()); got != http.StatusOK {
		t.Fatalf("status = %d, want 200", got)
	}
	if got := doRequest(t, "", RequireWorkspace()); got != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", got)
	}
}
