package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tulen-chik/beltelekom-sub000/internal/auth"
)

func serve(t *testing.T, role string, allowed ...string) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		if role != "" {
			ctx := auth.WithIdentity(c.Request.Context(), "u", role, "")
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}, RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireAnyRole_AdminBypasses(t *testing.T) {
	if code := serve(t, RoleAdmin, RoleOperator); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_SubscriberDenied(t *testing.T) {
	if code := serve(t, RoleSubscriber, RoleOperator); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_RoleRequired(t *testing.T) {
	if code := serve(t, "", RoleOperator); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestCanAccessSubscriber(t *testing.T) {
	sub := auth.WithIdentity(context.Background(), "ivan", RoleSubscriber, "SUB-7")
	if !CanAccessSubscriber(sub, "SUB-7") {
		t.Fatalf("subscriber must read own data")
	}
	if CanAccessSubscriber(sub, "SUB-8") {
		t.Fatalf("subscriber must not read other data")
	}
	ops := auth.WithIdentity(context.Background(), "ops", RoleOperator, "")
	if !CanAccessSubscriber(ops, "SUB-8") {
		t.Fatalf("operator must read any subscriber")
	}
	if CanAccessSubscriber(context.Background(), "SUB-7") {
		t.Fatalf("anonymous must be denied")
	}
}

func TestScopeSubscriber(t *testing.T) {
	sub := auth.WithIdentity(context.Background(), "ivan", RoleSubscriber, "SUB-7")
	if id, ok := ScopeSubscriber(sub, ""); !ok || id != "SUB-7" {
		t.Fatalf("expected own id, got %q %v", id, ok)
	}
	ops := auth.WithIdentity(context.Background(), "ops", RoleOperator, "")
	if _, ok := ScopeSubscriber(ops, ""); ok {
		t.Fatalf("staff must name a subscriber")
	}
}
