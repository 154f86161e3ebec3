package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithAdminAuthRequiresTokenOnNonLoopback(t *testing.T) {
	t.Setenv("RON_ADMIN_TOKEN", "")
	t.Setenv("MACRONODE_DEV_INSECURE", "")

	h := WithAdminAuth(AdminConfig{}, nil)(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/shutdown", nil)
	req.Host = "gateway.example.com"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on non-loopback with no token configured, got %d", rec.Code)
	}
}

func TestWithAdminAuthAllowsLoopbackWhenTokenUnset(t *testing.T) {
	t.Setenv("RON_ADMIN_TOKEN", "")
	t.Setenv("MACRONODE_DEV_INSECURE", "")

	h := WithAdminAuth(AdminConfig{}, nil)(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/shutdown", nil)
	req.Host = "127.0.0.1:8080"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected loopback bypass to pass, got %d", rec.Code)
	}
}

func TestWithAdminAuthBearerTokenMatch(t *testing.T) {
	t.Setenv("RON_ADMIN_TOKEN", "s3cret")
	t.Setenv("MACRONODE_DEV_INSECURE", "")

	h := WithAdminAuth(AdminConfig{}, nil)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/shutdown", nil)
	req.Host = "gateway.example.com"
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected matching token to pass, got %d", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/shutdown", nil)
	req2.Host = "gateway.example.com"
	req2.Header.Set("Authorization", "Bearer wrong")
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusUnauthorized {
		t.Fatalf("expected mismatched token to be denied, got %d", rec2.Code)
	}
}

func TestWithAdminAuthDevInsecureBypass(t *testing.T) {
	t.Setenv("RON_ADMIN_TOKEN", "")
	t.Setenv("MACRONODE_DEV_INSECURE", "true")

	h := WithAdminAuth(AdminConfig{}, nil)(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/shutdown", nil)
	req.Host = "gateway.example.com"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected dev-insecure bypass to pass on non-loopback with no token configured, got %d", rec.Code)
	}
}

func TestWithAdminAuthDevInsecureDoesNotBypassConfiguredToken(t *testing.T) {
	t.Setenv("RON_ADMIN_TOKEN", "s3cret")
	t.Setenv("MACRONODE_DEV_INSECURE", "true")

	h := WithAdminAuth(AdminConfig{}, nil)(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/shutdown", nil)
	req.Host = "gateway.example.com"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected dev-insecure to never bypass a configured token, got %d", rec.Code)
	}
}

func TestAdminHooksMountRespondsNotImplementedWhenUnwired(t *testing.T) {
	hooks := AdminHooks{}
	mux := newChiRouterForTest()
	hooks.mount(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/shutdown", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 for unwired shutdown hook, got %d", rec.Code)
	}
}

func TestAdminHooksMountInvokesWiredHook(t *testing.T) {
	called := false
	hooks := AdminHooks{Shutdown: func() error { called = true; return nil }}
	mux := newChiRouterForTest()
	hooks.mount(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/shutdown", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if !called {
		t.Fatalf("expected shutdown hook to be invoked")
	}
}
