package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/butstore/whatsapp-bridge/pkg/logging"
)

func TestImageProxyRejectsMissingURL(t *testing.T) {
	handler := NewImageProxyHandler("token", logging.Default())

	req := httptest.NewRequest(http.MethodGet, "/proxy/image", nil)
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestImageProxyRejectsDisallowedHost(t *testing.T) {
	handler := NewImageProxyHandler("token", logging.Default())

	req := httptest.NewRequest(http.MethodGet, "/proxy/image?url=https%3A%2F%2Fevil.example.com%2Fimg.jpg", nil)
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestImageProxyRejectsPlainHTTP(t *testing.T) {
	handler := NewImageProxyHandler("token", logging.Default())

	req := httptest.NewRequest(http.MethodGet, "/proxy/image?url=http%3A%2F%2Flookaside.fbsbx.com%2Fimg.jpg", nil)
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestMediaHostAllowed(t *testing.T) {
	allowed := []string{"lookaside.fbsbx.com", "graph.facebook.com", "mmg.whatsapp.net"}
	for _, host := range allowed {
		if !mediaHostAllowed(host) {
			t.Fatalf("expected %s to be allowed", host)
		}
	}
	denied := []string{"example.com", "whatsapp.net.evil.com", "fbsbx.com"}
	for _, host := range denied {
		if mediaHostAllowed(host) {
			t.Fatalf("expected %s to be denied", host)
		}
	}
}
