package dns

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCreateRecord(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	}))
	defer srv.Close()

	c := &Client{
		APIBaseURL: srv.URL,
		APIToken:   "dns-token",
		Zone:       "zone-1",
		TargetHost: "edge.launchdeck.example.com",
		HTTPClient: srv.Client(),
	}

	if err := c.CreateRecord(context.Background(), " Acme "); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	if gotPath != "/zones/zone-1/dns_records" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer dns-token" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotBody["type"] != "CNAME" || gotBody["name"] != "acme" || gotBody["content"] != "edge.launchdeck.example.com" {
		t.Fatalf("unexpected record body: %v", gotBody)
	}
}

func TestCreateRecord_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	c := &Client{
		APIBaseURL: srv.URL,
		APIToken:   "dns-token",
		Zone:       "zone-1",
		HTTPClient: srv.Client(),
	}
	err := c.CreateRecord(context.Background(), "acme")
	if err == nil || !strings.Contains(err.Error(), "status=403") {
		t.Fatalf("expected a status error, got %v", err)
	}
}

func TestCreateRecord_Validation(t *testing.T) {
	unconfigured := &Client{HTTPClient: http.DefaultClient}
	if err := unconfigured.CreateRecord(context.Background(), "acme"); err == nil {
		t.Fatalf("expected an error for a client without configuration")
	}

	c := &Client{APIBaseURL: "http://example.invalid", APIToken: "t", Zone: "z", HTTPClient: http.DefaultClient}
	if err := c.CreateRecord(context.Background(), "   "); err == nil {
		t.Fatalf("expected an error for a blank subdomain")
	}
}
