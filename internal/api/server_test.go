package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chainmesh-network/chainmesh/internal/domain"
	"github.com/chainmesh-network/chainmesh/internal/infra/discovery"
	"github.com/chainmesh-network/chainmesh/internal/infra/protocol"
)

func newTestServer(t *testing.T) (*Server, *discovery.Manager) {
	t.Helper()
	cfg := discovery.Config{
		Network:  domain.NetworkCustom,
		SelfURL:  "http://203.0.113.1:9380",
		Interval: time.Hour,
	}
	mgr := discovery.NewManager(cfg, protocol.NewClient(time.Second), nil, "node-abc")
	return NewServer(mgr, "0.3.1"), mgr
}

func doRequest(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.RemoteAddr = "192.0.2.10:55001"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return body
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/health", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decodeBody(t, rec)["status"]; got != "ok" {
		t.Errorf("status field = %v, want ok", got)
	}
}

func TestPing(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.SetChainHeightFunc(func() int64 { return 4321 })

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/peers/ping", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Error("success should be true")
	}
	if body["node_id"] != "node-abc" {
		t.Errorf("node_id = %v, want node-abc", body["node_id"])
	}
	if body["version"] != "0.3.1" {
		t.Errorf("version = %v, want 0.3.1", body["version"])
	}
	if body["chain_height"] != float64(4321) {
		t.Errorf("chain_height = %v, want 4321", body["chain_height"])
	}
}

func TestPing_NoHeightFunc(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/peers/ping", nil)

	if got := decodeBody(t, rec)["chain_height"]; got != float64(0) {
		t.Errorf("chain_height = %v, want 0 when unwired", got)
	}
}

func TestPeerList(t *testing.T) {
	srv, mgr := newTestServer(t)
	for i := 0; i < 3; i++ {
		if err := mgr.AnnouncePeer(fmt.Sprintf("http://10.%d.0.1:9380", i+1)); err != nil {
			t.Fatalf("AnnouncePeer: %v", err)
		}
	}

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/peers/list", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Error("success should be true")
	}
	if body["count"] != float64(3) {
		t.Errorf("count = %v, want 3", body["count"])
	}
	peers, ok := body["peers"].([]interface{})
	if !ok || len(peers) != 3 {
		t.Errorf("peers = %v, want 3 URLs", body["peers"])
	}
}

func TestAnnounce(t *testing.T) {
	srv, mgr := newTestServer(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/peers/announce",
		[]byte(`{"peer_url": "http://10.5.0.1:9380"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true || body["peer_url"] != "http://10.5.0.1:9380" {
		t.Errorf("body = %v", body)
	}

	found := false
	for _, d := range mgr.PeerDetails() {
		if d.URL == "http://10.5.0.1:9380" {
			found = true
		}
	}
	if !found {
		t.Error("announced peer missing from the pool")
	}
}

func TestAnnounce_Rejections(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	cases := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"missing field", `{}`},
		{"not json", `peer_url=x`},
		{"malformed url", `{"peer_url": "not a url"}`},
		{"self url", `{"peer_url": "http://203.0.113.1:9380"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/peers/announce", []byte(tc.body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if decodeBody(t, rec)["success"] != false {
				t.Error("success should be false")
			}
		})
	}
}

func TestAnnounce_RateLimited(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	// Exhaust the per-source burst, then expect 429.
	var last int
	for i := 0; i < announceBurst+1; i++ {
		body := []byte(fmt.Sprintf(`{"peer_url": "http://10.%d.0.1:9380"}`, i+1))
		rec := doRequest(t, h, http.MethodPost, "/peers/announce", body)
		last = rec.Code
		if i < announceBurst && rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status after burst = %d, want 429", last)
	}

	// A different source is unaffected.
	req := httptest.NewRequest(http.MethodPost, "/peers/announce",
		bytes.NewReader([]byte(`{"peer_url": "http://10.99.0.1:9380"}`)))
	req.RemoteAddr = "192.0.2.77:55002"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("other source: status = %d, want 200", rec.Code)
	}
}

func TestDiscoveryStats(t *testing.T) {
	srv, mgr := newTestServer(t)
	if err := mgr.AnnouncePeer("http://10.1.0.1:9380"); err != nil {
		t.Fatalf("AnnouncePeer: %v", err)
	}

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/peers/discovery/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	for _, field := range []string{
		"network_type", "connected_peers", "known_peers", "max_peers",
		"diversity_score", "avg_peer_quality", "total_discoveries",
		"total_connections", "total_failed_connections", "is_running",
	} {
		if _, ok := body[field]; !ok {
			t.Errorf("stats missing field %q", field)
		}
	}
	if body["network_type"] != "custom" {
		t.Errorf("network_type = %v, want custom", body["network_type"])
	}
	if body["known_peers"] != float64(1) {
		t.Errorf("known_peers = %v, want 1", body["known_peers"])
	}
	if body["is_running"] != false {
		t.Error("is_running should be false before Start")
	}
}

func TestDiscoveryDetails(t *testing.T) {
	srv, mgr := newTestServer(t)
	if err := mgr.AnnouncePeer("http://10.1.0.1:9380"); err != nil {
		t.Fatalf("AnnouncePeer: %v", err)
	}

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/peers/discovery/details", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var details []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &details); err != nil {
		t.Fatalf("details is not a JSON array: %v", err)
	}
	if len(details) != 1 {
		t.Fatalf("details = %d entries, want 1", len(details))
	}
	for _, field := range []string{
		"url", "ip_address", "first_seen", "last_seen", "quality_score",
		"reliability", "avg_response_time", "uptime_hours",
		"success_count", "failure_count", "is_bootstrap",
	} {
		if _, ok := details[0][field]; !ok {
			t.Errorf("peer detail missing field %q", field)
		}
	}
	if details[0]["url"] != "http://10.1.0.1:9380" {
		t.Errorf("url = %v", details[0]["url"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("metrics disabled: status = %d, want 404", rec.Code)
	}

	srv.EnableMetrics()
	rec = doRequest(t, srv.Handler(), http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("metrics enabled: status = %d, want 200", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodPost, "/peers/list", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
